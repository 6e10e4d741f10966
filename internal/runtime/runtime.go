package runtime

import (
	"context"
	"fmt"
	"log/slog"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/distribution/reference"
)

const (

	// Default containerd socket.
	DefaultAddress = "/run/containerd/containerd.sock"

	// Default namespace. Keeps pipeline images and containers apart from
	// anything else on the daemon.
	DefaultNamespace = "yakupci"

	// Default snapshotter for container filesystems.
	DefaultSnapshotter = "overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

// Manages the containerd client and provides image and container operations.
type Runtime struct {
	client      *containerd.Client // Containerd client for managing containers and images.
	snapshotter string             // Snapshotter for unpacked layers and container roots.
}

// Configures a [Runtime].
type Option func(*Runtime)

// Selects the snapshotter. "fuse-overlayfs" allows running without root.
func WithSnapshotter(name string) Option {
	return func(rt *Runtime) {
		if name != "" {
			rt.snapshotter = name
		}
	}
}

// Creates a runtime connected to the containerd socket at the given address.
//
// The namespace scopes all containerd operations to a single tenant. The
// runtime must be closed when no longer needed.
func New(address, namespace string, opts ...Option) (*Runtime, error) {
	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	rt := &Runtime{client: client, snapshotter: DefaultSnapshotter}
	for _, opt := range opts {
		opt(rt)
	}
	return rt, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Fetches an image for one platform and unpacks it.
//
// Short references are expanded the way docker does ("rust:1" becomes
// "docker.io/library/rust:1"), and the image is stored under the expanded
// name.
func (rt *Runtime) Pull(ctx context.Context, ref, platform string) error {
	name, err := NormalizeRef(ref)
	if err != nil {
		return err
	}

	slog.Debug("pulling image", "ref", name, "platform", platform)

	_, err = rt.client.Pull(ctx, name,
		containerd.WithPlatform(platform),
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(rt.snapshotter),
	)
	if err != nil {
		return fmt.Errorf("%w: pull %s: %w", ErrRuntime, name, err)
	}

	return nil
}

// Reports whether an image record exists in the image store.
func (rt *Runtime) HasImage(ctx context.Context, name string) (bool, error) {
	name, err := NormalizeRef(name)
	if err != nil {
		return false, err
	}

	if _, err := rt.client.ImageService().Get(ctx, name); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return true, nil
}

// Starts a container from an image in the store.
//
// The image's layers for the platform are unpacked if needed, any stale
// container with the same ID is removed, and a long-running task is started
// so that subsequent Exec calls have a process to attach to. Running a
// platform other than the host's requires QEMU / binfmt_misc support.
func (rt *Runtime) StartContainer(ctx context.Context, name, id, platform string) (*Container, error) {
	name, err := NormalizeRef(name)
	if err != nil {
		return nil, err
	}

	image, err := rt.resolveImage(ctx, name, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := rt.ensureUnpacked(ctx, image); err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %w", ErrRuntime, name, err)
	}

	c := &Container{
		client:      rt.client,
		id:          id,
		platform:    platform,
		snapshotter: rt.snapshotter,
	}

	c.remove(ctx)

	ctr, err := c.create(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("container started", "id", id, "image", name, "platform", platform)

	return c, nil
}

// Unpacks the image's layers into the snapshotter unless already present.
func (rt *Runtime) ensureUnpacked(ctx context.Context, image containerd.Image) error {
	ok, err := image.IsUnpacked(ctx, rt.snapshotter)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return image.Unpack(ctx, rt.snapshotter)
}

// Looks up an image record and selects the manifest for the given platform.
func (rt *Runtime) resolveImage(ctx context.Context, name, platform string) (containerd.Image, error) {
	p, err := platforms.Parse(platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, name)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

// Expands an image reference to its fully qualified form.
//
// Fails with ErrInvalidImage for references that cannot be parsed.
func NormalizeRef(ref string) (string, error) {
	named, err := reference.ParseDockerRef(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidImage, ref, err)
	}
	return named.String(), nil
}
