package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/containerd/containerd/v2/core/containers"
	"github.com/containerd/containerd/v2/core/content"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/containerd/v2/pkg/rootfs"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Image configuration applied when committing a container.
type ImageConfig struct {
	Env        []string // "KEY=value" entries merged over the base image environment.
	WorkingDir string   // Working directory; empty keeps the base image's.
}

// Stops the container and stores its filesystem as a new image.
//
// The snapshot diff against the base image becomes one extra layer. The
// mutated manifest and config (and a single-entry index when the base was
// multi-platform) are written under a content lease and then referenced by
// an image record called name, so they survive garbage collection. An
// existing record with that name is repointed. The container can no longer
// run commands afterwards. Returns the digest of the new image's root
// descriptor.
func (c *Container) Commit(ctx context.Context, name string, cfg ImageConfig) (digest.Digest, error) {
	name, err := NormalizeRef(name)
	if err != nil {
		return "", err
	}

	if err := c.Stop(ctx); err != nil {
		return "", err
	}

	loaded, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	info, err := loaded.Info(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	ctx, done, err := c.client.WithLease(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	defer done(context.WithoutCancel(ctx))

	layer, diffID, err := c.snapshotDiff(ctx, info)
	if err != nil {
		return "", fmt.Errorf("%w: diff: %w", ErrRuntime, err)
	}

	target, err := c.buildTarget(ctx, info.Image, func(m *ocispec.Manifest, img *ocispec.Image) {
		applyCommit(m, img, layer, diffID, cfg)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := c.storeImage(ctx, name, target); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("container committed", "id", c.id, "image", name, "digest", target.Digest)
	return target.Digest, nil
}

// Adds the committed layer and configuration to a manifest and config.
func applyCommit(m *ocispec.Manifest, img *ocispec.Image, layer ocispec.Descriptor, diffID digest.Digest, cfg ImageConfig) {
	m.Layers = append(m.Layers, layer)
	img.RootFS.DiffIDs = append(img.RootFS.DiffIDs, diffID)
	img.History = append(img.History, ocispec.History{CreatedBy: "yakupci commit"})

	if len(cfg.Env) > 0 {
		img.Config.Env = mergeEnv(img.Config.Env, cfg.Env)
	}
	if cfg.WorkingDir != "" {
		img.Config.WorkingDir = cfg.WorkingDir
	}
}

// Creates or repoints the image record for name.
func (c *Container) storeImage(ctx context.Context, name string, target ocispec.Descriptor) error {
	is := c.client.ImageService()
	img := images.Image{Name: name, Target: target}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}
	return nil
}

// Computes the diff between the container's snapshot and its parent.
func (c *Container) snapshotDiff(ctx context.Context, info containers.Container) (ocispec.Descriptor, digest.Digest, error) {
	layer, err := rootfs.CreateDiff(ctx,
		info.SnapshotKey,
		c.client.SnapshotService(info.Snapshotter),
		c.client.DiffService(),
	)
	if err != nil {
		return ocispec.Descriptor{}, "", err
	}

	diffID, err := images.GetDiffID(ctx, c.client.ContentStore(), layer)
	if err != nil {
		return ocispec.Descriptor{}, "", err
	}

	return layer, diffID, nil
}

// Writes a mutated copy of the base image's manifest and config and returns
// the new root descriptor.
//
// Multi-platform bases collapse to a single-entry index holding the mutated
// manifest: layers of other platforms were never fetched.
func (c *Container) buildTarget(ctx context.Context, base string, mutate func(*ocispec.Manifest, *ocispec.Image)) (ocispec.Descriptor, error) {
	img, err := c.client.ImageService().Get(ctx, base)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	desc, index, err := c.platformManifest(ctx, img.Target, base)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	manifest, err := readJSON[ocispec.Manifest](ctx, c.client.ContentStore(), desc)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	config, err := readJSON[ocispec.Image](ctx, c.client.ContentStore(), manifest.Config)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	mutate(&manifest, &config)

	manifest.Config, err = c.writeBlob(ctx, manifest.Config.MediaType, config, "config")
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	manifestDesc, err := c.writeBlob(ctx, desc.MediaType, manifest, "manifest", content.WithLabels(manifestGCLabels(manifest)))
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	manifestDesc.Platform = desc.Platform

	if index == nil {
		return manifestDesc, nil
	}

	index.Manifests = []ocispec.Descriptor{manifestDesc}
	return c.writeBlob(ctx, img.Target.MediaType, index, "index", content.WithLabels(indexGCLabels(*index)))
}

// Resolves a root descriptor to the manifest for the container's platform.
//
// Returns the index the manifest was found in, or nil when the root is a
// manifest. Index entries without platform metadata (common on Docker Hub)
// are matched by the platform in their image config.
func (c *Container) platformManifest(ctx context.Context, root ocispec.Descriptor, name string) (ocispec.Descriptor, *ocispec.Index, error) {
	if !images.IsIndexType(root.MediaType) {
		return root, nil, nil
	}

	idx, err := readJSON[ocispec.Index](ctx, c.client.ContentStore(), root)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	if len(idx.Manifests) == 0 {
		return ocispec.Descriptor{}, nil, fmt.Errorf("%w: %s", ErrEmptyIndex, name)
	}

	p, err := platforms.Parse(c.platform)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	matcher := platforms.OnlyStrict(p)

	for _, m := range idx.Manifests {
		if m.Platform != nil && matcher.Match(*m.Platform) {
			return m, &idx, nil
		}
	}
	for _, m := range idx.Manifests {
		if m.Platform != nil || !images.IsManifestType(m.MediaType) {
			continue
		}
		if cp, ok := c.configPlatform(ctx, m); ok && matcher.Match(cp) {
			return m, &idx, nil
		}
	}

	return idx.Manifests[0], &idx, nil
}

// Returns the platform recorded in a manifest's image config.
func (c *Container) configPlatform(ctx context.Context, desc ocispec.Descriptor) (ocispec.Platform, bool) {
	cs := c.client.ContentStore()
	m, err := readJSON[ocispec.Manifest](ctx, cs, desc)
	if err != nil {
		return ocispec.Platform{}, false
	}
	img, err := readJSON[ocispec.Image](ctx, cs, m.Config)
	if err != nil {
		return ocispec.Platform{}, false
	}
	return img.Platform, true
}

// Decodes a JSON blob from the content store.
func readJSON[T any](ctx context.Context, p content.Provider, desc ocispec.Descriptor) (T, error) {
	var v T
	b, err := content.ReadBlob(ctx, p, desc)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(b, &v)
	return v, err
}

// Serializes v into the content store and returns its descriptor.
func (c *Container) writeBlob(ctx context.Context, mediaType string, v any, kind string, opts ...content.Opt) (ocispec.Descriptor, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(b),
		Size:      int64(len(b)),
	}
	ref := fmt.Sprintf("commit-%s-%s", c.id, kind)
	if err := content.WriteBlob(ctx, c.client.ContentStore(), ref, bytes.NewReader(b), desc, opts...); err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// Returns containerd GC reference labels linking a manifest to its config
// and layers.
func manifestGCLabels(m ocispec.Manifest) map[string]string {
	labels := map[string]string{
		"containerd.io/gc.ref.content.config": m.Config.Digest.String(),
	}
	for i, layer := range m.Layers {
		labels[fmt.Sprintf("containerd.io/gc.ref.content.l.%d", i)] = layer.Digest.String()
	}
	return labels
}

// Returns containerd GC reference labels linking an index to its manifests.
func indexGCLabels(idx ocispec.Index) map[string]string {
	labels := make(map[string]string, len(idx.Manifests))
	for i, m := range idx.Manifests {
		labels[fmt.Sprintf("containerd.io/gc.ref.content.m.%d", i)] = m.Digest.String()
	}
	return labels
}
