package image

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/mortenlj/yakupci/internal/platform"
)

const (

	// Default base image: CA certificates, tzdata and nothing else.
	DefaultBase = "cgr.dev/chainguard/static:latest"

	// Default location of the binary inside the image.
	DefaultBinaryPath = "/bin/yakup"
)

// Supplies the executable to package for a target.
type Binaries interface {
	Binary(ctx context.Context, target platform.Target) ([]byte, error)
}

// Controls a [Builder].
type Options struct {
	Base       string          // Base image reference; defaults to DefaultBase.
	BinaryPath string          // Absolute path of the binary in the image; defaults to DefaultBinaryPath.
	Table      platform.Table  // Platforms and their target triples.
	Host       string          // Platform used when none is requested.
	Remote     []remote.Option // Extra registry options (transport, auth).
}

// Assembles single-platform images.
type Builder struct {
	binaries Binaries
	opts     Options
}

// A single-platform image.
type Image struct {
	Target platform.Target // Platform and triple the image was built for.
	Image  v1.Image        // The assembled image.
	Digest v1.Hash         // Manifest digest.
}

// Creates a builder packaging binaries from binaries.
func NewBuilder(binaries Binaries, opts Options) *Builder {
	if opts.Base == "" {
		opts.Base = DefaultBase
	}
	if opts.BinaryPath == "" {
		opts.BinaryPath = DefaultBinaryPath
	}
	if opts.Table == nil {
		opts.Table = platform.Default()
	}
	opts.Table = opts.Table.Clone()
	if opts.Host == "" {
		opts.Host = platform.Host()
	}
	return &Builder{binaries: binaries, opts: opts}
}

// Builds the image for a platform.
//
// An empty platform selects the host. The platform must resolve through the
// table. The base image's manifest for the platform is fetched, one layer
// with the binary (mode 0755) is appended, and the entrypoint and working
// directory are set to the binary and its directory. Image assembly does not
// depend on the host's architecture.
func (b *Builder) Build(ctx context.Context, p string) (*Image, error) {
	if p == "" {
		p = b.opts.Host
	}
	target, err := b.opts.Table.Resolve(p)
	if err != nil {
		return nil, err
	}

	plat, err := v1.ParsePlatform(target.Platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImage, err)
	}

	bin, err := b.binaries.Binary(ctx, target)
	if err != nil {
		return nil, err
	}

	base, err := b.base(ctx, *plat)
	if err != nil {
		return nil, err
	}

	img, err := b.assemble(base, *plat, bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImage, target.Platform, err)
	}

	digest, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImage, target.Platform, err)
	}

	slog.Info("image built", "platform", target.Platform, "digest", digest)
	return &Image{Target: target, Image: img, Digest: digest}, nil
}

// Fetches the base image for a platform.
func (b *Builder) base(ctx context.Context, plat v1.Platform) (v1.Image, error) {
	ref, err := name.ParseReference(b.opts.Base)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrReference, b.opts.Base, err)
	}

	opts := append([]remote.Option{
		remote.WithContext(ctx),
		remote.WithPlatform(plat),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	}, b.opts.Remote...)

	img, err := remote.Image(ref, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: base %s: %w", ErrImage, ref, err)
	}
	return img, nil
}

// Adds the binary layer and runtime configuration to base.
func (b *Builder) assemble(base v1.Image, plat v1.Platform, bin []byte) (v1.Image, error) {
	layer, err := binaryLayer(b.opts.BinaryPath, bin)
	if err != nil {
		return nil, err
	}

	img, err := mutate.AppendLayers(base, layer)
	if err != nil {
		return nil, err
	}

	cf, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	cf = cf.DeepCopy()

	cf.OS = plat.OS
	cf.Architecture = plat.Architecture
	cf.Variant = plat.Variant
	cf.Config.Entrypoint = []string{b.opts.BinaryPath}
	cf.Config.Cmd = nil
	cf.Config.WorkingDir = path.Dir(b.opts.BinaryPath)

	return mutate.ConfigFile(img, cf)
}

// Returns a layer holding data as an executable at p, with explicit entries
// for its parent directories. The layer is byte-for-byte reproducible.
func binaryLayer(p string, data []byte) (v1.Layer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	epoch := time.Unix(0, 0).UTC()

	rel := strings.TrimPrefix(path.Clean(p), "/")
	var dirs []string
	for d := path.Dir(rel); d != "."; d = path.Dir(d) {
		dirs = append([]string{d}, dirs...)
	}

	for _, d := range dirs {
		if err := tw.WriteHeader(&tar.Header{
			Name:     d + "/",
			Typeflag: tar.TypeDir,
			Mode:     0o755,
			ModTime:  epoch,
		}); err != nil {
			return nil, err
		}
	}

	if err := tw.WriteHeader(&tar.Header{
		Name:     rel,
		Typeflag: tar.TypeReg,
		Mode:     0o755,
		Size:     int64(len(data)),
		ModTime:  epoch,
	}); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	layerBytes := buf.Bytes()
	return tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(layerBytes)), nil
	})
}

// Writes the image as a docker-loadable tarball tagged ref.
func (i *Image) WriteTarball(file, ref string) error {
	tag, err := name.NewTag(ref)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrReference, ref, err)
	}
	if err := tarball.WriteToFile(file, tag, i.Image); err != nil {
		return fmt.Errorf("%w: %w", ErrImage, err)
	}
	return nil
}
