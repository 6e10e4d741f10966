package image

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"golang.org/x/sync/errgroup"
)

// Tag every publication is also pushed under.
const LatestTag = "latest"

// Builds the image for one platform.
type Images interface {
	Build(ctx context.Context, platform string) (*Image, error)
}

// A pushed tag pinned to the digest it was pushed with.
type Reference struct {
	Tag    name.Tag
	Digest v1.Hash
}

// Returns "repository:tag@sha256:...".
func (r Reference) String() string {
	return r.Tag.String() + "@" + r.Digest.String()
}

// The references a publication produced.
type Published struct {
	Version Reference // The version tag.
	Latest  Reference // The "latest" tag, same digest as Version.
}

// Returns the references in publication order, version first.
func (p *Published) References() []string {
	return []string{p.Version.String(), p.Latest.String()}
}

// Pushes multi-platform images.
type Publisher struct {
	images    Images
	platforms []string
	jobs      int
	remote    []remote.Option
}

// Creates a publisher building platforms with images, at most jobs at a
// time. A non-positive jobs value removes the bound.
func NewPublisher(images Images, platforms []string, jobs int, opts ...remote.Option) *Publisher {
	return &Publisher{images: images, platforms: platforms, jobs: jobs, remote: opts}
}

// Builds every platform's image and pushes them as one index tagged version
// and "latest".
//
// Platform builds run concurrently; the first failure cancels the rest and
// nothing is pushed. The index is assembled once and written under version,
// then the same manifest is tagged "latest".
func (p *Publisher) Publish(ctx context.Context, repository, version string) (*Published, error) {
	repo, err := name.NewRepository(repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrReference, repository, err)
	}
	versionTag, err := name.NewTag(repo.String() + ":" + version)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %w", ErrReference, version, err)
	}
	latestTag := repo.Tag(LatestTag)

	if len(p.platforms) == 0 {
		return nil, fmt.Errorf("%w: no platforms", ErrPublish)
	}

	images, err := p.build(ctx)
	if err != nil {
		return nil, err
	}

	idx, err := index(images)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	digest, err := idx.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	opts := append([]remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	}, p.remote...)

	slog.Info("pushing image", "tag", versionTag, "platforms", len(images))
	if err := remote.WriteIndex(versionTag, idx, opts...); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPublish, versionTag, err)
	}

	slog.Info("tagging image", "tag", latestTag)
	if err := remote.Tag(latestTag, idx, opts...); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPublish, latestTag, err)
	}

	published := &Published{
		Version: Reference{Tag: versionTag, Digest: digest},
		Latest:  Reference{Tag: latestTag, Digest: digest},
	}
	slog.Info("image published", "version", published.Version, "latest", published.Latest)
	return published, nil
}

// Builds all platforms' images, bounded by jobs, in platform order.
func (p *Publisher) build(ctx context.Context) ([]*Image, error) {
	images := make([]*Image, len(p.platforms))

	g, ctx := errgroup.WithContext(ctx)
	if p.jobs > 0 {
		g.SetLimit(p.jobs)
	}

	for i, plat := range p.platforms {
		g.Go(func() error {
			img, err := p.images.Build(ctx, plat)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrPublish, plat, err)
			}
			images[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// Combines single-platform images into an OCI image index.
func index(images []*Image) (v1.ImageIndex, error) {
	adds := make([]mutate.IndexAddendum, 0, len(images))
	for _, img := range images {
		plat, err := v1.ParsePlatform(img.Target.Platform)
		if err != nil {
			return nil, err
		}
		adds = append(adds, mutate.IndexAddendum{
			Add:        img.Image,
			Descriptor: v1.Descriptor{Platform: plat},
		})
	}

	idx := mutate.IndexMediaType(empty.Index, types.OCIImageIndex)
	return mutate.AppendManifests(idx, adds...), nil
}
