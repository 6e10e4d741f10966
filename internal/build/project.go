package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mortenlj/yakupci/internal/platform"
	"github.com/mortenlj/yakupci/internal/runtime"
	"github.com/mortenlj/yakupci/internal/source"
)

// A live build container with the current sources on top of cooked
// dependencies.
type Project struct {
	Target platform.Target
	Staged *Staged

	ctr Container
}

// Assembles the project for a target triple.
//
// An empty triple selects the host platform's. The layout's project paths
// are copied over the cooked image every time; only the cooked image is cached.
// The caller must Close the project.
func (b *Builder) Project(ctx context.Context, src *source.Snapshot, triple string) (*Project, error) {
	staged, err := b.Cook(ctx, src, triple)
	if err != nil {
		return nil, err
	}

	ctr, err := b.engine.Start(ctx, staged.Image, b.containerID("project", staged.Target.Triple), b.opts.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	if err := copySource(ctx, ctr, src.Select(b.opts.Layout.ProjectPaths()...), SourceDir); err != nil {
		ctr.Destroy(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	slog.Debug("project assembled", "target", staged.Target.Triple, "base", staged.Image)
	return &Project{Target: staged.Target, Staged: staged, ctr: ctr}, nil
}

// Runs a command in the project's source directory.
func (p *Project) Run(ctx context.Context, args ...string) error {
	return execute(ctx, p.ctr, Step{Run: args, Workdir: SourceDir}, newStepState())
}

// Reads a file relative to the project's source directory.
func (p *Project) ReadFile(ctx context.Context, rel string) ([]byte, error) {
	return p.ctr.ReadFile(ctx, containerPath(rel))
}

// Removes the project container.
func (p *Project) Close(ctx context.Context) {
	p.ctr.Destroy(ctx)
}

// Assembles the project and commits it as an image.
//
// The image is named after the triple and the digest of the selected
// sources. Returns the image name.
func (b *Builder) ProjectImage(ctx context.Context, src *source.Snapshot, triple string) (string, error) {
	p, err := b.Project(ctx, src, triple)
	if err != nil {
		return "", err
	}
	defer p.Close(context.WithoutCancel(ctx))

	key, err := src.Select(b.opts.Layout.ProjectPaths()...).Digest()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompile, err)
	}

	name := fmt.Sprintf("yakupci/project:%s-%s", p.Target.Triple, short(key))
	if _, err := p.ctr.Commit(ctx, name, runtime.ImageConfig{WorkingDir: SourceDir}); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return name, nil
}
