package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mortenlj/yakupci/internal/source"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// Manifest that makes a directory a cargo project.
const workspaceManifest = "Cargo.toml"

// A cargo-chef dependency recipe.
type Recipe struct {
	Data   []byte        // Contents of recipe.json.
	Digest digest.Digest // Digest of Data.
}

// Plans the project's dependency graph.
//
// Only the layout's manifests and modules are copied into a fresh toolchain
// container, where "cargo chef prepare" writes the recipe. Concurrent calls
// for identical inputs share one run. Failures wrap ErrPlan.
func (b *Builder) Prepare(ctx context.Context, src *source.Snapshot) (*Recipe, error) {
	inputs := src.Select(b.opts.Layout.Paths()...)
	if !inputs.Has(workspaceManifest) {
		return nil, fmt.Errorf("%w: no %s in source", ErrPlan, workspaceManifest)
	}

	key, err := inputs.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, err)
	}

	v, err, _ := b.group.Do("prepare:"+key.String(), func() (any, error) {
		return b.prepare(ctx, inputs)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Recipe), nil
}

func (b *Builder) prepare(ctx context.Context, inputs *source.Snapshot) (*Recipe, error) {
	tc, err := b.Provision(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("planning dependencies")

	ctr, err := b.engine.Start(ctx, tc.Image, b.containerID("prepare", "recipe"), b.opts.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, err)
	}
	defer ctr.Destroy(context.WithoutCancel(ctx))

	if err := copySource(ctx, ctr, inputs, SourceDir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, err)
	}

	steps := []Step{
		{Workdir: SourceDir},
		run("cargo", "chef", "prepare", "--recipe-path", RecipePath),
	}
	if err := executeSteps(ctx, ctr, steps, newStepState()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, err)
	}

	data, err := ctr.ReadFile(ctx, RecipePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, errors.WithMessage(err, "read recipe"))
	}

	recipe := &Recipe{Data: data, Digest: digest.FromBytes(data)}
	slog.Debug("recipe planned", "digest", recipe.Digest)
	return recipe, nil
}
