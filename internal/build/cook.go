package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mortenlj/yakupci/internal/platform"
	"github.com/mortenlj/yakupci/internal/runtime"
	"github.com/mortenlj/yakupci/internal/source"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// An image holding compiled dependencies for one target.
type Staged struct {
	Image  string          // Name of the committed image.
	Target platform.Target // Target the dependencies were compiled for.
	Recipe *Recipe         // Recipe the dependencies were compiled from.
}

// Compiles the project's dependencies for a target triple.
//
// An empty triple selects the host platform's. The recipe is cooked three
// times, for tests, for clippy and for release, and the result is committed
// under a name derived from the toolchain, the recipe and the triple. An
// existing image with that name is reused. Concurrent calls for the same
// name share one run. Compile failures wrap ErrCompile.
func (b *Builder) Cook(ctx context.Context, src *source.Snapshot, triple string) (*Staged, error) {
	target, err := b.Target(triple)
	if err != nil {
		return nil, err
	}

	tc, err := b.Provision(ctx)
	if err != nil {
		return nil, err
	}

	recipe, err := b.Prepare(ctx, src)
	if err != nil {
		return nil, err
	}

	staged := &Staged{
		Image:  fmt.Sprintf("yakupci/cook:%s-%s", target.Triple, short(cookKey(tc, recipe, target.Triple))),
		Target: target,
		Recipe: recipe,
	}

	_, err, _ = b.group.Do("cook:"+staged.Image, func() (any, error) {
		return nil, b.cook(ctx, tc, staged)
	})
	if err != nil {
		return nil, err
	}
	return staged, nil
}

func (b *Builder) cook(ctx context.Context, tc *Toolchain, staged *Staged) error {
	ok, err := b.engine.HasImage(ctx, staged.Image)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if ok {
		slog.Debug("dependencies cached", "target", staged.Target.Triple, "image", staged.Image)
		return nil
	}

	slog.Info("cooking dependencies", "target", staged.Target.Triple)

	ctr, err := b.engine.Start(ctx, tc.Image, b.containerID("cook", staged.Target.Triple), b.opts.Host)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCompile, err)
	}
	defer ctr.Destroy(context.WithoutCancel(ctx))

	if err := copyFile(ctx, ctr, RecipePath, staged.Recipe.Data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrCompile, err)
	}

	if err := executeSteps(ctx, ctr, cookSteps(staged.Target.Triple), newStepState()); err != nil {
		return fmt.Errorf("%w: %w", ErrCompile, errors.WithMessagef(err, "cook %s", staged.Target.Triple))
	}

	if _, err := ctr.Commit(ctx, staged.Image, runtime.ImageConfig{WorkingDir: SourceDir}); err != nil {
		return fmt.Errorf("%w: %w", ErrCompile, err)
	}

	slog.Info("dependencies cooked", "target", staged.Target.Triple, "image", staged.Image)
	return nil
}

// Returns the three cook passes for triple: tests, clippy, release.
func cookSteps(triple string) []Step {
	cook := func(mode ...string) Step {
		args := []string{"cargo", "chef", "cook", "--recipe-path", RecipePath, "--release"}
		args = append(args, mode...)
		return run(append(args, "--target", triple)...)
	}
	return []Step{
		{Workdir: SourceDir},
		cook("--tests"),
		cook("--clippy"),
		cook(),
	}
}

// Derives the cache key of a cooked image.
func cookKey(tc *Toolchain, recipe *Recipe, triple string) digest.Digest {
	return digest.FromString(tc.Image + "\x00" + recipe.Digest.String() + "\x00" + triple)
}
