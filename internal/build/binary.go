package build

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/mortenlj/yakupci/internal/platform"
	"github.com/mortenlj/yakupci/internal/source"
)

// Name of the binary the pipeline ships.
const ControllerBin = "controller"

// A compiled executable.
type Binary struct {
	Target platform.Target
	Name   string
	Data   []byte
}

// Compiles the controller for a target triple.
//
// An empty triple selects the host platform's. Failures wrap ErrCompile.
func (b *Builder) Build(ctx context.Context, src *source.Snapshot, triple string) (*Binary, error) {
	p, err := b.Project(ctx, src, triple)
	if err != nil {
		return nil, err
	}
	defer p.Close(context.WithoutCancel(ctx))

	t := p.Target.Triple
	slog.Info("building", "bin", ControllerBin, "target", t)

	if err := p.Run(ctx, "cargo", "build", "--release", "--bin", ControllerBin, "--target", t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	data, err := p.ReadFile(ctx, path.Join("target", t, "release", ControllerBin))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	slog.Debug("built", "bin", ControllerBin, "target", t, "size", len(data))
	return &Binary{Target: p.Target, Name: ControllerBin, Data: data}, nil
}
