package cli

import (
	"context"
	"fmt"

	"github.com/mortenlj/yakupci/internal/pipeline"
)

// Represents the 'yakupci prepare' command.
type PrepareCmd struct{}

// Writes recipe.json to the output directory and prints its path.
func (c *PrepareCmd) Run(ctx context.Context) error {
	return withPipeline(ctx, 0, func(p *pipeline.Pipeline) error {
		file, err := p.Prepare(ctx)
		if err != nil {
			return err
		}
		fmt.Println(file)
		return nil
	})
}

// Represents the 'yakupci cook' command.
type CookCmd struct {
	Target string `short:"t" help:"Target triple; defaults to the host platform's." placeholder:"TRIPLE"`
}

// Prints the name of the staged dependency image.
func (c *CookCmd) Run(ctx context.Context) error {
	return withPipeline(ctx, 0, func(p *pipeline.Pipeline) error {
		img, err := p.Cook(ctx, c.Target)
		if err != nil {
			return err
		}
		fmt.Println(img)
		return nil
	})
}

// Represents the 'yakupci project' command.
type ProjectCmd struct {
	Target string `short:"t" help:"Target triple; defaults to the host platform's." placeholder:"TRIPLE"`
}

// Prints the name of the committed project image.
func (c *ProjectCmd) Run(ctx context.Context) error {
	return withPipeline(ctx, 0, func(p *pipeline.Pipeline) error {
		img, err := p.Project(ctx, c.Target)
		if err != nil {
			return err
		}
		fmt.Println(img)
		return nil
	})
}

// Represents the 'yakupci test' command.
type TestCmd struct{}

// Writes junit.xml and prints its path. Failing tests still produce the
// report, but the command fails.
func (c *TestCmd) Run(ctx context.Context) error {
	return withPipeline(ctx, 0, func(p *pipeline.Pipeline) error {
		file, err := p.Test(ctx)
		if file != "" {
			fmt.Println(file)
		}
		return err
	})
}

// Represents the 'yakupci build' command.
type BuildCmd struct {
	Target string `short:"t" help:"Target triple; defaults to the host platform's." placeholder:"TRIPLE"`
}

// Writes the controller binary and prints its path.
func (c *BuildCmd) Run(ctx context.Context) error {
	return withPipeline(ctx, 0, func(p *pipeline.Pipeline) error {
		file, err := p.Build(ctx, c.Target)
		if err != nil {
			return err
		}
		fmt.Println(file)
		return nil
	})
}

// Represents the 'yakupci crd' command.
type CRDCmd struct{}

// Writes application.yaml and prints its path.
func (c *CRDCmd) Run(ctx context.Context) error {
	return withPipeline(ctx, 0, func(p *pipeline.Pipeline) error {
		file, err := p.CRD(ctx)
		if err != nil {
			return err
		}
		fmt.Println(file)
		return nil
	})
}
