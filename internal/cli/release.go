package cli

import (
	"context"
	"fmt"

	"github.com/mortenlj/yakupci/internal/pipeline"
)

// Flags naming what is released.
type releaseFlags struct {
	Image   string `env:"YAKUPCI_IMAGE" default:"${image}" help:"Image repository." placeholder:"REPO"`
	Version string `env:"YAKUPCI_VERSION" default:"${develop_version}" help:"Version tag."`
}

// Represents the 'yakupci docker' command.
type DockerCmd struct {
	releaseFlags
	Platform string `short:"p" help:"Image platform; defaults to the host platform." placeholder:"OS/ARCH"`
}

// Writes the image tarball and prints its path.
func (c *DockerCmd) Run(ctx context.Context) error {
	return withPipeline(ctx, 0, func(p *pipeline.Pipeline) error {
		file, err := p.Docker(ctx, c.Platform, c.Image, c.Version)
		if err != nil {
			return err
		}
		fmt.Println(file)
		return nil
	})
}

// Represents the 'yakupci assemble-manifests' command.
type AssembleManifestsCmd struct {
	releaseFlags
}

// Writes deploy.yaml and prints its path.
func (c *AssembleManifestsCmd) Run(ctx context.Context) error {
	return withPipeline(ctx, 0, func(p *pipeline.Pipeline) error {
		file, err := p.AssembleManifests(c.Image, c.Version)
		if err != nil {
			return err
		}
		fmt.Println(file)
		return nil
	})
}

// Represents the 'yakupci publish' command.
type PublishCmd struct {
	releaseFlags
	Jobs int `short:"j" default:"${jobs}" help:"Images built at the same time."`
}

// Pushes the image and prints the version and latest references.
func (c *PublishCmd) Run(ctx context.Context) error {
	return withPipeline(ctx, c.Jobs, func(p *pipeline.Pipeline) error {
		published, err := p.Publish(ctx, c.Image, c.Version)
		if err != nil {
			return err
		}
		for _, ref := range published.References() {
			fmt.Println(ref)
		}
		return nil
	})
}

// Represents the 'yakupci assemble' command.
type AssembleCmd struct {
	releaseFlags
	Jobs int `short:"j" default:"${jobs}" help:"Images built at the same time."`
}

// Publishes, collects the artifacts and prints their directory.
func (c *AssembleCmd) Run(ctx context.Context) error {
	return withPipeline(ctx, c.Jobs, func(p *pipeline.Pipeline) error {
		dir, err := p.Assemble(ctx, c.Image, c.Version)
		if err != nil {
			return err
		}
		fmt.Println(dir)
		return nil
	})
}
