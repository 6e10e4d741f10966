package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/mortenlj/yakupci/internal/build"
	"github.com/mortenlj/yakupci/internal/image"
	"github.com/mortenlj/yakupci/internal/manifest"
	"github.com/mortenlj/yakupci/internal/paths"
	"github.com/mortenlj/yakupci/internal/platform"
	"github.com/mortenlj/yakupci/internal/source"
)

const (

	// Repository images are published to by default.
	DefaultImage = "ttl.sh/mortenlj-yakup"

	// Version published by default.
	DefaultVersion = "0.1.0-develop"

	// Default output directory.
	DefaultOutput = "dist"

	// Default bound on concurrent image builds.
	DefaultJobs = 2
)

// Artifact file names.
const (
	RecipeFile      = "recipe.json"
	ReportFile      = "junit.xml"
	CRDFile         = "application.yaml"
	DeployFile      = "deploy.yaml"
	ImageFile       = "image.tar"
	ImageTagsFile   = "image_tags.txt"
	AssembleDir     = "assemble"
	assembleStaging = ".assemble-*"
)

// The build stages the pipeline drives.
type Builds interface {
	Table() platform.Table
	Host() string
	Prepare(ctx context.Context, src *source.Snapshot) (*build.Recipe, error)
	Cook(ctx context.Context, src *source.Snapshot, triple string) (*build.Staged, error)
	ProjectImage(ctx context.Context, src *source.Snapshot, triple string) (string, error)
	Test(ctx context.Context, src *source.Snapshot) (*build.TestReport, error)
	Build(ctx context.Context, src *source.Snapshot, triple string) (*build.Binary, error)
	CRD(ctx context.Context, src *source.Snapshot) ([]byte, error)
}

// Controls a [Pipeline].
type Options struct {
	Output string          // Artifact directory; defaults to DefaultOutput.
	Jobs   int             // Concurrent image builds; defaults to DefaultJobs.
	Base   string          // Runtime base image; defaults to image.DefaultBase.
	Remote []remote.Option // Extra registry options.
}

// Runs stages against one source snapshot.
type Pipeline struct {
	builds Builds
	src    *source.Snapshot
	opts   Options
	images *image.Builder
}

// Creates a pipeline building src with builds.
func New(builds Builds, src *source.Snapshot, opts Options) *Pipeline {
	if opts.Output == "" {
		opts.Output = DefaultOutput
	}
	if opts.Jobs <= 0 {
		opts.Jobs = DefaultJobs
	}

	p := &Pipeline{builds: builds, src: src, opts: opts}
	p.images = image.NewBuilder(binaries{p}, image.Options{
		Base:   opts.Base,
		Table:  builds.Table(),
		Host:   builds.Host(),
		Remote: opts.Remote,
	})
	return p
}

// Writes the dependency recipe. Returns its path.
func (p *Pipeline) Prepare(ctx context.Context) (string, error) {
	recipe, err := p.builds.Prepare(ctx, p.src)
	if err != nil {
		return "", err
	}
	return p.write(RecipeFile, recipe.Data, paths.DefaultFileMode)
}

// Stages the dependencies for a triple. Returns the staged image name.
func (p *Pipeline) Cook(ctx context.Context, triple string) (string, error) {
	staged, err := p.builds.Cook(ctx, p.src, triple)
	if err != nil {
		return "", err
	}
	return staged.Image, nil
}

// Assembles the project for a triple. Returns the project image name.
func (p *Pipeline) Project(ctx context.Context, triple string) (string, error) {
	return p.builds.ProjectImage(ctx, p.src, triple)
}

// Lints and tests the project and writes the JUnit report.
//
// The report is written whenever one was produced, including when tests
// fail; the test error is returned after the report is on disk.
func (p *Pipeline) Test(ctx context.Context) (string, error) {
	report, testErr := p.builds.Test(ctx, p.src)
	if report == nil {
		return "", testErr
	}

	file, err := p.write(ReportFile, report.Raw, paths.DefaultFileMode)
	if err != nil {
		return "", err
	}
	for _, name := range report.Failed {
		slog.Warn("test failed", "test", name)
	}
	return file, testErr
}

// Compiles the controller for a triple. Returns the binary's path.
func (p *Pipeline) Build(ctx context.Context, triple string) (string, error) {
	bin, err := p.builds.Build(ctx, p.src, triple)
	if err != nil {
		return "", err
	}
	return p.write(filepath.Join(bin.Target.Triple, bin.Name), bin.Data, paths.ExecutableMode)
}

// Builds the image for a platform and writes it as a tarball tagged
// repository:version. Returns the tarball's path.
func (p *Pipeline) Docker(ctx context.Context, plat, repository, version string) (string, error) {
	img, err := p.images.Build(ctx, plat)
	if err != nil {
		return "", err
	}

	file := filepath.Join(p.opts.Output, platform.Slug(img.Target.Platform), ImageFile)
	if err := os.MkdirAll(filepath.Dir(file), paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrOutput, err)
	}
	if err := img.WriteTarball(file, repository+":"+version); err != nil {
		return "", err
	}

	slog.Info("artifact written", "path", file)
	return file, nil
}

// Generates the custom resource definition. Returns its path.
func (p *Pipeline) CRD(ctx context.Context) (string, error) {
	data, err := p.builds.CRD(ctx, p.src)
	if err != nil {
		return "", err
	}
	return p.write(CRDFile, data, paths.DefaultFileMode)
}

// Assembles the deployment document. Returns its path.
func (p *Pipeline) AssembleManifests(repository, version string) (string, error) {
	doc, err := manifest.Assemble(p.src, manifest.Variables{Image: repository, Version: version})
	if err != nil {
		return "", err
	}
	return p.write(DeployFile, doc, paths.DefaultFileMode)
}

// Builds and pushes the multi-platform image tagged version and latest.
//
// The platform set is every platform of the table plus the host.
func (p *Pipeline) Publish(ctx context.Context, repository, version string) (*image.Published, error) {
	plats := p.builds.Table().With(p.builds.Host())
	return image.NewPublisher(p.images, plats, p.opts.Jobs, p.opts.Remote...).Publish(ctx, repository, version)
}

// Writes data to a file below the output directory. Returns its path.
func (p *Pipeline) write(name string, data []byte, mode os.FileMode) (string, error) {
	file := filepath.Join(p.opts.Output, name)
	if err := writeFile(file, data, mode); err != nil {
		return "", err
	}
	slog.Info("artifact written", "path", file)
	return file, nil
}

func writeFile(file string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(file), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	if err := os.WriteFile(file, data, mode); err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	// WriteFile leaves the mode of existing files alone.
	if err := os.Chmod(file, mode); err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	return nil
}

// Feeds controller binaries to the image builder.
type binaries struct {
	p *Pipeline
}

func (b binaries) Binary(ctx context.Context, target platform.Target) ([]byte, error) {
	bin, err := b.p.builds.Build(ctx, b.p.src, target.Triple)
	if err != nil {
		return nil, err
	}
	return bin.Data, nil
}
