package cli

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/mortenlj/yakupci/internal"
	"github.com/mortenlj/yakupci/internal/image"
	"github.com/mortenlj/yakupci/internal/pipeline"
	"github.com/mortenlj/yakupci/internal/runtime"
)

// Represents the root command of the yakupci pipeline.
var RootCmd struct {
	Quiet               bool   `short:"q" env:"YAKUPCI_QUIET" help:"Suppress informational output."`
	Verbose             bool   `short:"v" env:"YAKUPCI_VERBOSE" help:"Echo the output of build commands."`
	Debug               bool   `short:"d" env:"YAKUPCI_DEBUG" help:"Enable debug output."`
	Source              string `short:"C" env:"YAKUPCI_SOURCE" default:"." type:"existingdir" help:"Project source directory." placeholder:"DIR"`
	Output              string `short:"o" env:"YAKUPCI_OUTPUT" default:"${output}" help:"Directory artifacts are written to." placeholder:"DIR"`
	Address             string `env:"YAKUPCI_ADDRESS" default:"${address}" help:"containerd socket." placeholder:"PATH"`
	Namespace           string `env:"YAKUPCI_NAMESPACE" default:"${namespace}" help:"containerd namespace."`
	Snapshotter         string `env:"YAKUPCI_SNAPSHOTTER" default:"${snapshotter}" help:"containerd snapshotter."`
	Host                string `env:"YAKUPCI_HOST" help:"Host platform; defaults to the platform yakupci runs on." placeholder:"OS/ARCH"`
	ToolchainRelease    string `env:"YAKUPCI_TOOLCHAIN_RELEASE" help:"Rust release to build with; resolved from GitHub when empty." placeholder:"VERSION"`
	ToolchainConstraint string `env:"YAKUPCI_TOOLCHAIN_CONSTRAINT" help:"Semver range the resolved Rust release must satisfy." placeholder:"RANGE"`
	GithubToken         string `env:"YAKUPCI_GITHUB_TOKEN,GITHUB_TOKEN" help:"GitHub token for release lookups."`
	Base                string `env:"YAKUPCI_BASE" default:"${base}" help:"Base image of the runtime image." placeholder:"REF"`

	Prepare           PrepareCmd           `cmd:"" help:"Write the dependency recipe."`
	Cook              CookCmd              `cmd:"" help:"Compile dependencies for a target."`
	Project           ProjectCmd           `cmd:"" help:"Assemble the project for a target."`
	Test              TestCmd              `cmd:"" help:"Lint and test the project."`
	Build             BuildCmd             `cmd:"" help:"Compile the controller for a target."`
	Docker            DockerCmd            `cmd:"" help:"Build the runtime image for a platform."`
	CRD               CRDCmd               `cmd:"" name:"crd" help:"Generate the custom resource definition."`
	AssembleManifests AssembleManifestsCmd `cmd:"" help:"Assemble the deployment document."`
	Publish           PublishCmd           `cmd:"" help:"Build and push the multi-platform image."`
	Assemble          AssembleCmd          `cmd:"" help:"Publish and collect the release artifacts."`
	Version           VersionCmd           `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Builds, tests and publishes the yakup controller.\n\nBuild steps run in containerd containers; images are pushed with the registry API."),
		kong.UsageOnError(),
		defaults(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Returns the interpolation variables for flag defaults.
func defaults() kong.Vars {
	return kong.Vars{
		"version":         internal.VersionString(),
		"output":          pipeline.DefaultOutput,
		"address":         runtime.DefaultAddress,
		"namespace":       runtime.DefaultNamespace,
		"snapshotter":     runtime.DefaultSnapshotter,
		"base":            image.DefaultBase,
		"image":           pipeline.DefaultImage,
		"develop_version": pipeline.DefaultVersion,
		"jobs":            strconv.Itoa(pipeline.DefaultJobs),
	}
}

// Applies the mode flags and recomputes the shared log level.
func configureLogger() {
	if RootCmd.Quiet {
		internal.SetQuiet(true)
	}
	if RootCmd.Debug {
		internal.SetDebug(true)
	}
	if RootCmd.Verbose {
		internal.SetVerbose(true)
	}
	internal.SyncLogLevel()
}
