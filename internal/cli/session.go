package cli

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mortenlj/yakupci/internal/build"
	"github.com/mortenlj/yakupci/internal/pipeline"
	"github.com/mortenlj/yakupci/internal/platform"
	"github.com/mortenlj/yakupci/internal/runtime"
	"github.com/mortenlj/yakupci/internal/source"
)

// Connects to containerd on first use.
type lazyEngine struct {
	once    sync.Once
	rt      *runtime.Runtime
	engine  build.Engine
	err     error
	connect func() (*runtime.Runtime, error)
}

func (e *lazyEngine) get() (build.Engine, error) {
	e.once.Do(func() {
		e.rt, e.err = e.connect()
		if e.err == nil {
			e.engine = build.NewEngine(e.rt)
		}
	})
	return e.engine, e.err
}

func (e *lazyEngine) Pull(ctx context.Context, ref, platform string) error {
	engine, err := e.get()
	if err != nil {
		return err
	}
	return engine.Pull(ctx, ref, platform)
}

func (e *lazyEngine) HasImage(ctx context.Context, name string) (bool, error) {
	engine, err := e.get()
	if err != nil {
		return false, err
	}
	return engine.HasImage(ctx, name)
}

func (e *lazyEngine) Start(ctx context.Context, image, id, platform string) (build.Container, error) {
	engine, err := e.get()
	if err != nil {
		return nil, err
	}
	return engine.Start(ctx, image, id, platform)
}

// Closes the connection if one was opened.
func (e *lazyEngine) close() {
	if e.rt == nil {
		return
	}
	if err := e.rt.Close(); err != nil {
		slog.Warn("failed to close containerd client", "error", err)
	}
}

// Builds a pipeline from the global flags, runs fn with it and releases the
// containerd connection afterwards.
func withPipeline(ctx context.Context, jobs int, fn func(*pipeline.Pipeline) error) error {
	src, err := source.Open(RootCmd.Source)
	if err != nil {
		return err
	}

	host := RootCmd.Host
	if host == "" {
		host = platform.Host()
	}
	host, err = platform.Normalize(host)
	if err != nil {
		return err
	}

	opts := build.Options{
		Table:   platform.Default(),
		Host:    host,
		Release: RootCmd.ToolchainRelease,
	}
	if opts.Release == "" {
		releases, err := build.NewGitHubReleases(RootCmd.GithubToken, RootCmd.ToolchainConstraint)
		if err != nil {
			return err
		}
		opts.Releases = releases
	}

	engine := &lazyEngine{connect: func() (*runtime.Runtime, error) {
		slog.Debug("connecting to containerd", "address", RootCmd.Address, "namespace", RootCmd.Namespace)
		return runtime.New(RootCmd.Address, RootCmd.Namespace, runtime.WithSnapshotter(RootCmd.Snapshotter))
	}}
	defer engine.close()

	p := pipeline.New(build.New(engine, opts), src, pipeline.Options{
		Output: RootCmd.Output,
		Jobs:   jobs,
		Base:   RootCmd.Base,
	})
	return fn(p)
}
