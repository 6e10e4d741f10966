package build

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mortenlj/yakupci/internal/platform"
	"github.com/mortenlj/yakupci/internal/source"
	"golang.org/x/sync/singleflight"
)

// Controls a [Builder].
type Options struct {
	Table         platform.Table  // Platforms and their target triples.
	Host          string          // Platform build containers run as.
	Layout        Layout          // Parts of the project tree to build.
	ToolchainBase string          // Toolchain base image without tag; defaults to DefaultToolchainBase.
	Release       string          // Pinned toolchain release; empty resolves one.
	Releases      ReleaseResolver // Resolves the release when none is pinned.
}

// Runs the build stages for one project.
type Builder struct {
	engine   Engine
	opts     Options
	releases ReleaseResolver
	group    singleflight.Group // Deduplicates toolchain, recipe and cook work.
	seq      atomic.Uint64      // Container ID sequence.
}

// Creates a builder running containers on engine.
func New(engine Engine, opts Options) *Builder {
	if opts.Table == nil {
		opts.Table = platform.Default()
	}
	opts.Table = opts.Table.Clone()
	if opts.Host == "" {
		opts.Host = platform.Host()
	}
	if len(opts.Layout.Manifests) == 0 && len(opts.Layout.Modules) == 0 {
		opts.Layout = DefaultLayout()
	}
	if opts.ToolchainBase == "" {
		opts.ToolchainBase = DefaultToolchainBase
	}

	releases := opts.Releases
	if releases == nil {
		releases = pinnedRelease(opts.Release)
	}

	return &Builder{engine: engine, opts: opts, releases: releases}
}

// Returns the platform table.
func (b *Builder) Table() platform.Table {
	return b.opts.Table
}

// Returns the host platform.
func (b *Builder) Host() string {
	return b.opts.Host
}

// Resolves a target triple, defaulting to the host platform's.
//
// Unknown triples and an unmapped host fail with
// platform.ErrUndefinedTarget.
func (b *Builder) Target(triple string) (platform.Target, error) {
	if triple == "" {
		return b.opts.Table.Resolve(b.opts.Host)
	}
	return b.opts.Table.Lookup(triple)
}

// Returns a container ID unique within this process and across concurrent
// processes.
func (b *Builder) containerID(stage, qualifier string) string {
	return fmt.Sprintf("yakupci-%s-%s-%d-%d", stage, qualifier, os.Getpid(), b.seq.Add(1))
}

// Streams a source view into dir of the container.
func copySource(ctx context.Context, ctr Container, snap *source.Snapshot, dir string) error {
	pr, pw := io.Pipe()

	go func() {
		pw.CloseWithError(snap.WriteTar(pw))
	}()

	err := ctr.CopyTo(ctx, pr, dir)
	pr.Close()
	return err
}

// Writes a single file into the container.
func copyFile(ctx context.Context, ctr Container, dest string, data []byte, mode int64) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := tw.WriteHeader(&tar.Header{
		Name:     path.Base(dest),
		Mode:     mode,
		Size:     int64(len(data)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	})
	if err == nil {
		_, err = tw.Write(data)
	}
	if err == nil {
		err = tw.Close()
	}
	if err != nil {
		return err
	}

	return ctr.CopyTo(ctx, &buf, path.Dir(dest))
}

// A resolver that always returns the same release.
type pinnedRelease string

func (p pinnedRelease) Resolve(context.Context) (string, error) {
	if strings.TrimSpace(string(p)) == "" {
		return "", fmt.Errorf("%w: no release pinned and no resolver configured", ErrRelease)
	}
	return string(p), nil
}
