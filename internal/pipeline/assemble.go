package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mortenlj/yakupci/internal/manifest"
	"github.com/mortenlj/yakupci/internal/paths"
	"golang.org/x/sync/errgroup"
)

// Publishes the image and collects the release artifacts.
//
// Publishing, CRD generation and manifest assembly run concurrently. Their
// outputs are written to a staging directory that replaces the assemble
// directory only once all three have succeeded; on failure the previous
// assemble directory is left untouched. Returns the assemble directory.
func (p *Pipeline) Assemble(ctx context.Context, repository, version string) (string, error) {
	if err := os.MkdirAll(p.opts.Output, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrOutput, err)
	}
	staging, err := os.MkdirTemp(p.opts.Output, assembleStaging)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOutput, err)
	}
	defer os.RemoveAll(staging)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		published, err := p.Publish(ctx, repository, version)
		if err != nil {
			return err
		}
		tags := strings.Join(published.References(), "\n") + "\n"
		return writeFile(filepath.Join(staging, ImageTagsFile), []byte(tags), paths.DefaultFileMode)
	})

	g.Go(func() error {
		data, err := p.builds.CRD(ctx, p.src)
		if err != nil {
			return err
		}
		return writeFile(filepath.Join(staging, CRDFile), data, paths.DefaultFileMode)
	})

	g.Go(func() error {
		doc, err := manifest.Assemble(p.src, manifest.Variables{Image: repository, Version: version})
		if err != nil {
			return err
		}
		return writeFile(filepath.Join(staging, DeployFile), doc, paths.DefaultFileMode)
	})

	if err := g.Wait(); err != nil {
		return "", err
	}

	dir := filepath.Join(p.opts.Output, AssembleDir)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("%w: %w", ErrOutput, err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return "", fmt.Errorf("%w: %w", ErrOutput, err)
	}
	// MkdirTemp creates the directory 0700.
	if err := os.Chmod(dir, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrOutput, err)
	}

	slog.Info("artifacts assembled", "path", dir)
	return dir, nil
}
