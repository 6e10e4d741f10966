package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
)

// Creates a directory and its parents inside the container.
func (c *Container) MkdirAll(ctx context.Context, dir string) error {
	return c.run(ctx, nil, nil, "mkdir", "-p", dir)
}

// Extracts a tar stream into dir inside the container.
//
// dir is created first. Existing files are overwritten.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, dir string) error {
	if err := c.MkdirAll(ctx, dir); err != nil {
		return err
	}
	return c.run(ctx, r, nil, "tar", "-x", "-f", "-", "-C", dir)
}

// Archives a file or directory of the container into w as a tar stream.
//
// Entries are named relative to the parent of p.
func (c *Container) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	return c.run(ctx, nil, w, "tar", "-c", "-f", "-", "-C", path.Dir(p), path.Base(p))
}

// Returns the contents of a regular file inside the container.
func (c *Container) ReadFile(ctx context.Context, p string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.CopyFrom(ctx, &buf, p); err != nil {
		return nil, err
	}
	return firstFile(&buf, path.Base(p))
}

// Returns the contents of the tar entry called name.
func firstFile(r io.Reader, name string) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: %s not found in archive", ErrRuntime, name)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
		}
		if path.Clean(hdr.Name) != name {
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			return nil, fmt.Errorf("%w: %s is not a regular file", ErrRuntime, name)
		}
		return io.ReadAll(tr)
	}
}

// Runs a helper command and turns a non-zero exit into ErrRuntime carrying
// the command's stderr.
func (c *Container) run(ctx context.Context, stdin io.Reader, stdout io.Writer, args ...string) error {
	exitCode, stderr, err := c.execCommand(ctx, stdin, stdout, nil, "", args...)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: %s exited with code %d: %s", ErrRuntime, args[0], exitCode, stderr)
	}
	return nil
}
