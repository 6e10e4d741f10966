package source

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"time"

	"github.com/go-git/go-billy/v5/util"
)

// Returns the normalized tar mode for a file: 0755 when any execute bit is
// set, 0644 otherwise.
func fileMode(info os.FileInfo) int64 {
	if info.Mode().Perm()&0o111 != 0 {
		return 0o755
	}
	return 0o644
}

// Writes the view as a tar stream.
//
// Entries are sorted, parent directories get explicit headers, and all
// timestamps and ownership are zeroed, so identical views produce identical
// archives.
func (s *Snapshot) WriteTar(w io.Writer) error {
	files, err := s.Files()
	if err != nil {
		return err
	}

	tw := tar.NewWriter(w)

	for _, name := range withParents(files) {
		if err := s.writeTarEntry(tw, name); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrArchive, name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrArchive, err)
	}
	return nil
}

// Writes a single file or directory entry.
func (s *Snapshot) writeTarEntry(tw *tar.Writer, name string) error {
	info, err := s.fs.Stat(name)
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    name,
		ModTime: time.Unix(0, 0).UTC(),
		Format:  tar.FormatPAX,
	}

	if info.IsDir() {
		header.Typeflag = tar.TypeDir
		header.Name += "/"
		header.Mode = 0o755
		return tw.WriteHeader(header)
	}

	b, err := util.ReadFile(s.fs, name)
	if err != nil {
		return err
	}

	header.Typeflag = tar.TypeReg
	header.Mode = fileMode(info)
	header.Size = int64(len(b))

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = tw.Write(b)
	return err
}

// Returns files together with every ancestor directory, sorted.
func withParents(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))

	for _, f := range files {
		for dir := path.Dir(f); dir != "." && !seen[dir]; dir = path.Dir(dir) {
			seen[dir] = true
			out = append(out, dir)
		}
		out = append(out, f)
	}

	slices.Sort(out)
	return out
}
