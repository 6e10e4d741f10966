package source

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/opencontainers/go-digest"
)

// Paths that never belong to a build input.
var DefaultExcludes = []string{
	"target/",
	".git/",
	".idea/",
	".vscode/",
	".dagger/",
	"dagger/",
	"dist/",
}

// A filtered, immutable view of a project tree.
type Snapshot struct {
	fs      billy.Filesystem  // Filesystem rooted at the view.
	prefix  []string          // Location of the view within the project, for ignore matching.
	include []string          // Selected paths relative to the view; nil selects everything.
	ignore  gitignore.Matcher // Exclusion rules, keyed on project-relative paths.
}

// Opens the directory at root as a snapshot.
//
// DefaultExcludes, every .gitignore in the tree and the given extra patterns
// are applied, in increasing priority.
func Open(root string, excludes ...string) (*Snapshot, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrOpen, root)
	}
	return New(osfs.New(root), excludes...)
}

// Creates a snapshot over an existing filesystem.
func New(fs billy.Filesystem, excludes ...string) (*Snapshot, error) {
	patterns := parsePatterns(DefaultExcludes)

	found, err := gitignore.ReadPatterns(fs, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	patterns = append(patterns, found...)
	patterns = append(patterns, parsePatterns(excludes)...)

	return &Snapshot{fs: fs, ignore: gitignore.NewMatcher(patterns)}, nil
}

// Parses root-level gitignore patterns.
func parsePatterns(lines []string) []gitignore.Pattern {
	ps := make([]gitignore.Pattern, 0, len(lines))
	for _, l := range lines {
		ps = append(ps, gitignore.ParsePattern(l, nil))
	}
	return ps
}

// Returns a view rooted at dir.
//
// Fails with ErrRead if dir does not exist or is excluded.
func (s *Snapshot) Sub(dir string) (*Snapshot, error) {
	dir = clean(dir)
	if s.excluded(dir, true) || !(s.selected(dir) || s.selectedAncestor(dir)) {
		return nil, fmt.Errorf("%w: %s is excluded", ErrRead, dir)
	}

	info, err := s.fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRead, dir)
	}

	fs, err := s.fs.Chroot(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	return &Snapshot{
		fs:      fs,
		prefix:  append(slices.Clone(s.prefix), strings.Split(dir, "/")...),
		include: narrow(s.include, dir),
		ignore:  s.ignore,
	}, nil
}

// Returns a view containing only the given files and directories.
//
// Paths that do not exist are ignored. Selecting from an already narrowed
// view intersects the two selections.
func (s *Snapshot) Select(paths ...string) *Snapshot {
	include := make([]string, 0, len(paths))
	for _, p := range paths {
		p = clean(p)
		switch {
		case s.selected(p):
			include = append(include, p)
		case s.selectedAncestor(p):
			for _, q := range s.include {
				if strings.HasPrefix(q, p+"/") {
					include = append(include, q)
				}
			}
		}
	}
	slices.Sort(include)

	return &Snapshot{
		fs:      s.fs,
		prefix:  s.prefix,
		include: slices.Compact(include),
		ignore:  s.ignore,
	}
}

// Returns the slash-separated paths of all regular files in the view, sorted.
func (s *Snapshot) Files() ([]string, error) {
	var files []string

	err := util.Walk(s.fs, "", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := filepath.ToSlash(p)
		if rel == "" || rel == "." || rel == "/" {
			return nil
		}
		rel = strings.TrimPrefix(rel, "/")

		if info.IsDir() {
			if s.excluded(rel, true) || !(s.selected(rel) || s.selectedAncestor(rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode().IsRegular() && !s.excluded(rel, false) && s.selected(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	slices.Sort(files)
	return files, nil
}

// Returns the names of the regular files directly inside dir, sorted.
func (s *Snapshot) Entries(dir string) ([]string, error) {
	dir = clean(dir)

	infos, err := s.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	var names []string
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		rel := path.Join(dir, info.Name())
		if s.excluded(rel, false) || !s.selected(rel) {
			continue
		}
		names = append(names, info.Name())
	}

	slices.Sort(names)
	return names, nil
}

// Reports whether name is a visible regular file of the view.
func (s *Snapshot) Has(name string) bool {
	name = clean(name)
	if s.excluded(name, false) || !s.selected(name) {
		return false
	}
	info, err := s.fs.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

// Reads a file of the view.
func (s *Snapshot) ReadFile(name string) ([]byte, error) {
	name = clean(name)
	if s.excluded(name, false) || !s.selected(name) {
		return nil, fmt.Errorf("%w: %s is excluded", ErrRead, name)
	}
	b, err := util.ReadFile(s.fs, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return b, nil
}

// Computes a content digest over the view.
//
// The digest covers every file's path, executable bit and contents, so two
// views with the same files produce the same digest regardless of where
// they live on disk.
func (s *Snapshot) Digest() (digest.Digest, error) {
	files, err := s.Files()
	if err != nil {
		return "", err
	}

	d := digest.Canonical.Digester()
	h := d.Hash()

	for _, name := range files {
		info, err := s.fs.Stat(name)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrRead, err)
		}
		b, err := util.ReadFile(s.fs, name)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrRead, err)
		}
		fmt.Fprintf(h, "%s\x00%o\x00%d\x00", name, fileMode(info), len(b))
		h.Write(b)
	}

	return d.Digest(), nil
}

// Reports whether a view-relative path is excluded by the ignore rules.
func (s *Snapshot) excluded(rel string, isDir bool) bool {
	if rel == "" {
		return false
	}
	parts := append(slices.Clone(s.prefix), strings.Split(rel, "/")...)
	return s.ignore.Match(parts, isDir)
}

// Reports whether a view-relative path is inside the selection.
func (s *Snapshot) selected(rel string) bool {
	if s.include == nil || rel == "" {
		return true
	}
	for _, p := range s.include {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// Reports whether a directory contains part of the selection.
func (s *Snapshot) selectedAncestor(dir string) bool {
	if s.include == nil {
		return true
	}
	for _, p := range s.include {
		if strings.HasPrefix(p, dir+"/") {
			return true
		}
	}
	return false
}

// Rebases a selection onto a subdirectory.
func narrow(include []string, dir string) []string {
	if include == nil {
		return nil
	}
	out := []string{}
	for _, p := range include {
		switch {
		case p == dir || strings.HasPrefix(dir, p+"/"):
			return nil
		case strings.HasPrefix(p, dir+"/"):
			out = append(out, strings.TrimPrefix(p, dir+"/"))
		}
	}
	return out
}

// Normalizes a view-relative path to slash form without leading "./" or "/".
func clean(p string) string {
	p = path.Clean("/" + filepath.ToSlash(p))
	return strings.TrimPrefix(p, "/")
}
