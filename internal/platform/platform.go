package platform

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/containerd/platforms"
)

// A platform resolved to the target triple it is compiled for.
type Target struct {
	Platform string // Normalized platform identifier, e.g. "linux/amd64".
	Triple   string // Rust target triple, e.g. "x86_64-unknown-linux-musl".
}

// Maps normalized platform identifiers to target triples.
type Table map[string]string

// Returns the table of platforms the pipeline supports out of the box.
func Default() Table {
	return Table{
		"linux/amd64": "x86_64-unknown-linux-musl",
		"linux/arm64": "aarch64-unknown-linux-musl",
	}
}

// Canonicalizes a platform identifier.
//
// Architecture aliases are folded ("aarch64" becomes "arm64", "x86_64"
// becomes "amd64"). Identifiers without an OS component are rejected since
// the table is keyed on "os/arch".
func Normalize(p string) (string, error) {
	if !strings.Contains(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlatform, p)
	}
	spec, err := platforms.Parse(p)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidPlatform, p, err)
	}
	return platforms.Format(platforms.Normalize(spec)), nil
}

// Resolves a platform to its target.
//
// Fails with ErrInvalidPlatform if the identifier cannot be parsed and with
// ErrUndefinedTarget if the table has no entry for it.
func (t Table) Resolve(p string) (Target, error) {
	key, err := Normalize(p)
	if err != nil {
		return Target{}, err
	}
	triple, ok := t[key]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrUndefinedTarget, key)
	}
	return Target{Platform: key, Triple: triple}, nil
}

// Finds the platform that compiles to the given triple.
//
// Fails with ErrUndefinedTarget if no entry maps to it.
func (t Table) Lookup(triple string) (Target, error) {
	for _, p := range t.Platforms() {
		if t[p] == triple {
			return Target{Platform: p, Triple: triple}, nil
		}
	}
	return Target{}, fmt.Errorf("%w: triple %s", ErrUndefinedTarget, triple)
}

// Returns the table's platforms in sorted order.
func (t Table) Platforms() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Returns the table's triples in platform order.
func (t Table) Triples() []string {
	ps := t.Platforms()
	triples := make([]string, 0, len(ps))
	for _, p := range ps {
		triples = append(triples, t[p])
	}
	return triples
}

// Returns the table's platforms together with host, deduplicated and sorted.
//
// The host is normalized first; an unparseable host is kept verbatim so that
// resolution fails loudly later instead of the platform silently vanishing.
func (t Table) With(host string) []string {
	set := t.Platforms()
	if key, err := Normalize(host); err == nil {
		host = key
	}
	if host != "" && !slices.Contains(set, host) {
		set = append(set, host)
		slices.Sort(set)
	}
	return set
}

// Returns a copy of the table.
func (t Table) Clone() Table {
	c := make(Table, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// Returns the default container platform of this machine, as "os/arch".
//
// Build containers always run Linux, so the OS component is fixed.
func Host() string {
	spec := platforms.Normalize(platforms.DefaultSpec())
	spec.OS = "linux"
	if spec.Architecture == "" {
		spec.Architecture = runtime.GOARCH
	}
	return platforms.Format(spec)
}

// Turns a platform identifier into a path- and tag-safe string.
//
//	Slug("linux/arm64/v8") // linux-arm64-v8
func Slug(p string) string {
	return strings.ReplaceAll(p, "/", "-")
}
