package build

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v66/github"
	"github.com/mortenlj/yakupci/internal/paths"
)

const (

	// Repository whose releases name the toolchain image tags.
	releaseOwner = "rust-lang"
	releaseRepo  = "rust"

	// How long a resolved release is reused before asking GitHub again.
	DefaultReleaseTTL = 24 * time.Hour

	// Upper bound on release list pages fetched per lookup.
	maxReleasePages = 3
)

// Picks the toolchain release to build on.
type ReleaseResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Resolves the newest stable Rust release from GitHub.
//
// The result is recorded in a cache file and reused until it is older than
// TTL. A stale record is used as a fallback when GitHub cannot be reached.
type GitHubReleases struct {
	Client     *github.Client      // GitHub API client.
	Constraint *semver.Constraints // Acceptable versions; nil accepts any stable release.
	CachePath  string              // Cache record; empty disables caching.
	TTL        time.Duration       // Lifetime of a cache record.

	now func() time.Time
}

// Cache record of a resolved release.
type releaseRecord struct {
	Release    string    `json:"release"`
	Constraint string    `json:"constraint,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Creates a resolver using the default cache location.
//
// token authenticates API requests when non-empty. constraint is a semver
// range such as "~1.83"; empty accepts every stable release.
func NewGitHubReleases(token, constraint string) (*GitHubReleases, error) {
	r := &GitHubReleases{
		Client:    github.NewClient(nil),
		CachePath: paths.ToolchainRelease(),
		TTL:       DefaultReleaseTTL,
	}
	if token != "" {
		r.Client = r.Client.WithAuthToken(token)
	}
	if constraint != "" {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return nil, fmt.Errorf("%w: constraint %q: %w", ErrRelease, constraint, err)
		}
		r.Constraint = c
	}
	return r, nil
}

// Returns the newest stable release tag satisfying the constraint.
func (r *GitHubReleases) Resolve(ctx context.Context) (string, error) {
	cached, fresh := r.load()
	if fresh {
		slog.Debug("toolchain release cached", "release", cached.Release, "resolved_at", cached.ResolvedAt)
		return cached.Release, nil
	}

	release, err := r.fetch(ctx)
	if err != nil {
		if cached != nil {
			slog.Warn("using stale toolchain release", "release", cached.Release, "error", err)
			return cached.Release, nil
		}
		return "", err
	}

	r.store(release)
	slog.Debug("toolchain release resolved", "release", release)
	return release, nil
}

// Lists releases and selects the highest matching stable version.
func (r *GitHubReleases) fetch(ctx context.Context) (string, error) {
	var best *semver.Version
	var bestTag string

	opts := &github.ListOptions{PerPage: 100}
	for page := 0; page < maxReleasePages; page++ {
		releases, resp, err := r.Client.Repositories.ListReleases(ctx, releaseOwner, releaseRepo, opts)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrRelease, err)
		}

		for _, rel := range releases {
			if rel.GetDraft() || rel.GetPrerelease() {
				continue
			}
			v, err := semver.NewVersion(rel.GetTagName())
			if err != nil || v.Prerelease() != "" {
				continue
			}
			if r.Constraint != nil && !r.Constraint.Check(v) {
				continue
			}
			if best == nil || v.GreaterThan(best) {
				best, bestTag = v, rel.GetTagName()
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if best == nil {
		return "", fmt.Errorf("%w: no stable release of %s/%s matches", ErrRelease, releaseOwner, releaseRepo)
	}
	return bestTag, nil
}

// Reads the cache record. Reports whether it is fresh; a record for a
// different constraint is ignored.
func (r *GitHubReleases) load() (*releaseRecord, bool) {
	if r.CachePath == "" {
		return nil, false
	}
	b, err := os.ReadFile(r.CachePath)
	if err != nil {
		return nil, false
	}
	var rec releaseRecord
	if err := json.Unmarshal(b, &rec); err != nil || rec.Release == "" {
		return nil, false
	}
	if rec.Constraint != r.constraint() {
		return nil, false
	}
	return &rec, r.clock().Sub(rec.ResolvedAt) < r.TTL
}

// Writes the cache record. Failures only cost a lookup next time.
func (r *GitHubReleases) store(release string) {
	if r.CachePath == "" {
		return
	}
	b, err := json.Marshal(releaseRecord{
		Release:    release,
		Constraint: r.constraint(),
		ResolvedAt: r.clock().UTC(),
	})
	if err == nil {
		err = os.MkdirAll(filepath.Dir(r.CachePath), paths.DefaultDirMode)
	}
	if err == nil {
		err = os.WriteFile(r.CachePath, b, paths.DefaultFileMode)
	}
	if err != nil {
		slog.Warn("failed to cache toolchain release", "path", r.CachePath, "error", err)
	}
}

func (r *GitHubReleases) constraint() string {
	if r.Constraint == nil {
		return ""
	}
	return r.Constraint.String()
}

func (r *GitHubReleases) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
