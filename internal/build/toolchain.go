package build

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/mortenlj/yakupci/internal/runtime"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// Default image the toolchain is installed on, tagged with the release.
const DefaultToolchainBase = "rust"

// Packages installed regardless of targets.
var basePackages = []string{"cmake", "musl-tools"}

// A provisioned toolchain image.
type Toolchain struct {
	Image   string // Name of the committed image.
	Release string // Rust release it was built from.
}

// Returns the committed toolchain, provisioning it on first use.
//
// The toolchain runs on the host platform and carries cross linkers for
// every triple of the table. Concurrent callers share one provisioning run.
// Failures wrap ErrProvision and carry the failing command's stderr.
func (b *Builder) Provision(ctx context.Context) (*Toolchain, error) {
	v, err, _ := b.group.Do("toolchain", func() (any, error) {
		return b.provision(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Toolchain), nil
}

func (b *Builder) provision(ctx context.Context) (*Toolchain, error) {
	release := b.opts.Release
	if release == "" {
		r, err := b.releases.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProvision, err)
		}
		release = r
	}

	base := b.opts.ToolchainBase + ":" + release
	steps := toolchainSteps(b.opts.Table.Triples())

	key, err := toolchainKey(base, steps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvision, err)
	}
	tc := &Toolchain{
		Image:   fmt.Sprintf("yakupci/toolchain:%s-%s", release, short(key)),
		Release: release,
	}

	ok, err := b.engine.HasImage(ctx, tc.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvision, err)
	}
	if ok {
		slog.Debug("toolchain cached", "image", tc.Image)
		return tc, nil
	}

	slog.Info("provisioning toolchain", "base", base, "targets", b.opts.Table.Triples())

	if err := b.engine.Pull(ctx, base, b.opts.Host); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvision, err)
	}

	ctr, err := b.engine.Start(ctx, base, b.containerID("toolchain", release), b.opts.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvision, err)
	}
	defer ctr.Destroy(context.WithoutCancel(ctx))

	state := newStepState()
	if err := executeSteps(ctx, ctr, steps, state); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvision, errors.WithMessagef(err, "rust %s", release))
	}

	if _, err := ctr.Commit(ctx, tc.Image, runtime.ImageConfig{Env: state.environ()}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvision, err)
	}

	slog.Info("toolchain provisioned", "image", tc.Image)
	return tc, nil
}

// Returns the installation steps for a toolchain targeting triples.
//
// The first step is a modifier carrying the cross linker variables, so they
// end up in the committed image.
func toolchainSteps(triples []string) []Step {
	packages := slices.Clone(basePackages)
	for _, t := range triples {
		packages = append(packages, crossCompilerPackage(t))
	}
	slices.Sort(packages)
	packages = slices.Compact(packages)

	apt := map[string]string{"DEBIAN_FRONTEND": "noninteractive"}

	return []Step{
		{Env: linkerEnv(triples)},
		{Run: []string{"apt-get", "--yes", "update"}, Env: apt},
		{Run: append([]string{"apt-get", "--yes", "install"}, packages...), Env: apt},
		run(append([]string{"rustup", "target", "add"}, triples...)...),
		run("rustup", "component", "add", "clippy"),
		run("cargo", "install", "cargo-binstall"),
		run("cargo", "binstall", "--no-confirm", "cargo-chef"),
		run("cargo", "binstall", "--no-confirm", "cargo-nextest"),
	}
}

// Returns the architecture component of a target triple.
func tripleArch(triple string) string {
	arch, _, _ := strings.Cut(triple, "-")
	return arch
}

// Returns the Debian package providing the GNU cross compiler for triple.
//
//	crossCompilerPackage("x86_64-unknown-linux-musl") // gcc-x86-64-linux-gnu
func crossCompilerPackage(triple string) string {
	return "gcc-" + strings.ReplaceAll(tripleArch(triple), "_", "-") + "-linux-gnu"
}

// Returns the path of the GNU cross compiler for triple.
func crossCompiler(triple string) string {
	return "/usr/bin/" + tripleArch(triple) + "-linux-gnu-gcc"
}

// Returns the cargo linker and cc-rs compiler variables for triples.
func linkerEnv(triples []string) map[string]string {
	env := make(map[string]string, 2*len(triples))
	for _, t := range triples {
		underscored := strings.ReplaceAll(t, "-", "_")
		env["CARGO_TARGET_"+strings.ToUpper(underscored)+"_LINKER"] = crossCompiler(t)
		env["CC_"+underscored] = crossCompiler(t)
	}
	return env
}

// Derives the cache key of a toolchain from its base image and steps.
func toolchainKey(base string, steps []Step) (digest.Digest, error) {
	b, err := json.Marshal(struct {
		Base  string
		Steps []Step
	}{base, steps})
	if err != nil {
		return "", err
	}
	return digest.FromBytes(b), nil
}

// Returns a short form of a digest, suitable for image tags.
func short(d digest.Digest) string {
	e := d.Encoded()
	if len(e) > 16 {
		return e[:16]
	}
	return e
}
