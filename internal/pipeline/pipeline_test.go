package pipeline

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/mortenlj/yakupci/internal/build"
	"github.com/mortenlj/yakupci/internal/image"
	"github.com/mortenlj/yakupci/internal/manifest"
	"github.com/mortenlj/yakupci/internal/platform"
	"github.com/mortenlj/yakupci/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crd = "apiVersion: apiextensions.k8s.io/v1\nkind: CustomResourceDefinition\n"

type fakeBuilds struct {
	mu     sync.Mutex
	builds []string
	report *build.TestReport
	err    map[string]error
}

func (f *fakeBuilds) fail(stage string) error {
	return f.err[stage]
}

func (f *fakeBuilds) Table() platform.Table { return platform.Default() }
func (f *fakeBuilds) Host() string          { return "linux/amd64" }

func (f *fakeBuilds) Prepare(context.Context, *source.Snapshot) (*build.Recipe, error) {
	if err := f.fail("prepare"); err != nil {
		return nil, err
	}
	return &build.Recipe{Data: []byte(`{"skeleton":{}}`)}, nil
}

func (f *fakeBuilds) Cook(_ context.Context, _ *source.Snapshot, triple string) (*build.Staged, error) {
	return &build.Staged{Image: "yakupci/cook:" + triple + "-0123456789abcdef"}, nil
}

func (f *fakeBuilds) ProjectImage(_ context.Context, _ *source.Snapshot, triple string) (string, error) {
	return "yakupci/project:" + triple + "-0123456789abcdef", nil
}

func (f *fakeBuilds) Test(context.Context, *source.Snapshot) (*build.TestReport, error) {
	return f.report, f.fail("test")
}

func (f *fakeBuilds) Build(_ context.Context, _ *source.Snapshot, triple string) (*build.Binary, error) {
	if err := f.fail("build"); err != nil {
		return nil, err
	}
	if triple == "" {
		triple = "x86_64-unknown-linux-musl"
	}
	f.mu.Lock()
	f.builds = append(f.builds, triple)
	f.mu.Unlock()

	target, err := platform.Default().Lookup(triple)
	if err != nil {
		return nil, err
	}
	return &build.Binary{Target: target, Name: build.ControllerBin, Data: []byte("ELF " + triple)}, nil
}

func (f *fakeBuilds) CRD(context.Context, *source.Snapshot) ([]byte, error) {
	if err := f.fail("crd"); err != nil {
		return nil, err
	}
	return []byte(crd), nil
}

func snapshot(t *testing.T) *source.Snapshot {
	t.Helper()
	fs := memfs.New()
	for name, content := range map[string]string{
		"Cargo.toml":             "[workspace]\n",
		"deploy/deployment.j2":   "kind: Deployment\nimage: \"{{ image }}:{{ version }}\"",
		"deploy/namespace.yaml":  "kind: Namespace\n",
		"controller/src/main.rs": "fn main() {}\n",
	} {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
	snap, err := source.New(fs)
	require.NoError(t, err)
	return snap
}

// Starts a registry holding a two-platform base image. Returns the registry
// host and the base reference.
func newRegistry(t *testing.T) (string, string) {
	t.Helper()
	srv := httptest.NewServer(registry.New())
	t.Cleanup(srv.Close)
	host := strings.TrimPrefix(srv.URL, "http://")

	idx := v1.ImageIndex(empty.Index)
	for _, p := range []string{"linux/amd64", "linux/arm64"} {
		img, err := random.Image(128, 1)
		require.NoError(t, err)
		plat, err := v1.ParsePlatform(p)
		require.NoError(t, err)
		idx = mutate.AppendManifests(idx, mutate.IndexAddendum{Add: img, Descriptor: v1.Descriptor{Platform: plat}})
	}
	base := host + "/chainguard/static:latest"
	tag, err := name.NewTag(base)
	require.NoError(t, err)
	require.NoError(t, remote.WriteIndex(tag, idx))
	return host, base
}

func newPipeline(t *testing.T, builds *fakeBuilds, base string) (*Pipeline, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "dist")
	return New(builds, snapshot(t), Options{Output: out, Base: base}), out
}

func readFile(t *testing.T, file string) string {
	t.Helper()
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	return string(data)
}

func TestPrepareWritesRecipe(t *testing.T) {
	p, out := newPipeline(t, &fakeBuilds{}, "")

	file, err := p.Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, RecipeFile), file)
	assert.Equal(t, `{"skeleton":{}}`, readFile(t, file))
}

func TestCookAndProjectReturnImageNames(t *testing.T) {
	p, _ := newPipeline(t, &fakeBuilds{}, "")

	img, err := p.Cook(context.Background(), "aarch64-unknown-linux-musl")
	require.NoError(t, err)
	assert.Equal(t, "yakupci/cook:aarch64-unknown-linux-musl-0123456789abcdef", img)

	img, err = p.Project(context.Background(), "aarch64-unknown-linux-musl")
	require.NoError(t, err)
	assert.Equal(t, "yakupci/project:aarch64-unknown-linux-musl-0123456789abcdef", img)
}

func TestTestWritesReportOnFailure(t *testing.T) {
	builds := &fakeBuilds{
		report: &build.TestReport{Raw: []byte("<testsuites/>"), Failed: []string{"controller::reconciles"}},
		err:    map[string]error{"test": build.ErrTest},
	}
	p, out := newPipeline(t, builds, "")

	file, err := p.Test(context.Background())
	assert.ErrorIs(t, err, build.ErrTest)
	assert.Equal(t, filepath.Join(out, ReportFile), file)
	assert.Equal(t, "<testsuites/>", readFile(t, file))
}

func TestTestWithoutReport(t *testing.T) {
	p, out := newPipeline(t, &fakeBuilds{err: map[string]error{"test": build.ErrLint}}, "")

	_, err := p.Test(context.Background())
	assert.ErrorIs(t, err, build.ErrLint)
	assert.NoFileExists(t, filepath.Join(out, ReportFile))
}

func TestBuildWritesExecutable(t *testing.T) {
	p, out := newPipeline(t, &fakeBuilds{}, "")

	file, err := p.Build(context.Background(), "aarch64-unknown-linux-musl")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "aarch64-unknown-linux-musl", "controller"), file)
	assert.Equal(t, "ELF aarch64-unknown-linux-musl", readFile(t, file))

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestCRDAndManifests(t *testing.T) {
	p, out := newPipeline(t, &fakeBuilds{}, "")

	file, err := p.CRD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crd, readFile(t, file))

	file, err = p.AssembleManifests("registry.example.com/yakup", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, DeployFile), file)
	assert.Equal(t,
		"---\nkind: Deployment\nimage: \"registry.example.com/yakup:2.0.0\"\n---\nkind: Namespace\n\n",
		readFile(t, file))
}

func TestDockerWritesTarball(t *testing.T) {
	_, base := newRegistry(t)
	p, out := newPipeline(t, &fakeBuilds{}, base)

	file, err := p.Docker(context.Background(), "linux/arm64", DefaultImage, DefaultVersion)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "linux-arm64", ImageFile), file)

	tag, err := name.NewTag(DefaultImage + ":" + DefaultVersion)
	require.NoError(t, err)
	img, err := tarball.ImageFromPath(file, &tag)
	require.NoError(t, err)
	cf, err := img.ConfigFile()
	require.NoError(t, err)
	assert.Equal(t, "arm64", cf.Architecture)
	assert.Equal(t, []string{image.DefaultBinaryPath}, cf.Config.Entrypoint)
}

func TestDockerRejectsUnknownPlatform(t *testing.T) {
	p, _ := newPipeline(t, &fakeBuilds{}, "")

	_, err := p.Docker(context.Background(), "linux/riscv64", DefaultImage, DefaultVersion)
	assert.ErrorIs(t, err, platform.ErrUndefinedTarget)
}

func TestAssemble(t *testing.T) {
	host, base := newRegistry(t)
	builds := &fakeBuilds{}
	p, out := newPipeline(t, builds, base)
	repo := host + "/mortenlj-yakup"

	dir, err := p.Assemble(context.Background(), repo, "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, AssembleDir), dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{CRDFile, DeployFile, ImageTagsFile}, names)

	lines := strings.Split(strings.TrimSuffix(readFile(t, filepath.Join(dir, ImageTagsFile)), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], repo+":1.2.0@sha256:"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], repo+":latest@sha256:"), lines[1])
	assert.Equal(t, lines[0][strings.Index(lines[0], "@"):], lines[1][strings.Index(lines[1], "@"):])

	assert.Equal(t, crd, readFile(t, filepath.Join(dir, CRDFile)))
	assert.Contains(t, readFile(t, filepath.Join(dir, DeployFile)), repo+":1.2.0")

	assert.ElementsMatch(t, []string{"x86_64-unknown-linux-musl", "aarch64-unknown-linux-musl"}, builds.builds)

	leftovers, err := filepath.Glob(filepath.Join(out, assembleStaging))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestAssembleFailureKeepsPreviousOutput(t *testing.T) {
	host, base := newRegistry(t)
	boom := errors.New("crd binary crashed")
	p, out := newPipeline(t, &fakeBuilds{err: map[string]error{"crd": boom}}, base)

	previous := filepath.Join(out, AssembleDir, ImageTagsFile)
	require.NoError(t, writeFile(previous, []byte("old\n"), 0o644))

	_, err := p.Assemble(context.Background(), host+"/mortenlj-yakup", "1.2.0")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "old\n", readFile(t, previous))

	leftovers, err := filepath.Glob(filepath.Join(out, assembleStaging))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestAssembleManifestFailure(t *testing.T) {
	host, base := newRegistry(t)
	builds := &fakeBuilds{}
	out := filepath.Join(t.TempDir(), "dist")

	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "deploy/broken.j2", []byte("{{ undefined_thing }}"), 0o644))
	snap, err := source.New(fs)
	require.NoError(t, err)

	p := New(builds, snap, Options{Output: out, Base: base})
	_, err = p.Assemble(context.Background(), host+"/mortenlj-yakup", "1.2.0")
	assert.ErrorIs(t, err, manifest.ErrRender)
	assert.NoDirExists(t, filepath.Join(out, AssembleDir))
}
