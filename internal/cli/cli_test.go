package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/mortenlj/yakupci/internal/pipeline"
	"github.com/mortenlj/yakupci/internal/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) *kong.Context {
	t.Helper()
	parser, err := kong.New(&RootCmd, kong.Name("yakupci"), defaults(),
		kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return ctx
}

func TestParseDefaults(t *testing.T) {
	ctx := parse(t, "publish")

	assert.Equal(t, "publish", ctx.Command())
	assert.Equal(t, pipeline.DefaultOutput, RootCmd.Output)
	assert.Equal(t, runtime.DefaultAddress, RootCmd.Address)
	assert.Equal(t, runtime.DefaultNamespace, RootCmd.Namespace)
	assert.Equal(t, pipeline.DefaultImage, RootCmd.Publish.Image)
	assert.Equal(t, pipeline.DefaultVersion, RootCmd.Publish.Version)
	assert.Equal(t, pipeline.DefaultJobs, RootCmd.Publish.Jobs)
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("YAKUPCI_IMAGE", "registry.example.com/yakup")
	t.Setenv("YAKUPCI_NAMESPACE", "ci")
	t.Setenv("GITHUB_TOKEN", "secret")

	parse(t, "assemble", "--version", "1.2.0", "-j", "4")

	assert.Equal(t, "registry.example.com/yakup", RootCmd.Assemble.Image)
	assert.Equal(t, "1.2.0", RootCmd.Assemble.Version)
	assert.Equal(t, 4, RootCmd.Assemble.Jobs)
	assert.Equal(t, "ci", RootCmd.Namespace)
	assert.Equal(t, "secret", RootCmd.GithubToken)
}

func TestParseTargets(t *testing.T) {
	parse(t, "build", "--target", "aarch64-unknown-linux-musl")
	assert.Equal(t, "aarch64-unknown-linux-musl", RootCmd.Build.Target)

	parse(t, "docker", "-p", "linux/arm64")
	assert.Equal(t, "linux/arm64", RootCmd.Docker.Platform)
}

func TestLazyEngineConnectsOnce(t *testing.T) {
	calls := 0
	refused := errors.New("connection refused")
	e := &lazyEngine{connect: func() (*runtime.Runtime, error) {
		calls++
		return nil, refused
	}}

	assert.ErrorIs(t, e.Pull(context.Background(), "rust:1.83.0", "linux/amd64"), refused)
	_, err := e.HasImage(context.Background(), "rust:1.83.0")
	assert.ErrorIs(t, err, refused)
	_, err = e.Start(context.Background(), "rust:1.83.0", "ctr", "linux/amd64")
	assert.ErrorIs(t, err, refused)

	assert.Equal(t, 1, calls)
	e.close()
}

func TestAssembleManifestsWithoutContainerd(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "deploy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "deploy", "deployment.j2"),
		[]byte("image: \"{{ image }}:{{ version }}\""), 0o644))
	out := filepath.Join(t.TempDir(), "dist")

	parse(t, "--source", src, "--output", out, "--address", filepath.Join(t.TempDir(), "missing.sock"),
		"--toolchain-release", "1.83.0", "assemble-manifests", "--version", "1.2.0")
	require.NoError(t, RootCmd.AssembleManifests.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(out, pipeline.DeployFile))
	require.NoError(t, err)
	assert.Equal(t, "---\nimage: \"ttl.sh/mortenlj-yakup:1.2.0\"\n", string(data))
}
