package build

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/mortenlj/yakupci/internal/runtime"
	"github.com/opencontainers/go-digest"
)

// Decides the outcome of a command in a fake container. It may write files
// into the container to simulate build outputs.
type execHandler func(c *fakeContainer, args []string) *runtime.ExecResult

// In-memory Engine recording everything it is asked to do.
type fakeEngine struct {
	mu         sync.Mutex
	images     map[string]bool
	pulls      []string
	containers []*fakeContainer
	handler    execHandler
}

func newFakeEngine(handler execHandler) *fakeEngine {
	if handler == nil {
		handler = func(*fakeContainer, []string) *runtime.ExecResult { return &runtime.ExecResult{} }
	}
	return &fakeEngine{images: make(map[string]bool), handler: handler}
}

func (e *fakeEngine) Pull(_ context.Context, ref, platform string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pulls = append(e.pulls, ref+"@"+platform)
	e.images[ref] = true
	return nil
}

func (e *fakeEngine) HasImage(_ context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[name], nil
}

func (e *fakeEngine) Start(_ context.Context, image, id, platform string) (Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.images[image] {
		return nil, fmt.Errorf("%w: image %s not found", runtime.ErrRuntime, image)
	}
	c := &fakeContainer{engine: e, image: image, id: id, platform: platform, files: make(map[string][]byte)}
	e.containers = append(e.containers, c)
	return c, nil
}

// Returns the containers started from images whose name has prefix.
func (e *fakeEngine) started(prefix string) []*fakeContainer {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*fakeContainer
	for _, c := range e.containers {
		if strings.HasPrefix(c.image, prefix) {
			out = append(out, c)
		}
	}
	return out
}

type fakeCommit struct {
	name string
	cfg  runtime.ImageConfig
}

type fakeContainer struct {
	engine    *fakeEngine
	image     string
	id        string
	platform  string
	mu        sync.Mutex
	files     map[string][]byte
	commands  [][]string
	envs      [][]string
	workdirs  []string
	commits   []fakeCommit
	destroyed bool
}

func (c *fakeContainer) Exec(_ context.Context, args, env []string, workdir string) (*runtime.ExecResult, error) {
	c.mu.Lock()
	c.commands = append(c.commands, slices.Clone(args))
	c.envs = append(c.envs, slices.Clone(env))
	c.workdirs = append(c.workdirs, workdir)
	c.mu.Unlock()
	return c.engine.handler(c, args), nil
}

func (c *fakeContainer) CopyTo(_ context.Context, r io.Reader, dir string) error {
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		c.write(path.Join(dir, h.Name), b)
	}
}

func (c *fakeContainer) ReadFile(_ context.Context, p string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: cat %s: no such file", runtime.ErrRuntime, p)
	}
	return b, nil
}

func (c *fakeContainer) Commit(_ context.Context, name string, cfg runtime.ImageConfig) (digest.Digest, error) {
	c.mu.Lock()
	c.commits = append(c.commits, fakeCommit{name: name, cfg: cfg})
	c.mu.Unlock()

	c.engine.mu.Lock()
	c.engine.images[name] = true
	c.engine.mu.Unlock()
	return digest.FromString(name), nil
}

func (c *fakeContainer) Destroy(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
}

func (c *fakeContainer) write(p string, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[p] = b
}

// Returns the paths of all files in the container, sorted.
func (c *fakeContainer) paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for p := range c.files {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Returns the executed commands joined with spaces.
func (c *fakeContainer) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.commands))
	for _, cmd := range c.commands {
		out = append(out, strings.Join(cmd, " "))
	}
	return out
}

// Returns a result with the given exit code and stderr.
func exit(code int, stderr string) *runtime.ExecResult {
	return &runtime.ExecResult{ExitCode: code, Stderr: stderr}
}

// Handler that simulates cargo: it writes the recipe, binaries, CRD and
// JUnit report where the real tools would.
func cargoHandler(c *fakeContainer, args []string) *runtime.ExecResult {
	cmd := strings.Join(args, " ")
	switch {
	case strings.HasPrefix(cmd, "cargo chef prepare"):
		c.write(RecipePath, []byte(`{"skeleton":{}}`))
	case strings.HasPrefix(cmd, "cargo build"):
		triple := args[len(args)-1]
		c.write(path.Join(SourceDir, "target", triple, "release", "controller"), []byte("ELF-"+triple))
	case strings.HasPrefix(cmd, "cargo run --release --bin crd"):
		c.write(path.Join(SourceDir, crdOutput), []byte(crdYAML))
	case strings.HasPrefix(cmd, "cargo nextest run"):
		c.write(path.Join(SourceDir, junitReport), []byte(passingReport))
	}
	return &runtime.ExecResult{}
}

const crdYAML = `apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: applications.yakup.ibidem.no
`

const passingReport = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites name="nextest-run" tests="3" failures="0" errors="0">
  <testsuite name="controller" tests="3" disabled="0" errors="0" failures="0">
    <testcase name="reconcile::creates_deployment" classname="controller" time="0.01"/>
    <testcase name="reconcile::creates_service" classname="controller" time="0.01"/>
    <testcase name="reconcile::ignored" classname="controller" time="0">
      <skipped/>
    </testcase>
  </testsuite>
</testsuites>
`

const failingReport = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites name="nextest-run" tests="2" failures="1" errors="0">
  <testsuite name="api" tests="2" disabled="0" errors="0" failures="1">
    <testcase name="spec::parses" classname="api" time="0.01"/>
    <testcase name="spec::defaults" classname="api" time="0.01">
      <failure message="assertion failed" type="panic">left != right</failure>
    </testcase>
  </testsuite>
</testsuites>
`
