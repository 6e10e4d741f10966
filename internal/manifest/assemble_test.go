package manifest

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/mortenlj/yakupci/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vars = Variables{Image: "ttl.sh/mortenlj-yakup", Version: "1.2.0"}

func snapshot(t *testing.T, files map[string]string) *source.Snapshot {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "Cargo.toml", []byte("[workspace]\n"), 0o644))
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
	snap, err := source.New(fs)
	require.NoError(t, err)
	return snap
}

func TestAssemble(t *testing.T) {
	snap := snapshot(t, map[string]string{
		"deploy/00-namespace.yaml": "---\napiVersion: v1\nkind: Namespace\nmetadata:\n  name: yakup\n",
		"deploy/10-deployment.j2":  "apiVersion: apps/v1\nkind: Deployment\nimage: \"{{ image }}:{{ version }}\"",
		"deploy/20-account.yaml":   "apiVersion: v1\nkind: ServiceAccount\n",
		"deploy/README.md":         "# not yaml: [\n",
		"deploy/kustomization.yml": "resources: []\n",
		"controller/src/main.rs":   "fn main() {}\n",
	})

	doc, err := Assemble(snap, vars)
	require.NoError(t, err)

	assert.Equal(t, "---\napiVersion: v1\nkind: Namespace\nmetadata:\n  name: yakup\n"+
		"\n"+
		"---\napiVersion: apps/v1\nkind: Deployment\nimage: \"ttl.sh/mortenlj-yakup:1.2.0\""+
		"\n"+
		"---\napiVersion: v1\nkind: ServiceAccount\n"+
		"\n", string(doc))
}

func TestAssembleCopiesStaticFragmentsVerbatim(t *testing.T) {
	snap := snapshot(t, map[string]string{
		"deploy/a.yaml": "key: [unclosed\n",
	})

	doc, err := Assemble(snap, vars)
	require.NoError(t, err)
	assert.Equal(t, "---\nkey: [unclosed\n\n", string(doc))
}

func TestAssembleIncludes(t *testing.T) {
	snap := snapshot(t, map[string]string{
		"deploy/labels.inc":   "{app: yakup, version: \"{{ version }}\"}",
		"deploy/service.j2":   "kind: Service\nmetadata:\n  labels: {% include \"labels.inc\" %}",
		"deploy/configmap.j2": "kind: ConfigMap\nmetadata:\n  labels: {% include \"/deploy/labels.inc\" %}",
	})

	doc, err := Assemble(snap, vars)
	require.NoError(t, err)

	assert.Equal(t, "---\nkind: ConfigMap\nmetadata:\n  labels: {app: yakup, version: \"1.2.0\"}"+
		"\n"+
		"---\nkind: Service\nmetadata:\n  labels: {app: yakup, version: \"1.2.0\"}"+
		"\n", string(doc))
}

func TestAssembleEmptyDirectory(t *testing.T) {
	snap := snapshot(t, map[string]string{"deploy/notes.txt": "nothing here\n"})

	doc, err := Assemble(snap, vars)
	require.NoError(t, err)
	assert.Equal(t, "\n", string(doc))
}

func TestAssembleFailures(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		err   error
	}{
		{
			name:  "undefined variable",
			files: map[string]string{"deploy/a.j2": "image: {{ registry }}"},
			err:   ErrRender,
		},
		{
			name:  "syntax error",
			files: map[string]string{"deploy/a.j2": "{% if %}"},
			err:   ErrRender,
		},
		{
			name:  "missing include",
			files: map[string]string{"deploy/a.j2": "{% include \"missing.j2\" %}"},
			err:   ErrRender,
		},
		{
			name:  "invalid rendered yaml",
			files: map[string]string{"deploy/a.j2": "key: {{ image }}: {{ version }}"},
			err:   ErrInvalidDocument,
		},
		{
			name:  "no deploy directory",
			files: map[string]string{"README.md": "# yakup\n"},
			err:   ErrRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := map[string]string{"deploy/ok.yaml": "kind: ConfigMap\n"}
			for k, v := range tt.files {
				files[k] = v
			}
			if tt.err == ErrRead {
				files = tt.files
			}

			doc, err := Assemble(snapshot(t, files), vars)
			assert.ErrorIs(t, err, tt.err)
			assert.Nil(t, doc)
		})
	}
}
