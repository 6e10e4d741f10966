package runtime

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archive(t *testing.T, entries ...*tar.Header) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, hdr := range entries {
		body := []byte("contents of " + hdr.Name)
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write(body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return &buf
}

func TestFirstFile(t *testing.T) {
	buf := archive(t,
		&tar.Header{Name: "other.json", Typeflag: tar.TypeReg, Mode: 0o644},
		&tar.Header{Name: "./recipe.json", Typeflag: tar.TypeReg, Mode: 0o644},
	)

	got, err := firstFile(buf, "recipe.json")
	require.NoError(t, err)
	assert.Equal(t, "contents of ./recipe.json", string(got))
}

func TestFirstFileMissing(t *testing.T) {
	buf := archive(t, &tar.Header{Name: "other.json", Typeflag: tar.TypeReg, Mode: 0o644})

	_, err := firstFile(buf, "recipe.json")
	assert.ErrorIs(t, err, ErrRuntime)
}

func TestFirstFileRejectsDirectory(t *testing.T) {
	buf := archive(t, &tar.Header{Name: "crd/", Typeflag: tar.TypeDir, Mode: 0o755})

	_, err := firstFile(buf, "crd")
	assert.ErrorIs(t, err, ErrRuntime)
}
