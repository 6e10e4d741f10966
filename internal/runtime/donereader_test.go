package runtime

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestDoneReaderClosesOnEOF(t *testing.T) {
	dr := newDoneReader(strings.NewReader("recipe"))
	assert.False(t, closed(dr.done), "done closed before reading")

	b, err := io.ReadAll(dr)
	require.NoError(t, err)
	assert.Equal(t, "recipe", string(b))
	assert.True(t, closed(dr.done), "done not closed after EOF")

	// A second EOF must not panic on a double close.
	_, err = dr.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestDoneReaderIgnoresOtherErrors(t *testing.T) {
	dr := newDoneReader(failingReader{})

	_, err := dr.Read(make([]byte, 8))
	require.Error(t, err)
	assert.False(t, closed(dr.done), "done closed on non-EOF error")
}
