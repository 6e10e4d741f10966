package paths

import (
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
)

func TestCacheIsUnderXDGCacheHome(t *testing.T) {
	assert.Equal(t, filepath.Join(xdg.CacheHome, "yakupci"), Cache())
}

func TestToolchainReleaseIsInCache(t *testing.T) {
	assert.Equal(t, Cache(), filepath.Dir(ToolchainRelease()))
	assert.Equal(t, "toolchain.json", filepath.Base(ToolchainRelease()))
}
