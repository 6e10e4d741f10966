package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Subdirectory name under each base path.
	appName = "yakupci"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Permission mode for produced executables.
	ExecutableMode os.FileMode = 0755
)

// Path to the directory for cached, reproducible state.
//
//	Linux:   $XDG_CACHE_HOME/yakupci or ~/.cache/yakupci
//	macOS:   ~/Library/Caches/yakupci
func Cache() string {
	return filepath.Join(xdg.CacheHome, appName)
}

// Path to the record of the last resolved toolchain release.
//
//	Linux:   $XDG_CACHE_HOME/yakupci/toolchain.json
//	macOS:   ~/Library/Caches/yakupci/toolchain.json
func ToolchainRelease() string {
	return filepath.Join(Cache(), "toolchain.json")
}
