// Provides platform-appropriate locations for the pipeline's on-disk state.
//
// Paths follow XDG conventions on Linux and platform-native conventions on
// macOS. The name "yakupci" is used as the subdirectory under each base path.
//
// Example usage:
//
//	record := paths.ToolchainRelease()
//	if err := os.MkdirAll(filepath.Dir(record), paths.DefaultDirMode); err != nil {
//		return err
//	}
package paths
