// Parses flags, configures logging and dispatches the yakupci commands.
//
// Global flags:
//
//	-q, --quiet                 Suppress informational output.
//	-v, --verbose               Echo build command output.
//	-d, --debug                 Enable debug output.
//	-C, --source                Project source directory.
//	-o, --output                Artifact directory.
//	    --address               containerd socket.
//	    --namespace             containerd namespace.
//	    --snapshotter           containerd snapshotter.
//	    --host                  Host platform, e.g. "linux/arm64".
//	    --toolchain-release     Pin the Rust toolchain release.
//	    --toolchain-constraint  Semver range for the resolved release.
//	    --github-token          Token for release lookups.
//	    --base                  Runtime base image.
//
// Every global flag can also be set through a YAKUPCI_ environment variable.
// Flags override build-time defaults set via linker flags. After parsing, the
// shared log level is recomputed before the command runs. The containerd
// connection is opened on first use, so commands that never start a build
// container work without a containerd daemon.
package cli
