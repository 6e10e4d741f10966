// Maps container platforms to Rust target triples.
//
// A Table is the single source of truth for which platforms the pipeline
// builds for. Platform identifiers are normalized before lookup, so
// "linux/aarch64" and "linux/arm64" resolve to the same entry. The host
// platform is never read implicitly by other packages; it is resolved once
// with Host and passed along.
//
// Example usage:
//
//	table := platform.Default()
//	target, err := table.Resolve("linux/arm64")
//	if err != nil {
//		return err
//	}
//	fmt.Println(target.Triple) // aarch64-unknown-linux-musl
//
//	for _, p := range table.With(platform.Host()) {
//		fmt.Println(p)
//	}
package platform
