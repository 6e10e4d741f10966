// Package build drives cargo inside containerd build containers.
//
// The package turns a project source snapshot into build products in four
// layers, each cached or recomputed as appropriate:
//
//   - Provision commits a Rust toolchain image with the musl cross linkers,
//     clippy, cargo-chef and cargo-nextest installed. The image is keyed on
//     the base image and the installation steps and reused across runs.
//   - Prepare runs "cargo chef prepare" over the manifests and workspace
//     modules and returns the dependency recipe.
//   - Cook compiles the recipe's dependencies for one target triple in three
//     passes (tests, clippy, release) and commits the result, keyed on the
//     toolchain, the recipe and the triple.
//   - Project overlays the current sources on a cooked image. Test, Build and
//     CRD run cargo in such a project and read the products back out.
//
// Containers are created through the [Engine] interface; [NewEngine] backs it
// with the runtime package. Concurrent callers asking for the same toolchain,
// recipe or cooked image share one producer.
//
// Example usage:
//
//	b := build.New(build.NewEngine(rt), build.Options{
//	    Table: platform.Default(),
//	    Host:  platform.Host(),
//	})
//
//	bin, err := b.Build(ctx, snap, "aarch64-unknown-linux-musl")
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("controller", bin.Data, 0755)
package build
