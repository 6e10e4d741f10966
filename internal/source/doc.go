// Package source provides read-only, filtered views of a project tree.
//
// A [Snapshot] wraps a billy filesystem and hides build outputs, editor
// state and anything matched by the tree's .gitignore files. Snapshots are
// immutable: [Snapshot.Sub] and [Snapshot.Select] return narrowed views and
// never touch the receiver. The same view can be listed, digested for cache
// keys, or streamed as a deterministic tar archive into a build container.
//
// Example usage:
//
//	snap, err := source.Open(".")
//	if err != nil {
//	    return err
//	}
//
//	manifests := snap.Select("Cargo.toml", "Cargo.lock", "api", "controller")
//	fmt.Println(manifests.Digest())
//
//	if err := manifests.WriteTar(w); err != nil {
//	    return err
//	}
package source
