// Package runtime runs build containers on containerd.
//
// A [Runtime] connects to a containerd daemon, pulls images for an explicit
// platform, and starts long-lived containers from them. Each [Container]
// keeps a "sleep infinity" task alive so that build commands can be attached
// to it as additional processes. Files move in and out of a container as tar
// streams, and the container's filesystem can be committed as a new image in
// containerd's image store, where it serves as a cache entry for later runs.
//
// Example usage:
//
//	rt, err := runtime.New(runtime.DefaultAddress, runtime.DefaultNamespace)
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	if err := rt.Pull(ctx, "rust:1.83.0", "linux/amd64"); err != nil {
//	    return err
//	}
//
//	ctr, err := rt.StartContainer(ctx, "docker.io/library/rust:1.83.0", "toolchain-amd64", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, []string{"rustup", "target", "list"}, nil, "")
//	if err != nil {
//	    return err
//	}
//
//	if _, err := ctr.Commit(ctx, "yakupci/toolchain:1", runtime.ImageConfig{}); err != nil {
//	    return err
//	}
package runtime
