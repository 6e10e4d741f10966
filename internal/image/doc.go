// Package image assembles and publishes the controller's container images.
//
// A [Builder] produces one image per platform by appending a single layer
// holding the controller binary to a minimal static base image. A
// [Publisher] builds the images for every platform concurrently, combines
// them into one OCI image index, and pushes that index under a version tag
// and under "latest". Both tags name the same index, so they resolve to
// the same digest.
//
// Images are assembled and pushed with go-containerregistry; the binaries
// come from a [Binaries] source, normally the cargo build stage.
//
// Example usage:
//
//	builder := image.NewBuilder(binaries, image.Options{
//	    Table: platform.Default(),
//	    Host:  platform.Host(),
//	})
//	publisher := image.NewPublisher(builder, platform.Default().With(platform.Host()), 2)
//
//	published, err := publisher.Publish(ctx, "ttl.sh/mortenlj-yakup", "1.2.0")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(published.Version) // ttl.sh/mortenlj-yakup:1.2.0@sha256:...
package image
