// Package pipeline runs the yakup delivery stages and writes their
// artifacts.
//
// Each stage of [Pipeline] maps to one command line operation. Stages that
// produce files write them below the output directory:
//
//	recipe.json              dependency recipe (prepare)
//	junit.xml                test report (test)
//	<triple>/controller      controller binary (build)
//	<os>-<arch>/image.tar    container image (docker)
//	application.yaml         custom resource definition (crd)
//	deploy.yaml              deployment document (assemble-manifests)
//	assemble/                release artifacts (assemble)
//
// Example usage:
//
//	p := pipeline.New(builder, snap, pipeline.Options{Output: "dist"})
//	dir, err := p.Assemble(ctx, pipeline.DefaultImage, "1.2.0")
package pipeline
