package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mortenlj/yakupci/internal/source"
	"gopkg.in/yaml.v2"
)

// Location of the generated CRD, relative to the source directory.
const crdOutput = "target/crd/application.yaml"

// Generates the CustomResourceDefinition of the controller's API.
//
// The crd binary runs on the host target and writes the definition into the
// build tree, from where it is read back and checked to be a
// CustomResourceDefinition. Failures wrap ErrManifest.
func (b *Builder) CRD(ctx context.Context, src *source.Snapshot) ([]byte, error) {
	p, err := b.Project(ctx, src, "")
	if err != nil {
		return nil, err
	}
	defer p.Close(context.WithoutCancel(ctx))

	slog.Info("generating crd", "target", p.Target.Triple)

	if err := p.Run(ctx, "cargo", "run", "--release", "--bin", "crd", "--target", p.Target.Triple); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}

	data, err := p.ReadFile(ctx, crdOutput)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}

	if err := checkCRD(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return data, nil
}

// Verifies that data is a single CustomResourceDefinition document.
func checkCRD(data []byte) error {
	var doc struct {
		APIVersion string `yaml:"apiVersion"`
		Kind       string `yaml:"kind"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}
	if doc.Kind != "CustomResourceDefinition" {
		return fmt.Errorf("expected kind CustomResourceDefinition, got %q", doc.Kind)
	}
	return nil
}
