package build

import "path"

const (

	// Directory holding the project inside build containers.
	SourceDir = "/src"

	// Location of the cargo-chef recipe inside build containers.
	RecipePath = SourceDir + "/recipe.json"
)

// Names the parts of the project tree that take part in a build.
type Layout struct {
	Manifests []string // Workspace manifest files, e.g. "Cargo.toml".
	Modules   []string // Workspace member directories.
	Config    []string // Tool configuration, e.g. ".config" for nextest.
}

// Returns the layout of the yakup workspace.
func DefaultLayout() Layout {
	return Layout{
		Manifests: []string{"Cargo.toml", "Cargo.lock"},
		Modules:   []string{"api", "controller"},
		Config:    []string{".config", ".cargo"},
	}
}

// Returns the manifests followed by the modules.
func (l Layout) Paths() []string {
	paths := make([]string, 0, len(l.Manifests)+len(l.Modules))
	paths = append(paths, l.Manifests...)
	return append(paths, l.Modules...)
}

// Returns the paths copied into a project: the manifests and modules
// followed by the tool configuration.
func (l Layout) ProjectPaths() []string {
	return append(l.Paths(), l.Config...)
}

// Returns the in-container path of a project-relative file.
func containerPath(rel string) string {
	return path.Join(SourceDir, rel)
}
