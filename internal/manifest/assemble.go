package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/mortenlj/yakupci/internal/source"
	"github.com/nikolalohinski/gonja/v2"
	"github.com/nikolalohinski/gonja/v2/config"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/nikolalohinski/gonja/v2/loaders"
	"gopkg.in/yaml.v2"
)

const (

	// Directory of the source tree holding the fragments.
	DeployDir = "deploy"

	// Document separator.
	Separator = "---"

	staticExt   = ".yaml"
	templateExt = ".j2"
)

// Values available to templates as {{ image }} and {{ version }}.
type Variables struct {
	Image   string
	Version string
}

func (v Variables) context() *exec.Context {
	return exec.NewContext(map[string]any{
		"image":   v.Image,
		"version": v.Version,
	})
}

// Assembles the deploy directory of src into one YAML stream.
//
// Entries are processed in name order. ".yaml" files are copied verbatim,
// ".j2" files are rendered, and anything else is ignored. Templates may
// include or extend each other by name. Referencing an undefined variable
// is an error. Each fragment is prefixed with a document separator unless
// it already starts with one; fragments are joined by newlines and the
// result ends with a newline. Static fragments are copied verbatim;
// rendered templates must parse as YAML. Nothing is returned unless every
// template renders and parses.
func Assemble(src *source.Snapshot, vars Variables) ([]byte, error) {
	deploy, err := src.Sub(DeployDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	names, err := deploy.Entries("")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	r, err := newRenderer(deploy, names)
	if err != nil {
		return nil, err
	}

	var fragments []string
	for _, name := range names {
		var fragment string

		switch path.Ext(name) {
		case staticExt:
			data, err := deploy.ReadFile(name)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrRead, err)
			}
			fragment = string(data)
		case templateExt:
			fragment, err = r.render(name, vars)
			if err != nil {
				return nil, err
			}
			if err := validate(fragment); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDocument, name, err)
			}
		default:
			slog.Debug("skipping deploy entry", "name", name)
			continue
		}

		if !strings.HasPrefix(fragment, Separator) {
			fragment = Separator + "\n" + fragment
		}
		fragments = append(fragments, fragment)
	}

	slog.Debug("deployment document assembled", "fragments", len(fragments))
	return []byte(strings.Join(fragments, "\n") + "\n"), nil
}

// Renders the templates of one directory.
type renderer struct {
	cfg    *config.Config
	loader loaders.Loader
}

// Creates a renderer that can load every file among names, so templates
// can include fragments that are not rendered on their own.
func newRenderer(dir *source.Snapshot, names []string) (*renderer, error) {
	templates := map[string]string{}
	for _, name := range names {
		data, err := dir.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}
		templates[templateID(name)] = string(data)
	}

	r := &renderer{cfg: config.New()}
	r.cfg.StrictUndefined = true

	if len(templates) == 0 {
		return r, nil
	}

	loader, err := loaders.NewMemoryLoader(templates)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	r.loader = loader
	return r, nil
}

func (r *renderer) render(name string, vars Variables) (string, error) {
	id := templateID(name)

	// Relative includes resolve against the template's own directory.
	loader, err := r.loader.Inherit(id)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRender, name, err)
	}

	tpl, err := exec.NewTemplate(id, r.cfg, loader, gonja.DefaultEnvironment)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRender, name, err)
	}

	out, err := tpl.ExecuteToString(vars.context())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRender, name, err)
	}
	return out, nil
}

func templateID(name string) string {
	return "/" + DeployDir + "/" + name
}

// Checks that every document of a fragment decodes.
func validate(fragment string) error {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(fragment)))
	for {
		var doc any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
