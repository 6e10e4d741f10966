package manifest

import "errors"

var (
	ErrRead            = errors.New("cannot read deploy directory")
	ErrRender          = errors.New("template rendering failed")
	ErrInvalidDocument = errors.New("invalid YAML document")
)
