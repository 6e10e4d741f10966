package image

import "errors"

var (
	ErrImage     = errors.New("image assembly failed")
	ErrPublish   = errors.New("publish failed")
	ErrReference = errors.New("invalid image reference")
)
