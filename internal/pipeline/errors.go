package pipeline

import "errors"

var (
	ErrOutput = errors.New("cannot write artifact")
)
