package source

import "errors"

var (
	ErrOpen    = errors.New("cannot open source tree")
	ErrRead    = errors.New("cannot read source tree")
	ErrArchive = errors.New("cannot archive source tree")
)
