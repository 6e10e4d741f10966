package platform

import "errors"

var (
	ErrUndefinedTarget = errors.New("no target defined for platform")
	ErrInvalidPlatform = errors.New("invalid platform")
)
