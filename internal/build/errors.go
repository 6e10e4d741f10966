package build

import "errors"

var (
	ErrProvision     = errors.New("toolchain provisioning failed")
	ErrPlan          = errors.New("dependency planning failed")
	ErrCompile       = errors.New("compilation failed")
	ErrLint          = errors.New("lint failed")
	ErrTest          = errors.New("tests failed")
	ErrManifest      = errors.New("manifest generation failed")
	ErrCommandFailed = errors.New("command failed")
	ErrRelease       = errors.New("cannot resolve toolchain release")
)
