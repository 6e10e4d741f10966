package internal

import (
	"fmt"
	"runtime"
	"strings"
)

// Name of the pipeline binary, used for logger groups, cache directories and
// image name prefixes.
const Name = "yakupci"

const (

	// Placeholder for a linker variable that was never set.
	defaultUndefined = "(undefined)"

	// Reported instead of a version string for builds made outside CI.
	defaultLocalBuild = "(local)"

	// Branch whose name is omitted from version strings.
	mainBranch = "main"
)

var (
	version   = "" // Release version (e.g., "1.4.0")
	stage     = "" // Branch the binary was built from (e.g., "main")
	gitCommit = "" // Commit hash the binary was built from

	rawQuiet   = "false" // Whether quiet mode is on by default
	rawDebug   = "false" // Whether debug logging is on by default
	rawVerbose = "false" // Whether verbose logging is on by default
)

// Returns the release version without a leading "v".
//
// Returns "(undefined)" when the linker did not set one.
func Version() string {
	v := strings.TrimSpace(version)
	if v == "" {
		return defaultUndefined
	}
	return strings.TrimPrefix(strings.ToLower(v), "v")
}

// Returns the branch the binary was built from, lowercased.
func Stage() string {
	s := strings.TrimSpace(stage)
	if s == "" {
		return defaultUndefined
	}
	return strings.ToLower(s)
}

// Returns the commit hash the binary was built from.
func GitCommit() string {
	c := strings.TrimSpace(gitCommit)
	if c == "" {
		return defaultUndefined
	}
	return c
}

// Returns the architecture the binary was compiled for.
func Arch() string {
	return runtime.GOARCH
}

// Reports whether the binary was built outside the release pipeline, i.e.
// any of version, commit or stage is missing.
func IsLocal() bool {
	return strings.TrimSpace(version) == "" ||
		strings.TrimSpace(gitCommit) == "" ||
		strings.TrimSpace(stage) == ""
}

// Returns "<version>[+<stage>] <commit> [<arch>]", or "(local)" for local
// builds. The stage suffix is dropped for the main branch.
func VersionString() string {
	if IsLocal() {
		return defaultLocalBuild
	}

	s := ""
	if st := Stage(); st != mainBranch {
		s = "+" + st
	}

	return fmt.Sprintf("%s%s %s [%s]", Version(), s, GitCommit(), Arch())
}
