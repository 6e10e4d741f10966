package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildVars(t *testing.T, v, s, c string) {
	t.Helper()
	oldV, oldS, oldC := version, stage, gitCommit
	version, stage, gitCommit = v, s, c
	t.Cleanup(func() { version, stage, gitCommit = oldV, oldS, oldC })
}

func TestVersionStringLocal(t *testing.T) {
	withBuildVars(t, "1.0.0", "", "abc123")
	assert.True(t, IsLocal())
	assert.Equal(t, "(local)", VersionString())
}

func TestVersionStringMainBranch(t *testing.T) {
	withBuildVars(t, "v1.2.3", "Main", "abc123")
	assert.Equal(t, "1.2.3 abc123 ["+Arch()+"]", VersionString())
}

func TestVersionStringFeatureBranch(t *testing.T) {
	withBuildVars(t, "1.2.3", "staging", "abc123")
	assert.Equal(t, "1.2.3+staging abc123 ["+Arch()+"]", VersionString())
}

func TestUndefinedVariables(t *testing.T) {
	withBuildVars(t, " ", "", "")
	assert.Equal(t, "(undefined)", Version())
	assert.Equal(t, "(undefined)", Stage())
	assert.Equal(t, "(undefined)", GitCommit())
}
