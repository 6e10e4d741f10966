package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {
	s := newStepState()

	s.apply(Step{Workdir: "/src"})
	assert.Equal(t, "/src", s.workdir)

	s.apply(Step{Env: map[string]string{"A": "1", "B": "2"}})
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, s.env)

	s.apply(Step{Env: map[string]string{"A": "override"}})
	assert.Equal(t, map[string]string{"A": "override", "B": "2"}, s.env)

	s.apply(Step{})
	assert.Equal(t, "/src", s.workdir, "empty step changed workdir")
}

func TestResolveDoesNotMutate(t *testing.T) {
	s := newStepState()
	s.apply(Step{Workdir: "/src", Env: map[string]string{"A": "1"}})

	r := s.resolve(Step{Workdir: "/tmp", Env: map[string]string{"A": "2", "C": "3"}})

	assert.Equal(t, "/tmp", r.workdir)
	assert.Equal(t, map[string]string{"A": "2", "C": "3"}, r.env)
	assert.Equal(t, "/src", s.workdir)
	assert.Equal(t, map[string]string{"A": "1"}, s.env)
}

func TestEnvironSorted(t *testing.T) {
	s := newStepState()
	s.apply(Step{Env: map[string]string{"Z": "26", "A": "1", "M": "13"}})

	assert.Equal(t, []string{"A=1", "M=13", "Z=26"}, s.environ())
}

func TestEnvironEmpty(t *testing.T) {
	assert.Empty(t, newStepState().environ())
}
