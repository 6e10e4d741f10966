package build

import (
	"maps"
	"slices"
)

// Tracks environment and working directory across a list of steps.
//
// Modifier-only steps change the state for everything after them via
// apply. Commands see their own overrides through resolve without changing
// the state.
type stepState struct {
	workdir string
	env     map[string]string
}

// Creates an empty [stepState].
func newStepState() *stepState {
	return &stepState{env: make(map[string]string)}
}

// Persists a step's modifiers.
func (s *stepState) apply(step Step) {
	if step.Workdir != "" {
		s.workdir = step.Workdir
	}
	maps.Copy(s.env, step.Env)
}

// Returns the state a single step runs with. The receiver is unchanged.
func (s *stepState) resolve(step Step) *stepState {
	resolved := &stepState{
		workdir: s.workdir,
		env:     make(map[string]string, len(s.env)+len(step.Env)),
	}
	maps.Copy(resolved.env, s.env)
	maps.Copy(resolved.env, step.Env)

	if step.Workdir != "" {
		resolved.workdir = step.Workdir
	}
	return resolved
}

// Formats the environment as sorted "key=value" strings.
func (s *stepState) environ() []string {
	env := make([]string, 0, len(s.env))
	for _, k := range slices.Sorted(maps.Keys(s.env)) {
		env = append(env, k+"="+s.env[k])
	}
	return env
}
