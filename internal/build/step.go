package build

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mortenlj/yakupci/internal"
)

// One instruction for a build container.
//
// A step with Run executes that command; Env and Workdir apply to it alone.
// A step without Run is a modifier: its Env and Workdir carry over to every
// following step.
type Step struct {
	Run     []string          // Command and arguments, executed without a shell.
	Env     map[string]string // Environment overrides.
	Workdir string            // Working directory.
}

// Creates a command step.
func run(args ...string) Step {
	return Step{Run: args}
}

// Executes steps in order, stopping at the first failure.
func executeSteps(ctx context.Context, ctr Container, steps []Step, state *stepState) error {
	for i, step := range steps {
		if len(step.Run) == 0 {
			state.apply(step)
			continue
		}
		if err := execute(ctx, ctr, step, state); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// Runs a single command step and turns a non-zero exit into a
// [*CommandError].
func execute(ctx context.Context, ctr Container, step Step, state *stepState) error {
	resolved := state.resolve(step)

	slog.Debug("run", "command", strings.Join(step.Run, " "), "workdir", resolved.workdir)

	result, err := ctr.Exec(ctx, step.Run, resolved.environ(), resolved.workdir)
	if err != nil {
		return err
	}

	if internal.IsVerbose() && result.Stdout != "" {
		slog.Info("output", "command", step.Run[0], "stdout", result.Stdout)
	}

	if result.ExitCode != 0 {
		return &CommandError{
			Args:     step.Run,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}
	return nil
}
