package build

import (
	"fmt"
	"strings"
)

// Maximum amount of stderr quoted in an error message.
const stderrTail = 4096

// A command that exited with a non-zero status inside a build container.
type CommandError struct {
	Args     []string // Command line.
	ExitCode int      // Exit status.
	Stderr   string   // Complete standard error.
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if len(stderr) > stderrTail {
		stderr = "..." + stderr[len(stderr)-stderrTail:]
	}
	msg := fmt.Sprintf("%q exited with code %d", strings.Join(e.Args, " "), e.ExitCode)
	if stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}
