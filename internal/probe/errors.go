package probe

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolUnavailable means the probe tool is missing or cannot be executed.
	ErrToolUnavailable = errors.New("probe tool unavailable")

	// ErrCommandFailed matches every *CommandError.
	ErrCommandFailed = errors.New("probe command failed")

	// ErrCommandTimedOut means the tool did not finish in time and was killed.
	ErrCommandTimedOut = errors.New("probe command timed out")
)

// CommandError describes a probe invocation that exited unsuccessfully.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("probe command %q failed with exit code %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Is makes errors.Is(err, ErrCommandFailed) true for any CommandError.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
