// Package proc stops child processes: a polite interrupt first, a kill once a
// grace period has passed, and process-group and descendant handling so that a
// probe tool's helpers do not outlive it.
package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/coral-mesh/mcudbg/internal/constants"
)

// ErrStillRunning is returned when a process has not exited even after a kill.
var ErrStillRunning = errors.New("process did not exit after kill")

// Target is a running process that can be asked, then told, to stop.
type Target interface {
	// Interrupt requests a graceful stop.
	Interrupt() error
	// Kill stops the process immediately.
	Kill() error
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
}

// Terminate interrupts t and waits up to grace for it to exit, then kills it
// and waits up to grace again. A non-positive grace uses the default.
func Terminate(t Target, grace time.Duration) error {
	if grace <= 0 {
		grace = constants.DefaultKillGrace
	}
	if exited(t) {
		return nil
	}

	// An interrupt error usually means the process is already gone; the wait
	// below settles it either way.
	_ = t.Interrupt()
	if waitDone(t, grace) {
		return nil
	}

	if err := t.Kill(); err != nil && !exited(t) {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	if !waitDone(t, grace) {
		return ErrStillRunning
	}
	return nil
}

func exited(t Target) bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}

func waitDone(t Target, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.Done():
		return true
	case <-timer.C:
		return false
	}
}

// KillTree kills every descendant of pid, deepest first, then pid itself.
func KillTree(ctx context.Context, pid int) error {
	root, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	killDescendants(ctx, root)
	if err := root.KillWithContext(ctx); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}

func killDescendants(ctx context.Context, p *process.Process) {
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		// gopsutil reports "no children" as an error.
		return
	}
	for _, child := range children {
		killDescendants(ctx, child)
		_ = child.KillWithContext(ctx)
	}
}
