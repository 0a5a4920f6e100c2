package probe

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/mcudbg/internal/sys/proc"
)

const stderrTailSize = 8192

// Handlers receive process output one read at a time. A chunk may end in the
// middle of a line. Either handler may be nil.
type Handlers struct {
	Stdout func(chunk string)
	Stderr func(chunk string)
}

// Process is a running probe tool invocation.
type Process struct {
	ID        string
	Args      []string
	StartedAt time.Time

	cmd    *exec.Cmd
	h      Handlers
	logger zerolog.Logger

	done    chan struct{}
	waitErr error
	stopped atomic.Bool

	stderrMu   sync.Mutex
	stderrTail strings.Builder
}

// newProcess wires cmd's output to h. exec.Cmd copies the output itself, so
// Wait, and with it cmd.WaitDelay, bounds how long a descendant holding the
// pipes open can keep the process from completing.
func newProcess(cmd *exec.Cmd, args []string, h Handlers, logger zerolog.Logger) *Process {
	proc.Prepare(cmd)

	id := uuid.New().String()
	p := &Process{
		ID:     id,
		Args:   args,
		cmd:    cmd,
		h:      h,
		logger: logger.With().Str("process_id", id).Logger(),
		done:   make(chan struct{}),
	}
	cmd.Stdout = chunkWriter(h.Stdout)
	cmd.Stderr = chunkWriter(func(chunk string) {
		p.recordStderr(chunk)
		if h.Stderr != nil {
			h.Stderr(chunk)
		}
	})
	return p
}

func (p *Process) start() error {
	if err := p.cmd.Start(); err != nil {
		return err
	}
	p.StartedAt = time.Now()

	go func() {
		err := p.cmd.Wait()
		if errors.Is(err, exec.ErrWaitDelay) {
			// The tool exited cleanly but something it spawned kept the
			// output open; the pipes were closed after the wait delay.
			p.logger.Debug().Err(err).Msg("Probe output closed after wait delay")
			err = nil
		}
		p.waitErr = err
		close(p.done)
	}()
	return nil
}

// chunkWriter hands every write to fn as one chunk.
type chunkWriter func(chunk string)

func (w chunkWriter) Write(b []byte) (int, error) {
	if w != nil {
		w(string(b))
	}
	return len(b), nil
}

// recordStderr keeps the last few KiB of stderr for error reporting.
func (p *Process) recordStderr(chunk string) {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()
	p.stderrTail.WriteString(chunk)
	if p.stderrTail.Len() > 2*stderrTailSize {
		tail := p.stderrTail.String()
		p.stderrTail.Reset()
		p.stderrTail.WriteString(tail[len(tail)-stderrTailSize:])
	}
}

// Pid returns the operating system process ID.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed after the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err reports how the process ended. It is nil while the process runs, after a
// zero exit and after a stop requested through Terminate or Kill. Otherwise it
// is a *CommandError.
func (p *Process) Err() error {
	select {
	case <-p.done:
	default:
		return nil
	}
	if p.stopped.Load() {
		return nil
	}
	p.stderrMu.Lock()
	stderr := p.stderrTail.String()
	p.stderrMu.Unlock()
	return p.exitError(stderr)
}

// Stopped reports whether the process was ended on request.
func (p *Process) Stopped() bool {
	return p.stopped.Load()
}

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupt asks the process group to stop.
func (p *Process) Interrupt() error {
	if p.cmd.Process == nil {
		return nil
	}
	p.markStopped()
	return proc.Interrupt(p.cmd.Process)
}

// Kill stops the process group immediately.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	p.markStopped()
	return proc.Kill(p.cmd.Process)
}

// Terminate interrupts the process, then kills it if it is still running after grace.
func (p *Process) Terminate(grace time.Duration) error {
	err := proc.Terminate(p, grace)
	if errors.Is(err, proc.ErrStillRunning) {
		// Something else still holds the pipes; take the whole tree down.
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if treeErr := proc.KillTree(ctx, p.Pid()); treeErr != nil {
			p.logger.Debug().Err(treeErr).Msg("Failed to kill probe process tree")
		}
	}
	return err
}

func (p *Process) markStopped() {
	p.stopped.Store(true)
}

// exitError converts the wait result into the package's error kinds. It must
// only be called after done is closed.
func (p *Process) exitError(stderr string) error {
	if p.waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		return &CommandError{
			Args:     p.Args,
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.TrimSpace(stderr),
			Err:      p.waitErr,
		}
	}
	return &CommandError{Args: p.Args, ExitCode: -1, Stderr: strings.TrimSpace(stderr), Err: p.waitErr}
}
