// Package probe runs the external debug-probe tool. Every operation is one
// invocation of the form
//
//	<tool> --port <port> [--verbose] <subcommand> [args...]
//
// Short commands go through Executor.Run, which returns stdout. The long-lived
// "resume" monitor goes through Executor.Stream, which delivers output as it is
// produced. The executor itself never queues or orders commands.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coral-mesh/mcudbg/internal/constants"
)

// Config holds the probe tool settings.
type Config struct {
	// ToolPath is the executable name or path of the probe tool.
	ToolPath string `yaml:"tool_path" env:"MCUDBG_PROBE_TOOL"`

	// Verbose passes --verbose to every invocation.
	Verbose bool `yaml:"verbose" env:"MCUDBG_PROBE_VERBOSE"`

	// Timeout bounds each Run call.
	Timeout time.Duration `yaml:"timeout" env:"MCUDBG_PROBE_TIMEOUT"`

	// KillGrace is how long an interrupted process gets before it is killed.
	KillGrace time.Duration `yaml:"kill_grace" env:"MCUDBG_PROBE_KILL_GRACE"`
}

// DefaultConfig returns the default probe configuration.
func DefaultConfig() Config {
	return Config{
		ToolPath:  constants.DefaultToolPath,
		Timeout:   constants.DefaultCommandTimeout,
		KillGrace: constants.DefaultKillGrace,
	}
}

// Executor starts probe tool processes and keeps track of the ones in flight.
type Executor struct {
	config Config
	logger zerolog.Logger

	mu    sync.Mutex
	procs map[string]*Process
}

// NewExecutor creates an executor. Zero durations in config take the defaults.
func NewExecutor(config Config, logger zerolog.Logger) *Executor {
	def := DefaultConfig()
	if config.ToolPath == "" {
		config.ToolPath = def.ToolPath
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.KillGrace <= 0 {
		config.KillGrace = def.KillGrace
	}

	return &Executor{
		config: config,
		logger: logger.With().Str("component", "probe").Logger(),
		procs:  make(map[string]*Process),
	}
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.config
}

// Args builds the argument vector, without the tool itself, for one invocation.
func (e *Executor) Args(port string, args ...string) []string {
	argv := make([]string, 0, len(args)+3)
	argv = append(argv, "--port", port)
	if e.config.Verbose {
		argv = append(argv, "--verbose")
	}
	return append(argv, args...)
}

// CheckTool verifies the probe tool can be found and executed.
func (e *Executor) CheckTool() error {
	if _, err := exec.LookPath(e.config.ToolPath); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolUnavailable, e.config.ToolPath, err)
	}
	return nil
}

// Run executes one probe command and returns its stdout. A non-zero exit is
// reported as a *CommandError. When the configured timeout expires or ctx is
// cancelled the process is killed, and Run returns only after it has exited.
func (e *Executor) Run(ctx context.Context, port string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	p, err := e.start(port, Handlers{
		Stdout: func(chunk string) { stdout.WriteString(chunk) },
		Stderr: func(chunk string) { stderr.WriteString(chunk) },
	}, args)
	if err != nil {
		return "", err
	}

	select {
	case <-p.Done():
	case <-runCtx.Done():
		p.markStopped()
		_ = p.Kill()
		<-p.Done()

		if ctx.Err() == nil {
			e.logger.Warn().
				Strs("args", args).
				Dur("timeout", e.config.Timeout).
				Msg("Probe command timed out")
			return "", fmt.Errorf("%w after %s: %s", ErrCommandTimedOut, e.config.Timeout, strings.Join(args, " "))
		}
		return "", fmt.Errorf("probe command %s interrupted: %w", strings.Join(args, " "), ctx.Err())
	}

	if err := p.exitError(stderr.String()); err != nil {
		return "", err
	}

	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		e.logger.Debug().
			Strs("args", args).
			Str("stderr", msg).
			Msg("Probe command succeeded with diagnostics")
	}

	return stdout.String(), nil
}

// Stream starts a long-lived probe command. Output is handed to h as it is
// read. The process is terminated when ctx is done.
func (e *Executor) Stream(ctx context.Context, port string, h Handlers, args ...string) (*Process, error) {
	p, err := e.start(port, h, args)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		if err := p.Terminate(e.config.KillGrace); err != nil {
			e.logger.Warn().Err(err).Str("process_id", p.ID).Msg("Failed to terminate probe process")
		}
	})
	go func() {
		<-p.Done()
		stop()
	}()

	return p, nil
}

// KillAll terminates every process the executor has in flight and waits for
// them to exit.
func (e *Executor) KillAll(grace time.Duration) error {
	if grace <= 0 {
		grace = e.config.KillGrace
	}

	e.mu.Lock()
	procs := make([]*Process, 0, len(e.procs))
	for _, p := range e.procs {
		procs = append(procs, p)
	}
	e.mu.Unlock()

	var g errgroup.Group
	for _, p := range procs {
		g.Go(func() error {
			return p.Terminate(grace)
		})
	}
	return g.Wait()
}

// Running returns the number of processes in flight.
func (e *Executor) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.procs)
}

func (e *Executor) start(port string, h Handlers, args []string) (*Process, error) {
	argv := e.Args(port, args...)
	//nolint:gosec // G204: the tool path comes from configuration.
	cmd := exec.Command(e.config.ToolPath, argv...)
	cmd.WaitDelay = e.config.KillGrace

	p := newProcess(cmd, args, h, e.logger)
	if err := p.start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, e.config.ToolPath, err)
		}
		return nil, fmt.Errorf("failed to start probe tool: %w", err)
	}

	e.mu.Lock()
	e.procs[p.ID] = p
	e.mu.Unlock()

	go func() {
		<-p.Done()
		e.mu.Lock()
		delete(e.procs, p.ID)
		e.mu.Unlock()
	}()

	e.logger.Debug().
		Str("process_id", p.ID).
		Int("pid", p.Pid()).
		Strs("args", argv).
		Msg("Started probe command")

	return p, nil
}
