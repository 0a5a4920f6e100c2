package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/mcudbg/internal/testutil"
)

// fakeTool stands in for the probe CLI. It drops "--port <port>" and an
// optional "--verbose", then dispatches on the subcommand.
const fakeTool = `#!/bin/sh
shift 2
if [ "$1" = "--verbose" ]; then
	echo "verbose" >&2
	shift
fi
case "$1" in
read-all)
	echo "R0: 0x00000001"
	echo "PC: 0x08000130"
	;;
echo)
	shift
	echo "$@"
	;;
fail)
	echo "no target connected" >&2
	exit 3
	;;
warn)
	echo "firmware is old" >&2
	echo "ok"
	;;
sleep)
	sleep 30
	;;
detach)
	sleep 3 &
	echo "ok"
	;;
stream)
	echo "running"
	sleep 0.1
	echo "Target halted"
	echo "oops" >&2
	;;
stubborn)
	trap '' TERM
	echo "ignoring"
	sleep 30
	;;
esac
`

func newTestExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake probe tool is a shell script")
	}
	if cfg.ToolPath == "" {
		cfg.ToolPath = filepath.Join(t.TempDir(), "probe-cli")
		require.NoError(t, os.WriteFile(cfg.ToolPath, []byte(fakeTool), 0o755))
	}
	return NewExecutor(cfg, testutil.NewTestLogger(t))
}

func TestExecutor_Args(t *testing.T) {
	e := NewExecutor(Config{ToolPath: "probe-cli"}, zerolog.Nop())
	assert.Equal(t, []string{"--port", "/dev/ttyACM0", "read-reg", "pc"}, e.Args("/dev/ttyACM0", "read-reg", "pc"))

	e = NewExecutor(Config{ToolPath: "probe-cli", Verbose: true}, zerolog.Nop())
	assert.Equal(t, []string{"--port", "COM3", "--verbose", "halt"}, e.Args("COM3", "halt"))
}

func TestExecutor_Defaults(t *testing.T) {
	e := NewExecutor(Config{}, zerolog.Nop())
	assert.Equal(t, DefaultConfig(), e.Config())
}

func TestExecutor_Run(t *testing.T) {
	e := newTestExecutor(t, Config{})
	ctx := context.Background()

	out, err := e.Run(ctx, "/dev/ttyACM0", "read-all")
	require.NoError(t, err)
	assert.Equal(t, "R0: 0x00000001\nPC: 0x08000130\n", out)

	out, err = e.Run(ctx, "/dev/ttyACM0", "echo", "read", "0x20000000")
	require.NoError(t, err)
	assert.Equal(t, "read 0x20000000\n", out)

	assert.Zero(t, e.Running())
}

func TestExecutor_RunStderrOnSuccessIsNotAnError(t *testing.T) {
	e := newTestExecutor(t, Config{})

	out, err := e.Run(context.Background(), "p", "warn")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}

func TestExecutor_RunFailure(t *testing.T) {
	e := newTestExecutor(t, Config{})

	_, err := e.Run(context.Background(), "p", "fail")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandFailed)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "no target connected", cmdErr.Stderr)
	assert.Equal(t, []string{"fail"}, cmdErr.Args)
	assert.Contains(t, err.Error(), "exit code 3")
}

func TestExecutor_RunTimeout(t *testing.T) {
	e := newTestExecutor(t, Config{Timeout: 200 * time.Millisecond, KillGrace: 100 * time.Millisecond})

	start := time.Now()
	_, err := e.Run(context.Background(), "p", "sleep")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandTimedOut)
	assert.Less(t, time.Since(start), 10*time.Second)

	// The process has been reaped before Run returned.
	assert.Eventually(t, func() bool { return e.Running() == 0 }, time.Second, 10*time.Millisecond)
}

func TestExecutor_RunChildHoldsOutputOpen(t *testing.T) {
	e := newTestExecutor(t, Config{KillGrace: 100 * time.Millisecond})

	start := time.Now()
	out, err := e.Run(context.Background(), "p", "detach")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
	assert.Less(t, time.Since(start), 2*time.Second, "a leftover child must not hold the command open")
}

func TestExecutor_RunCancelled(t *testing.T) {
	e := newTestExecutor(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := e.Run(ctx, "p", "sleep")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCommandTimedOut)
}

func TestExecutor_ToolUnavailable(t *testing.T) {
	missing := NewExecutor(Config{ToolPath: filepath.Join(t.TempDir(), "nope")}, zerolog.Nop())

	_, err := missing.Run(context.Background(), "p", "halt")
	assert.ErrorIs(t, err, ErrToolUnavailable)
	assert.ErrorIs(t, missing.CheckTool(), ErrToolUnavailable)

	if runtime.GOOS == "windows" {
		return
	}
	notExec := filepath.Join(t.TempDir(), "probe-cli")
	require.NoError(t, os.WriteFile(notExec, []byte(fakeTool), 0o644))
	e := NewExecutor(Config{ToolPath: notExec}, zerolog.Nop())

	_, err = e.Run(context.Background(), "p", "halt")
	assert.ErrorIs(t, err, ErrToolUnavailable)
}

func TestExecutor_CheckTool(t *testing.T) {
	e := newTestExecutor(t, Config{})
	assert.NoError(t, e.CheckTool())
}

type collector struct {
	mu     sync.Mutex
	stdout strings.Builder
	stderr strings.Builder
}

func (c *collector) handlers() Handlers {
	return Handlers{
		Stdout: func(s string) { c.mu.Lock(); c.stdout.WriteString(s); c.mu.Unlock() },
		Stderr: func(s string) { c.mu.Lock(); c.stderr.WriteString(s); c.mu.Unlock() },
	}
}

func (c *collector) out() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stdout.String(), c.stderr.String()
}

func TestExecutor_Stream(t *testing.T) {
	e := newTestExecutor(t, Config{})
	var c collector

	p, err := e.Stream(context.Background(), "p", c.handlers(), "stream")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Positive(t, p.Pid())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))

	stdout, stderr := c.out()
	assert.Equal(t, "running\nTarget halted\n", stdout)
	assert.Equal(t, "oops\n", stderr)
	assert.NoError(t, p.Err())
	assert.False(t, p.Stopped())
}

func TestExecutor_StreamTerminateEscalates(t *testing.T) {
	e := newTestExecutor(t, Config{})
	var c collector

	p, err := e.Stream(context.Background(), "p", c.handlers(), "stubborn")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stdout, _ := c.out()
		return strings.Contains(stdout, "ignoring")
	}, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Terminate(100*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, "SIGTERM was ignored, so the kill came after the grace period")

	select {
	case <-p.Done():
	default:
		t.Fatal("process still running after Terminate")
	}
	assert.True(t, p.Stopped())
	assert.NoError(t, p.Err(), "a requested stop is not a failure")
}

func TestExecutor_StreamStopsWithContext(t *testing.T) {
	e := newTestExecutor(t, Config{KillGrace: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	p, err := e.Stream(ctx, "p", Handlers{}, "sleep")
	require.NoError(t, err)

	cancel()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream survived context cancellation")
	}
}

func TestExecutor_KillAll(t *testing.T) {
	e := newTestExecutor(t, Config{})

	p1, err := e.Stream(context.Background(), "p", Handlers{}, "sleep")
	require.NoError(t, err)
	p2, err := e.Stream(context.Background(), "p", Handlers{}, "stubborn")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Running())

	require.NoError(t, e.KillAll(100*time.Millisecond))

	for _, p := range []*Process{p1, p2} {
		select {
		case <-p.Done():
		default:
			t.Fatalf("process %s still running", p.ID)
		}
	}
	assert.Eventually(t, func() bool { return e.Running() == 0 }, time.Second, 10*time.Millisecond)
}
