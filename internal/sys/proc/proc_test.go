package proc

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	done         chan struct{}
	once         sync.Once
	interrupts   atomic.Int32
	kills        atomic.Int32
	exitOnSignal bool
	exitOnKill   bool
	killErr      error
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{done: make(chan struct{})}
}

func (f *fakeTarget) exit() { f.once.Do(func() { close(f.done) }) }

func (f *fakeTarget) Interrupt() error {
	f.interrupts.Add(1)
	if f.exitOnSignal {
		f.exit()
	}
	return nil
}

func (f *fakeTarget) Kill() error {
	f.kills.Add(1)
	if f.exitOnKill {
		f.exit()
	}
	return f.killErr
}

func (f *fakeTarget) Done() <-chan struct{} { return f.done }

func TestTerminate_AlreadyExited(t *testing.T) {
	f := newFakeTarget()
	f.exit()

	require.NoError(t, Terminate(f, 10*time.Millisecond))
	assert.Zero(t, f.interrupts.Load())
	assert.Zero(t, f.kills.Load())
}

func TestTerminate_GracefulExit(t *testing.T) {
	f := newFakeTarget()
	f.exitOnSignal = true

	require.NoError(t, Terminate(f, time.Second))
	assert.Equal(t, int32(1), f.interrupts.Load())
	assert.Zero(t, f.kills.Load(), "no kill when the interrupt suffices")
}

func TestTerminate_EscalatesAfterGrace(t *testing.T) {
	f := newFakeTarget()
	f.exitOnKill = true

	start := time.Now()
	require.NoError(t, Terminate(f, 50*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int32(1), f.interrupts.Load())
	assert.Equal(t, int32(1), f.kills.Load())
}

func TestTerminate_StillRunning(t *testing.T) {
	f := newFakeTarget()

	err := Terminate(f, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrStillRunning)
}

func TestTerminate_KillError(t *testing.T) {
	f := newFakeTarget()
	f.killErr = errors.New("boom")

	err := Terminate(f, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestKillTree(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	cmd := exec.Command(sh, "-c", "sleep 30 & sleep 30")
	Prepare(cmd)
	require.NoError(t, cmd.Start())

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	// Give the shell a moment to fork its children.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, KillTree(ctx, cmd.Process.Pid))

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("process tree still running")
	}
}

func TestInterruptAndKill(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	cmd := exec.Command(sleep, "30")
	Prepare(cmd)
	require.NoError(t, cmd.Start())

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	require.NoError(t, Interrupt(cmd.Process))
	select {
	case err := <-waited:
		assert.Error(t, err, "terminated by signal")
	case <-time.After(5 * time.Second):
		require.NoError(t, Kill(cmd.Process))
		t.Fatal("interrupt did not stop the process")
	}
}
