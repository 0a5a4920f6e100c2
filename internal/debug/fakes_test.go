package debug

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/mcudbg/internal/board"
	"github.com/coral-mesh/mcudbg/internal/probe"
	"github.com/coral-mesh/mcudbg/internal/testutil"
)

const testPort = "/dev/ttyACM0"

const readAllOutput = "R0: 0x00000001\nSP: 0x20001000\nPC: 0x00000132\n"

// fakeTransport records every command and answers from a table keyed by the
// joined arguments.
type fakeTransport struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]string
	errs      map[string]error
	toolErr   error
	monitors  []*fakeMonitor
	killAlls  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: map[string]string{
			"read-all":    readAllOutput,
			"read-reg pc": "PC: 0x00000132\n",
			"bp --list":   "",
		},
		errs: map[string]error{},
	}
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTransport) Run(_ context.Context, port string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	f.record(key)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[key]; err != nil {
		return "", err
	}
	return f.responses[key], nil
}

func (f *fakeTransport) Monitor(_ context.Context, port string, h probe.Handlers, args ...string) (Monitor, error) {
	key := strings.Join(args, " ")
	f.record("monitor " + key)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["monitor "+key]; err != nil {
		return nil, err
	}
	m := &fakeMonitor{t: f, h: h, done: make(chan struct{})}
	f.monitors = append(f.monitors, m)
	return m, nil
}

func (f *fakeTransport) KillAll(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killAlls++
	return nil
}

func (f *fakeTransport) CheckTool() error {
	return f.toolErr
}

func (f *fakeTransport) set(key, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = out
}

func (f *fakeTransport) fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = err
}

func (f *fakeTransport) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeTransport) lastMonitor(t *testing.T) *fakeMonitor {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.monitors)
	return f.monitors[len(f.monitors)-1]
}

// fakeMonitor is a resume process the test drives by hand.
type fakeMonitor struct {
	t      *fakeTransport
	h      probe.Handlers
	done   chan struct{}
	once   sync.Once
	killed atomic.Bool
}

func (m *fakeMonitor) stdout(chunk string) { m.h.Stdout(chunk) }
func (m *fakeMonitor) stderr(chunk string) { m.h.Stderr(chunk) }
func (m *fakeMonitor) exit()               { m.once.Do(func() { close(m.done) }) }

func (m *fakeMonitor) Done() <-chan struct{} { return m.done }
func (m *fakeMonitor) Err() error            { return nil }

func (m *fakeMonitor) Terminate(time.Duration) error {
	select {
	case <-m.done:
		return nil
	default:
	}
	m.t.record("monitor-stop")
	m.exit()
	return nil
}

func (m *fakeMonitor) Kill() error {
	m.killed.Store(true)
	m.exit()
	return nil
}

// fakeBoards is an enumerator whose attached boards can be changed mid-test.
type fakeBoards struct {
	mu     sync.Mutex
	boards []board.Board
}

func (f *fakeBoards) List(context.Context) ([]board.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]board.Board(nil), f.boards...), nil
}

func (f *fakeBoards) set(boards ...board.Board) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards = boards
}

type harness struct {
	ctrl      *Controller
	transport *fakeTransport
	boards    *fakeBoards
	events    <-chan Event
}

func newHarness(t *testing.T, cfg Config, ws *Workspace) *harness {
	t.Helper()
	tr := newFakeTransport()
	boards := &fakeBoards{boards: []board.Board{{Port: testPort, Name: "ttyACM0"}}}
	ctrl := NewController(cfg, tr, boards, ws, testutil.NewTestLogger(t))

	events, cancel := ctrl.Subscribe(16)
	t.Cleanup(func() {
		_ = ctrl.Stop(context.Background())
		cancel()
	})
	return &harness{ctrl: ctrl, transport: tr, boards: boards, events: events}
}

func (h *harness) start(t *testing.T) Session {
	t.Helper()
	s, err := h.ctrl.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	h.transport.reset()
	return s
}

func (h *harness) expectEvent(t *testing.T, kind EventKind) Event {
	t.Helper()
	select {
	case ev := <-h.events:
		require.Equal(t, kind, ev.Kind)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s event", kind)
		return Event{}
	}
}

func (h *harness) expectNoEvent(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected %s event", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}
