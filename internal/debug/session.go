package debug

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/mcudbg/internal/board"
	"github.com/coral-mesh/mcudbg/internal/breakpoint"
	"github.com/coral-mesh/mcudbg/internal/constants"
	"github.com/coral-mesh/mcudbg/internal/probe"
	"github.com/coral-mesh/mcudbg/internal/retry"
)

var (
	// ErrNoActiveSession means the operation needs a session and there is none.
	ErrNoActiveSession = errors.New("no active debug session")

	// ErrSessionActive means a session is already running.
	ErrSessionActive = errors.New("debug session already active")

	// ErrNoBoard means no board was found and offline sessions are not allowed.
	ErrNoBoard = errors.New("no board found")

	// ErrOfflineUnsupported means the operation needs hardware.
	ErrOfflineUnsupported = errors.New("operation requires a connected board")

	// ErrTargetRunning means the resume monitor holds the transport.
	ErrTargetRunning = errors.New("target is running; halt it first")
)

// State is the controller's session state.
type State string

const (
	StateInactive State = "inactive"
	StateStarting State = "starting"
	StateHalted   State = "halted"
	StateRunning  State = "running"
	StateOffline  State = "offline"
)

// Session describes one debugging session.
type Session struct {
	ID        string      `json:"id"`
	Board     board.Board `json:"board"`
	Active    bool        `json:"active"`
	StartedAt time.Time   `json:"started_at"`
}

// Status is a snapshot of the controller.
type Status struct {
	State       State    `json:"state"`
	Session     *Session `json:"session,omitempty"`
	Monitoring  bool     `json:"monitoring"`
	Breakpoints int      `json:"breakpoints"`
	Armed       int      `json:"armed"`
	Listing     bool     `json:"listing_loaded"`
}

// Controller owns the debugging session for one target.
type Controller struct {
	cfg         Config
	transport   Transport
	enum        board.Enumerator
	workspace   *Workspace
	breakpoints *breakpoint.Registry
	events      *broker
	logger      zerolog.Logger
	slots       int
	detectRetry retry.Config

	// opMu serializes lifecycle operations and transport commands.
	opMu sync.Mutex

	mu            sync.Mutex
	state         State
	session       *Session
	last          *Session
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	monitor       Monitor
	monitorGen    uint64
	registers     []probe.RegisterInfo
}

// NewController creates a controller. enum may be nil, which disables
// auto-detection and the liveness check; ws may be nil for no artifacts.
func NewController(cfg Config, transport Transport, enum board.Enumerator, ws *Workspace, logger zerolog.Logger, opts ...Option) *Controller {
	logger = logger.With().Str("component", "debug").Logger()
	if ws == nil {
		ws = NewWorkspace(WorkspaceConfig{}, logger)
	}

	c := &Controller{
		cfg:         cfg.withDefaults(),
		transport:   transport,
		enum:        enum,
		workspace:   ws,
		events:      newBroker(logger),
		logger:      logger,
		slots:       constants.DefaultBreakpointSlots,
		detectRetry: defaultDetectRetry(),
		state:       StateInactive,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breakpoints = breakpoint.NewRegistry(c, ws, c.slots, logger)
	return c
}

// Subscribe returns a channel of session events and a function that ends the
// subscription and closes the channel. Events are dropped for a subscriber
// whose buffer is full.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.subscribe(buffer)
}

// Breakpoints returns the breakpoint registry, wired to this controller as its device.
func (c *Controller) Breakpoints() *breakpoint.Registry {
	return c.breakpoints
}

// Workspace returns the build artifact source.
func (c *Controller) Workspace() *Workspace {
	return c.workspace
}

// ReloadWorkspace re-resolves breakpoints against the current artifacts. It
// returns the IDs of armed breakpoints whose address moved.
func (c *Controller) ReloadWorkspace() []string {
	return c.breakpoints.Rebind(c.workspace)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{State: c.state, Monitoring: c.monitor != nil}
	switch {
	case c.session != nil:
		s := *c.session
		st.Session = &s
	case c.last != nil:
		s := *c.last
		st.Session = &s
	}
	c.mu.Unlock()

	st.Breakpoints = len(c.breakpoints.List())
	st.Armed = c.breakpoints.Armed()
	st.Listing = c.workspace.Mapper().Loaded()
	return st
}

// Start opens a session. The port is taken from opts, then configuration, and
// detected otherwise. With no board found the session starts offline if that
// is allowed.
func (c *Controller) Start(ctx context.Context, opts StartOptions) (Session, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != StateInactive {
		c.mu.Unlock()
		return Session{}, ErrSessionActive
	}
	c.state = StateStarting
	c.mu.Unlock()

	fail := func(err error) (Session, error) {
		c.mu.Lock()
		c.state = StateInactive
		c.mu.Unlock()
		return Session{}, err
	}

	b, watch, err := c.selectBoard(ctx, opts)
	if err != nil {
		return fail(err)
	}
	if !b.Offline {
		if err := c.transport.CheckTool(); err != nil {
			return fail(err)
		}
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	session := Session{
		ID:        uuid.New().String(),
		Board:     b,
		Active:    true,
		StartedAt: time.Now(),
	}

	c.mu.Lock()
	c.session = &session
	c.sessionCtx = sessionCtx
	c.sessionCancel = cancel
	c.registers = nil
	if b.Offline {
		c.state = StateOffline
	} else {
		c.state = StateRunning
	}
	c.mu.Unlock()

	if watch && c.enum != nil {
		checker := NewLivenessChecker(c.enum, c.cfg.LivenessInterval, c.logger)
		go checker.Run(sessionCtx, b.Port, func() {
			c.terminate(session.ID, "board no longer attached")
		})
	}

	c.logger.Info().
		Str("session_id", session.ID).
		Str("port", b.Port).
		Bool("offline", b.Offline).
		Msg("Debug session started")

	if !b.Offline && (opts.AutoHalt || c.cfg.AutoHalt) {
		if _, err := c.haltLocked(ctx, session); err != nil {
			c.logger.Warn().Err(err).Msg("Auto-halt failed, target left running")
		}
	}

	return session, nil
}

// selectBoard picks the board for a new session. watch reports whether the
// board was seen in an enumeration, which makes the liveness check meaningful.
func (c *Controller) selectBoard(ctx context.Context, opts StartOptions) (b board.Board, watch bool, err error) {
	port := opts.Port
	if port == "" {
		port = c.cfg.PreferredPort
	}
	if port != "" {
		if c.enum != nil {
			if boards, err := c.enum.List(ctx); err == nil && board.Contains(boards, port) {
				watch = true
			}
		}
		return board.Board{Port: port, Name: port}, watch, nil
	}

	if c.enum != nil {
		found, err := board.Detect(ctx, c.enum, c.detectRetry)
		if err == nil {
			return found, true, nil
		}
		if !errors.Is(err, board.ErrNoBoard) {
			return board.Board{}, false, err
		}
	}

	if opts.AllowOffline || c.cfg.AllowOffline {
		c.logger.Info().Msg("No board found, starting offline session")
		return board.Offline, false, nil
	}
	return board.Board{}, false, ErrNoBoard
}

// Stop ends the session. Stopping with no session is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil
	}
	id := c.session.ID
	c.mu.Unlock()

	c.shutdown(id, "stopped", false)
	return nil
}

// terminate ends the session because the target disappeared. It is safe to
// call from any goroutine and emits EventDeviceDisconnected at most once per
// session.
func (c *Controller) terminate(sessionID, reason string) {
	c.shutdown(sessionID, reason, true)
}

// shutdown ends session sessionID if it is still the current one. It never
// waits for opMu, so it can run while a command is stuck on the transport.
func (c *Controller) shutdown(sessionID, reason string, disconnected bool) {
	c.mu.Lock()
	if c.session == nil || c.session.ID != sessionID {
		c.mu.Unlock()
		return
	}
	mon := c.monitor
	c.monitor = nil
	c.monitorGen++
	cancel := c.sessionCancel
	c.session.Active = false
	c.last = c.session
	c.session = nil
	c.sessionCtx, c.sessionCancel = nil, nil
	c.state = StateInactive
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if mon != nil {
		if disconnected {
			_ = mon.Kill()
		}
		if err := mon.Terminate(c.cfg.MonitorGrace); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to stop monitor")
		}
	}
	if err := c.transport.KillAll(c.cfg.MonitorGrace); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to stop probe processes")
	}
	c.breakpoints.Reset()

	c.logger.Info().
		Str("session_id", sessionID).
		Str("reason", reason).
		Msg("Debug session ended")

	if disconnected {
		c.events.publish(Event{
			Kind:      EventDeviceDisconnected,
			SessionID: sessionID,
			Time:      time.Now(),
			Reason:    reason,
		})
	}
}

// current returns the active session and whether the monitor is running.
func (c *Controller) current() (Session, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false, ErrNoActiveSession
	}
	return *c.session, c.monitor != nil, nil
}

// hardware returns the active session, refusing offline sessions.
func (c *Controller) hardware() (Session, bool, error) {
	s, running, err := c.current()
	if err != nil {
		return Session{}, false, err
	}
	if s.Board.Offline {
		return Session{}, false, ErrOfflineUnsupported
	}
	return s, running, nil
}

// stopMonitor terminates the resume monitor, if any, and waits for it to exit.
func (c *Controller) stopMonitor() {
	c.mu.Lock()
	mon := c.monitor
	c.monitor = nil
	c.monitorGen++
	c.mu.Unlock()

	if mon == nil {
		return
	}
	if err := mon.Terminate(c.cfg.MonitorGrace); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to stop monitor")
	}
}

// setState records a post-command state if sessionID is still current.
func (c *Controller) setState(sessionID string, st State, regs []probe.RegisterInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.ID != sessionID {
		return false
	}
	c.state = st
	if regs != nil {
		c.registers = regs
	}
	return true
}

func (c *Controller) emit(kind EventKind, sessionID string) {
	c.events.publish(Event{Kind: kind, SessionID: sessionID, Time: time.Now()})
}

// Halt stops the target and returns its registers. A running monitor is
// stopped before the halt command is sent.
func (c *Controller) Halt(ctx context.Context) ([]probe.RegisterInfo, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, _, err := c.hardware()
	if err != nil {
		return nil, err
	}
	return c.haltLocked(ctx, s)
}

func (c *Controller) haltLocked(ctx context.Context, s Session) ([]probe.RegisterInfo, error) {
	c.stopMonitor()

	if _, err := c.transport.Run(ctx, s.Board.Port, probe.CmdHalt); err != nil {
		return nil, fmt.Errorf("failed to halt target: %w", err)
	}

	regs, err := c.readAll(ctx, s.Board.Port)
	if !c.setState(s.ID, StateHalted, regs) {
		return nil, ErrNoActiveSession
	}
	c.emit(EventHalted, s.ID)
	if err != nil {
		return nil, fmt.Errorf("target halted but registers could not be read: %w", err)
	}
	return regs, nil
}

// Resume lets the target run and watches it with a monitor process until it
// halts. Resuming while already monitored is a no-op.
func (c *Controller) Resume(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, running, err := c.hardware()
	if err != nil {
		return err
	}
	if running {
		return nil
	}

	c.mu.Lock()
	c.monitorGen++
	gen := c.monitorGen
	sessionCtx := c.sessionCtx
	c.mu.Unlock()

	halt := NewHaltDetector(c.cfg.HaltIndicators)
	disconnect := NewStderrDetector(c.cfg.DisconnectIndicators, c.cfg.DisconnectThreshold)
	handlers := probe.Handlers{
		Stdout: func(chunk string) {
			if halt.Feed(chunk) {
				go c.onMonitorHalt(s.ID, gen)
			}
		},
		Stderr: func(chunk string) {
			if disconnect.Feed(chunk) {
				c.logger.Warn().Str("stderr", chunk).Msg("Probe reports the target is unreachable")
				go c.terminate(s.ID, "probe reported disconnect")
			}
		},
	}

	mon, err := c.transport.Monitor(sessionCtx, s.Board.Port, handlers, probe.CmdResume)
	if err != nil {
		return fmt.Errorf("failed to resume target: %w", err)
	}

	c.mu.Lock()
	if c.monitorGen != gen || c.session == nil || c.session.ID != s.ID {
		c.mu.Unlock()
		_ = mon.Terminate(c.cfg.MonitorGrace)
		return ErrNoActiveSession
	}
	c.monitor = mon
	c.state = StateRunning
	c.mu.Unlock()

	go c.watchMonitor(mon)

	c.logger.Debug().Str("session_id", s.ID).Msg("Target resumed")
	return nil
}

// watchMonitor clears the monitor handle once the process exits by itself.
func (c *Controller) watchMonitor(mon Monitor) {
	<-mon.Done()

	c.mu.Lock()
	current := c.monitor == mon
	if current {
		c.monitor = nil
	}
	c.mu.Unlock()

	if current {
		if err := mon.Err(); err != nil {
			c.logger.Warn().Err(err).Msg("Monitor exited without reporting a halt")
		} else {
			c.logger.Debug().Msg("Monitor exited")
		}
	}
}

// onMonitorHalt handles the monitor reporting that the target stopped.
func (c *Controller) onMonitorHalt(sessionID string, gen uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.monitorGen != gen || c.session == nil || c.session.ID != sessionID {
		c.mu.Unlock()
		return
	}
	mon := c.monitor
	port := c.session.Board.Port
	ctx := c.sessionCtx
	c.mu.Unlock()

	if mon != nil {
		select {
		case <-mon.Done():
		case <-time.After(c.cfg.MonitorGrace):
			if err := mon.Terminate(c.cfg.MonitorGrace); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to stop monitor after halt")
			}
		}
	}

	c.mu.Lock()
	if c.monitorGen != gen {
		c.mu.Unlock()
		return
	}
	c.monitor = nil
	c.monitorGen++
	c.mu.Unlock()

	regs, err := c.readAll(ctx, port)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read registers after halt")
	}
	if !c.setState(sessionID, StateHalted, regs) {
		return
	}
	c.emit(EventBreakpointHit, sessionID)
}

// Step executes one instruction and returns the registers afterwards.
func (c *Controller) Step(ctx context.Context) ([]probe.RegisterInfo, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, _, err := c.hardware()
	if err != nil {
		return nil, err
	}
	c.stopMonitor()

	if _, err := c.transport.Run(ctx, s.Board.Port, probe.CmdStep); err != nil {
		return nil, fmt.Errorf("failed to step target: %w", err)
	}

	regs, err := c.readAll(ctx, s.Board.Port)
	if !c.setState(s.ID, StateHalted, regs) {
		return nil, ErrNoActiveSession
	}
	c.emit(EventStepCompleted, s.ID)
	if err != nil {
		return nil, fmt.Errorf("step completed but registers could not be read: %w", err)
	}
	return regs, nil
}

func (c *Controller) readAll(ctx context.Context, port string) ([]probe.RegisterInfo, error) {
	out, err := c.transport.Run(ctx, port, probe.CmdReadAll)
	if err != nil {
		return nil, err
	}
	return probe.ParseRegisters(out), nil
}
