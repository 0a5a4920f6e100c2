package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/mcudbg/internal/board"
	"github.com/coral-mesh/mcudbg/internal/config"
	"github.com/coral-mesh/mcudbg/internal/debug"
	"github.com/coral-mesh/mcudbg/internal/probe"
)

// newController wires a debug controller from cfg: the probe executor as the
// transport, the configured device globs for board detection and the
// workspace artifacts for symbol lookup.
func newController(cfg *config.Config, logger zerolog.Logger) *debug.Controller {
	executor := probe.NewExecutor(cfg.Probe, logger)
	return debug.NewController(
		cfg.Session,
		debug.NewTransport(executor),
		board.NewGlobEnumerator(cfg.Board.Globs),
		newWorkspace(cfg, logger),
		logger,
		debug.WithBreakpointSlots(cfg.Breakpoints.Slots),
		debug.WithDetectRetry(cfg.DetectRetry()),
	)
}

func newWorkspace(cfg *config.Config, logger zerolog.Logger) *debug.Workspace {
	return debug.NewWorkspace(cfg.Workspace, logger)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
