package debug

import (
	"context"
	"time"

	"github.com/coral-mesh/mcudbg/internal/probe"
)

// Monitor is a running "resume" process.
type Monitor interface {
	Done() <-chan struct{}
	Err() error
	Terminate(grace time.Duration) error
	Kill() error
}

// Transport issues probe tool commands against a port.
type Transport interface {
	Run(ctx context.Context, port string, args ...string) (string, error)
	Monitor(ctx context.Context, port string, h probe.Handlers, args ...string) (Monitor, error)
	KillAll(grace time.Duration) error
	CheckTool() error
}

type executorTransport struct {
	*probe.Executor
}

// NewTransport adapts a probe executor to Transport.
func NewTransport(e *probe.Executor) Transport {
	return executorTransport{e}
}

func (t executorTransport) Monitor(ctx context.Context, port string, h probe.Handlers, args ...string) (Monitor, error) {
	p, err := t.Stream(ctx, port, h, args...)
	if err != nil {
		return nil, err
	}
	return p, nil
}
