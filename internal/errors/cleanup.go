// Package errors provides cleanup helpers shared by mcudbg packages.
package errors

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// DeferClose properly closes an io.Closer with logging.
// Use this in defer statements to avoid suppressing close errors.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// Stopper is anything with a context-bounded Stop, such as a debug controller.
type Stopper interface {
	Stop(ctx context.Context) error
}

// DeferStop stops s within timeout and logs a failure instead of returning it.
func DeferStop(logger zerolog.Logger, s Stopper, timeout time.Duration, msg string) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// Must panics if error is not nil.
// Use only for initialization code where failure should halt the program.
func Must(err error, msg string) {
	if err != nil {
		panic(fmt.Sprintf("%s: %v", msg, err))
	}
}
