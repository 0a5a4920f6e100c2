package testutil

import (
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a debug-level logger whose lines go to tb.Log, so
// they only show up for failing tests or under -v. Lines written after the
// test has finished, typically by a detector goroutine still winding down,
// are dropped instead of panicking.
func NewTestLogger(tb testing.TB) zerolog.Logger {
	tb.Helper()
	w := &tbWriter{tb: tb}
	tb.Cleanup(w.close)

	out := zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}
	return zerolog.New(out).Level(zerolog.DebugLevel)
}

type tbWriter struct {
	mu     sync.Mutex
	tb     testing.TB
	closed bool
}

func (w *tbWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.tb.Log(strings.TrimRight(string(p), "\n"))
	}
	return len(p), nil
}

func (w *tbWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
