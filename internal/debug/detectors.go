package debug

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/mcudbg/internal/board"
	"github.com/coral-mesh/mcudbg/internal/constants"
)

// HaltDetector watches monitor stdout for a halt indication. It fires at most
// once, and finds indications split across chunk boundaries.
type HaltDetector struct {
	patterns []string
	keep     int

	mu    sync.Mutex
	carry string
	fired bool
}

// NewHaltDetector creates a detector for patterns, or the defaults when empty.
func NewHaltDetector(patterns []string) *HaltDetector {
	patterns = nonEmpty(patterns, constants.DefaultHaltIndicators)
	keep := 0
	for _, p := range patterns {
		if len(p)-1 > keep {
			keep = len(p) - 1
		}
	}
	return &HaltDetector{patterns: patterns, keep: keep}
}

// Feed consumes one stdout chunk and reports whether it completed the first
// halt indication.
func (d *HaltDetector) Feed(chunk string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fired {
		return false
	}

	text := d.carry + chunk
	for _, p := range d.patterns {
		if strings.Contains(text, p) {
			d.fired = true
			d.carry = ""
			return true
		}
	}

	if len(text) > d.keep {
		text = text[len(text)-d.keep:]
	}
	d.carry = text
	return false
}

// Fired reports whether a halt has been seen.
func (d *HaltDetector) Fired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired
}

// StderrDetector counts consecutive stderr chunks that look like a lost
// connection. A non-matching chunk resets the count. It trips once, when the
// count reaches the threshold.
type StderrDetector struct {
	patterns  []string
	threshold int

	mu      sync.Mutex
	count   int
	tripped bool
}

// NewStderrDetector creates a detector. Empty patterns and a non-positive
// threshold take the defaults.
func NewStderrDetector(patterns []string, threshold int) *StderrDetector {
	if threshold <= 0 {
		threshold = constants.DefaultDisconnectThreshold
	}
	return &StderrDetector{
		patterns:  nonEmpty(patterns, constants.DefaultDisconnectIndicators),
		threshold: threshold,
	}
}

// Feed consumes one stderr chunk and reports whether the detector just tripped.
func (d *StderrDetector) Feed(chunk string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tripped {
		return false
	}
	if !containsAny(chunk, d.patterns) {
		d.count = 0
		return false
	}
	d.count++
	if d.count >= d.threshold {
		d.tripped = true
		return true
	}
	return false
}

// Count returns the current run of consecutive matching chunks.
func (d *StderrDetector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// LivenessChecker periodically re-enumerates boards and reports when the
// session's port disappears. It only reads; it never talks to the target.
type LivenessChecker struct {
	enum     board.Enumerator
	interval time.Duration
	logger   zerolog.Logger
}

// NewLivenessChecker creates a checker. A non-positive interval takes the default.
func NewLivenessChecker(enum board.Enumerator, interval time.Duration, logger zerolog.Logger) *LivenessChecker {
	if interval <= 0 {
		interval = constants.DefaultLivenessInterval
	}
	return &LivenessChecker{enum: enum, interval: interval, logger: logger}
}

// Run ticks until ctx is done or port is missing from an enumeration, in which
// case onLost is called once and Run returns. Enumeration errors are logged
// and the tick is skipped.
func (l *LivenessChecker) Run(ctx context.Context, port string, onLost func()) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		boards, err := l.enum.List(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Debug().Err(err).Msg("Board enumeration failed during liveness check")
			continue
		}
		if !board.Contains(boards, port) {
			l.logger.Warn().Str("port", port).Msg("Board no longer attached")
			onLost()
			return
		}
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func nonEmpty(patterns, defaults []string) []string {
	var out []string
	for _, p := range patterns {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}
