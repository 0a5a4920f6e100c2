// Package retry runs an operation again after transient failures, waiting an
// exponentially growing backoff between attempts.
//
// mcudbg uses it where hardware is slow to settle, such as enumerating a debug
// probe that has just been plugged in:
//
//	err := retry.Do(ctx, retry.Config{MaxRetries: 3, InitialBackoff: 200 * time.Millisecond},
//	    func() error { return detect(ctx) },
//	    func(err error) bool { return errors.Is(err, board.ErrNoBoard) })
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config defines the retry behavior.
//
// The zero value is not usable; MaxRetries and InitialBackoff must be set.
type Config struct {
	// MaxRetries is the total number of attempts, including the first one.
	MaxRetries int

	// InitialBackoff is the wait before the second attempt. Each later wait doubles.
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter adds up to this fraction of the backoff, growing with the attempt
	// number. Zero means no jitter.
	Jitter float64
}

// ShouldRetryFunc reports whether err is worth another attempt.
// A nil ShouldRetryFunc retries every error.
type ShouldRetryFunc func(error) bool

// Do calls fn until it succeeds, shouldRetry rejects its error, the attempts run
// out or ctx is done. Exhaustion wraps the last error of fn.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(Backoff(cfg, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// Backoff returns the wait before the given attempt (attempt >= 1):
// InitialBackoff * 2^(attempt-1), capped by MaxBackoff, plus jitter.
func Backoff(cfg Config, attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt-1)) * float64(cfg.InitialBackoff))

	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	if cfg.Jitter > 0 && cfg.MaxRetries > 0 {
		backoff += time.Duration(float64(backoff) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries))
	}

	return backoff
}
