// Package resilience provides the retry-with-backoff primitive the source
// reader and sink publishers use, adapted from the teacher's
// infrastructure/resilience package. It has no circuit breaker.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff with a ceiling. Jitter is
// proportional, not full: each wait is the current delay plus or minus a
// random amount of up to Jitter times that delay.
type RetryConfig struct {
	MaxAttempts  int // 0 means unbounded, consulted until ctx is cancelled.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, fraction of the delay randomised.
}

// SourceReconnectConfig is the backoff policy spec §4.3 names for source
// reconnects: 100ms initial, factor 2, 30s cap, unbounded retries.
func SourceReconnectConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  0,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// SinkRetryConfig is the backoff policy spec §4.5 names for the HTTP sink:
// up to 3 attempts.
func SinkRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Permanent wraps an error to signal Retry that no further attempt should
// be made, even though attempts remain or MaxAttempts is unbounded.
type Permanent struct{ Err error }

func (p Permanent) Error() string { return p.Err.Error() }
func (p Permanent) Unwrap() error { return p.Err }

// Retry executes fn with exponential backoff. A MaxAttempts of 0 retries
// until ctx is cancelled. fn may return a Permanent error to stop retrying
// immediately; Retry returns the wrapped error in that case.
func Retry(ctx context.Context, cfg RetryConfig, fn func(attempt int) error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; cfg.MaxAttempts == 0 || attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if perm, ok := err.(Permanent); ok {
			return perm.Err
		}
		lastErr = err

		if cfg.MaxAttempts != 0 && attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(addJitter(delay, cfg.Jitter)):
		}
		delay = nextDelay(delay, cfg)
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
