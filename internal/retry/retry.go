// Package retry retries transient failures with exponential backoff. The core
// runtime never retries on its own; agents opt in where a full mailbox is
// worth waiting out.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	perrors "github.com/p-blackswan/agentropic/internal/errors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// Retryable classifies errors. Nil uses perrors.IsRetryable.
	Retryable func(error) bool
}

// DefaultConfig suits in-process delivery: short delays, few attempts.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 4,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
		Jitter:      true,
	}
}

// Backoff returns the delay before attempt n+1 (n counts from zero).
func (c Config) Backoff(n int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(n)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	if c.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = perrors.IsRetryable
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for n := 0; n < attempts; n++ {
		if err = fn(ctx); err == nil || !retryable(err) {
			return err
		}
		if n == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Backoff(n)):
		}
	}
	return err
}
