package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
)

// backoff is the schedule WithExponentialBackoff follows.
type backoff struct {
	maxRetries int
	delay      time.Duration
	maxDelay   time.Duration
	multiplier float64
	clock      clock.Clock
}

func defaultBackoff() backoff {
	return backoff{
		maxRetries: 5,
		delay:      time.Second,
		maxDelay:   30 * time.Second,
		multiplier: 2,
		clock:      clock.WallClock,
	}
}

// Option adjusts the backoff schedule.
type Option func(*backoff)

// WithMaxRetries sets how many times a failed attempt is repeated.
// The operation runs at most n+1 times.
func WithMaxRetries(n int) Option {
	return func(b *backoff) { b.maxRetries = n }
}

// WithInitialDelay sets the wait before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(b *backoff) { b.delay = d }
}

// WithMaxDelay caps the grown delay.
func WithMaxDelay(d time.Duration) Option {
	return func(b *backoff) { b.maxDelay = d }
}

// WithMultiplier sets the growth factor between retries.
func WithMultiplier(m float64) Option {
	return func(b *backoff) { b.multiplier = m }
}

// WithClock replaces the wall clock. A nil clock is ignored.
func WithClock(clk clock.Clock) Option {
	return func(b *backoff) {
		if clk != nil {
			b.clock = clk
		}
	}
}

// WithExponentialBackoff runs operation until it succeeds, returns a Fatal
// error, the retries run out, or ctx is done while waiting.
func WithExponentialBackoff(ctx context.Context, operation func() error, opts ...Option) error {
	b := defaultBackoff()
	for _, opt := range opts {
		opt(&b)
	}

	delay := b.delay
	for attempt := 1; ; attempt++ {
		err := operation()
		switch {
		case err == nil:
			return nil
		case IsFatal(err):
			return fmt.Errorf("fatal error (not retrying): %w", err)
		case attempt > b.maxRetries:
			return fmt.Errorf("operation failed after %d retries: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-b.clock.After(delay):
		}
		delay = nextDelay(delay, b.multiplier, b.maxDelay)
	}
}

// nextDelay grows delay by multiplier, capped at ceiling when ceiling is positive.
func nextDelay(delay time.Duration, multiplier float64, ceiling time.Duration) time.Duration {
	if multiplier > 1 {
		delay = time.Duration(float64(delay) * multiplier)
	}
	if ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	return delay
}

// FatalError marks an error that retrying cannot fix.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so that WithExponentialBackoff and Poll stop at once.
// Fatal(nil) is nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err, or anything it wraps, is a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
