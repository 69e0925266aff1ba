package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
)

// PollConfig bounds a polling loop.
type PollConfig struct {
	// Operation names what is being waited for, used in error messages.
	Operation string

	// MaxWait is the hard ceiling for the whole loop.
	MaxWait time.Duration

	// Interval is the delay before the second attempt.
	Interval time.Duration

	// Multiplier grows the interval after every attempt. Values <= 1 poll at a fixed interval.
	Multiplier float64

	// MaxInterval caps the grown interval. Zero means no cap other than MaxWait.
	MaxInterval time.Duration

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// ConditionFunc reports whether the awaited condition holds.
// A non-nil error marked with Fatal aborts polling; any other error counts
// as a failed attempt and is remembered for the timeout report.
type ConditionFunc func(ctx context.Context, attempt int) (bool, error)

// TimeoutError is returned when a polling loop exhausts its MaxWait.
type TimeoutError struct {
	Operation string
	Waited    time.Duration
	Interval  time.Duration
	Attempts  int
	LastErr   error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out waiting for %s after %v (polled every %v, %d attempts)",
		e.Operation, e.Waited, e.Interval, e.Attempts)
	if e.LastErr != nil {
		msg += fmt.Sprintf(": last error: %v", e.LastErr)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// IsTimeout checks if an error is a polling timeout.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// Poll evaluates cond until it returns true, a fatal error occurs, the
// context is done, or MaxWait elapses. The first attempt happens
// immediately and later attempts start one interval after the previous one
// started, so a slow condition does not stretch the cadence. Each call to
// cond is bounded by the time left before the deadline, and the final sleep
// is shortened so that Poll returns at the deadline rather than running
// past it. It returns the number of attempts made.
func Poll(ctx context.Context, cfg PollConfig, cond ConditionFunc) (int, error) {
	if cfg.MaxWait <= 0 {
		return 0, Fatal(fmt.Errorf("poll %s: max wait must be positive, got %v", cfg.Operation, cfg.MaxWait))
	}
	if cfg.Interval <= 0 {
		return 0, Fatal(fmt.Errorf("poll %s: interval must be positive, got %v", cfg.Operation, cfg.Interval))
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	start := clk.Now()
	deadline := start.Add(cfg.MaxWait)
	interval := cfg.Interval
	attempts := 0
	var lastErr error

	for {
		attempts++
		began := clk.Now()
		done, err := attempt(ctx, deadline.Sub(began), attempts, cond)
		if err != nil {
			if IsFatal(err) {
				return attempts, err
			}
			lastErr = err
		} else if done {
			return attempts, nil
		}

		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			break
		}
		wait := min(interval-clk.Now().Sub(began), remaining)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return attempts, fmt.Errorf("%s cancelled after %d attempts: %w", cfg.Operation, attempts, ctx.Err())
			case <-clk.After(wait):
			}
		} else if ctx.Err() != nil {
			return attempts, fmt.Errorf("%s cancelled after %d attempts: %w", cfg.Operation, attempts, ctx.Err())
		}

		if !clk.Now().Before(deadline) {
			break
		}
		interval = nextDelay(interval, cfg.Multiplier, cfg.MaxInterval)
	}

	return attempts, &TimeoutError{
		Operation: cfg.Operation,
		Waited:    clk.Now().Sub(start),
		Interval:  cfg.Interval,
		Attempts:  attempts,
		LastErr:   lastErr,
	}
}

// attempt runs cond with a context that expires when the poll's time is up.
func attempt(ctx context.Context, remaining time.Duration, n int, cond ConditionFunc) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()
	return cond(ctx, n)
}
