package readiness

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/kballard/go-shellquote"

	"github.com/imamik/edgerun/internal/platform/ssh"
	"github.com/imamik/edgerun/internal/util/retry"
)

// State is how far a node has come towards readiness.
type State int

const (
	// Unreachable means no command channel could be opened.
	Unreachable State = iota
	// Reachable means the command channel accepted a no-op command.
	Reachable
	// MarkerPending means the node is reachable but has not written its
	// completion marker.
	MarkerPending
	// Ready means the node is reachable and the marker exists.
	Ready
)

func (s State) String() string {
	switch s {
	case Unreachable:
		return "unreachable"
	case Reachable:
		return "reachable"
	case MarkerPending:
		return "marker-pending"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Prober reaches the node. *ssh.Client implements it.
type Prober interface {
	// Probe opens the command channel once and runs a no-op.
	Probe(ctx context.Context) error
	// Run runs command once, without connection retries.
	Run(ctx context.Context, command string) (string, error)
}

// Logger receives progress lines.
type Logger interface {
	Printf(format string, v ...any)
}

// Waiter polls a node until it is ready. States only move forward.
type Waiter struct {
	prober      Prober
	marker      string
	clock       clock.Clock
	multiplier  float64
	maxInterval time.Duration
	log         Logger
	onAttempt   func(attempt int, state State)

	mu    sync.Mutex
	state State
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithClock sets the clock used between probes.
func WithClock(clk clock.Clock) Option {
	return func(w *Waiter) {
		w.clock = clk
	}
}

// WithBackoff grows the probe interval by multiplier after every attempt,
// up to maxInterval. The default polls at a fixed interval.
func WithBackoff(multiplier float64, maxInterval time.Duration) Option {
	return func(w *Waiter) {
		w.multiplier = multiplier
		w.maxInterval = maxInterval
	}
}

// WithLogger sets where progress is logged.
func WithLogger(l Logger) Option {
	return func(w *Waiter) {
		w.log = l
	}
}

// WithAttemptHook is called after every probe with the resulting state.
func WithAttemptHook(fn func(attempt int, state State)) Option {
	return func(w *Waiter) {
		w.onAttempt = fn
	}
}

// NewWaiter creates a waiter probing for marker, an absolute path on the node.
func NewWaiter(prober Prober, marker string, opts ...Option) *Waiter {
	w := &Waiter{
		prober:     prober,
		marker:     marker,
		clock:      clock.WallClock,
		multiplier: 1,
		log:        log.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the furthest state observed so far.
func (w *Waiter) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Waiter) advance(s State) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s > w.state {
		w.state = s
	}
	return w.state
}

// AwaitReady probes the node every interval until both the command
// channel and the marker check succeed. It gives up after maxWait with a
// *retry.TimeoutError. The node is only read, never changed.
func (w *Waiter) AwaitReady(ctx context.Context, maxWait, interval time.Duration) (State, error) {
	if w.marker == "" {
		return w.State(), retry.Fatal(fmt.Errorf("readiness marker path is empty"))
	}
	markerCmd := shellquote.Join("test", "-f", w.marker)

	w.log.Printf("[readiness] Waiting up to %v for node (marker %s)...", maxWait, w.marker)
	attempts, err := retry.Poll(ctx, retry.PollConfig{
		Operation:   "node readiness",
		MaxWait:     maxWait,
		Interval:    interval,
		Multiplier:  w.multiplier,
		MaxInterval: w.maxInterval,
		Clock:       w.clock,
	}, func(ctx context.Context, attempt int) (bool, error) {
		state, err := w.probe(ctx, markerCmd)
		if w.onAttempt != nil {
			w.onAttempt(attempt, state)
		}
		return state == Ready, err
	})
	state := w.State()
	if err != nil {
		w.log.Printf("[readiness] Node not ready after %d probes (%s)", attempts, state)
		return state, err
	}
	w.log.Printf("[readiness] Node ready after %d probes", attempts)
	return state, nil
}

// probe runs one iteration: command channel first, then the marker.
func (w *Waiter) probe(ctx context.Context, markerCmd string) (State, error) {
	if err := w.prober.Probe(ctx); err != nil {
		return w.State(), fmt.Errorf("command channel: %w", err)
	}
	w.advance(Reachable)

	if _, err := w.prober.Run(ctx, markerCmd); err != nil {
		if _, ok := ssh.AsExitError(err); ok {
			return w.advance(MarkerPending), fmt.Errorf("marker %s not present yet", w.marker)
		}
		return w.State(), fmt.Errorf("marker check: %w", err)
	}
	return w.advance(Ready), nil
}
