package install

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/juju/clock"

	"github.com/imamik/edgerun/internal/util/retry"
)

// Executor runs commands on the node. *ssh.Client implements it.
type Executor interface {
	// Execute runs command, retrying only the connection.
	Execute(ctx context.Context, command string) (string, error)
}

// Logger receives progress lines.
type Logger interface {
	Printf(format string, v ...any)
}

// StepRecord is one executed step.
type StepRecord struct {
	Index    int
	Step     Step
	Output   string
	Duration time.Duration
	Err      error
}

// Result lists the executed steps in order.
type Result struct {
	Trace []StepRecord
}

// InstallError reports the step that stopped the installation.
type InstallError struct {
	Index  int
	Step   Step
	Output string
	Err    error
}

func (e *InstallError) Error() string {
	msg := fmt.Sprintf("install step %d (%s) failed: %v", e.Index, e.Step, e.Err)
	if tail := lastLine(e.Output); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Installer runs step lists on one node.
type Installer struct {
	exec           Executor
	clock          clock.Clock
	log            Logger
	verifyAttempts int
	verifyDelay    time.Duration
	commandTimeout time.Duration
}

// Option configures an Installer.
type Option func(*Installer)

// WithClock sets the clock used between verification attempts.
func WithClock(clk clock.Clock) Option {
	return func(i *Installer) {
		if clk != nil {
			i.clock = clk
		}
	}
}

// WithLogger sets where progress is logged.
func WithLogger(l Logger) Option {
	return func(i *Installer) {
		i.log = l
	}
}

// WithVerify bounds how long a restarted service may take to become active.
func WithVerify(attempts int, initialDelay time.Duration) Option {
	return func(i *Installer) {
		i.verifyAttempts = max(attempts, 1)
		i.verifyDelay = initialDelay
	}
}

// WithCommandTimeout bounds a single step.
func WithCommandTimeout(d time.Duration) Option {
	return func(i *Installer) {
		i.commandTimeout = d
	}
}

// NewInstaller creates an installer running commands through exec.
func NewInstaller(exec Executor, opts ...Option) *Installer {
	i := &Installer{
		exec:           exec,
		clock:          clock.WallClock,
		log:            log.Default(),
		verifyAttempts: 10,
		verifyDelay:    2 * time.Second,
		commandTimeout: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install validates steps and runs them in order. The first failing step
// stops the run with an *InstallError; the result still lists every step
// that ran.
func (i *Installer) Install(ctx context.Context, steps []Step) (*Result, error) {
	res := &Result{}
	if err := Validate(steps); err != nil {
		return res, err
	}

	for idx, step := range steps {
		i.log.Printf("[install] Step %d/%d: %s", idx+1, len(steps), step)
		start := i.clock.Now()
		out, err := i.run(ctx, step)
		res.Trace = append(res.Trace, StepRecord{
			Index:    idx,
			Step:     step,
			Output:   out,
			Duration: i.clock.Now().Sub(start),
			Err:      err,
		})
		if err != nil {
			return res, &InstallError{Index: idx, Step: step, Output: out, Err: err}
		}
	}
	i.log.Printf("[install] Completed %d steps", len(steps))
	return res, nil
}

func (i *Installer) run(ctx context.Context, step Step) (string, error) {
	if i.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.commandTimeout)
		defer cancel()
	}
	if step.Kind == VerifyActive {
		return i.verify(ctx, step.Service)
	}
	return i.exec.Execute(ctx, step.Script())
}

// verify polls the service state. Errors are retried: the connection may
// drop while the service restarts.
func (i *Installer) verify(ctx context.Context, service string) (string, error) {
	cmd := Verify(service).Script()
	var last string
	err := retry.WithExponentialBackoff(ctx, func() error {
		out, err := i.exec.Execute(ctx, cmd)
		last = strings.TrimSpace(out)
		if err != nil {
			return err
		}
		if last != "active" {
			return fmt.Errorf("service %s is %q", service, last)
		}
		return nil
	},
		retry.WithMaxRetries(i.verifyAttempts-1),
		retry.WithInitialDelay(i.verifyDelay),
		retry.WithMaxDelay(30*time.Second),
		retry.WithClock(i.clock),
	)
	if err != nil {
		return last, fmt.Errorf("service %s did not become active: %w", service, err)
	}
	return last, nil
}

func lastLine(out string) string {
	out = strings.TrimSpace(out)
	if idx := strings.LastIndexByte(out, '\n'); idx >= 0 {
		return out[idx+1:]
	}
	return out
}
