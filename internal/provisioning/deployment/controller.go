package deployment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/imamik/edgerun/internal/platform/greengrass"
	"github.com/imamik/edgerun/internal/util/retry"
)

// SubmitErrorKind says why a submission was refused.
type SubmitErrorKind int

const (
	// InvalidTarget means the target ARN is not a thing or thing group.
	InvalidTarget SubmitErrorKind = iota
	// UnknownComponent means a component version was never published.
	UnknownComponent
	// Unavailable means the control plane kept failing transiently.
	Unavailable
	// InFlight means another deployment to the target is not finished.
	InFlight
	// Rejected means the control plane refused the deployment.
	Rejected
)

func (k SubmitErrorKind) String() string {
	switch k {
	case InvalidTarget:
		return "invalid target"
	case UnknownComponent:
		return "unknown component"
	case Unavailable:
		return "control plane unavailable"
	case InFlight:
		return "deployment in flight"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SubmitError reports a refused submission.
type SubmitError struct {
	Kind   SubmitErrorKind
	Target string
	Err    error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit deployment to %s: %s: %v", e.Target, e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// ControlPlane creates deployments. *greengrass.Client implements it.
type ControlPlane interface {
	CreateDeployment(ctx context.Context, req greengrass.DeploymentRequest) (string, error)
}

// Registry knows the published component versions. *artifacts.Registry
// implements it.
type Registry interface {
	Has(name, version string) bool
}

// Logger receives progress lines.
type Logger interface {
	Printf(format string, v ...any)
}

// Controller submits deployments, at most one in flight per target.
type Controller struct {
	api      ControlPlane
	registry Registry
	poller   *Poller
	log      Logger

	maxRetries   int
	initialDelay time.Duration

	mu       sync.Mutex
	inFlight map[string]string
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSubmitRetry bounds retries of transient control-plane errors.
func WithSubmitRetry(maxRetries int, initialDelay time.Duration) ControllerOption {
	return func(c *Controller) {
		c.maxRetries = maxRetries
		c.initialDelay = initialDelay
	}
}

// WithControllerLogger sets where progress is logged.
func WithControllerLogger(l Logger) ControllerOption {
	return func(c *Controller) {
		c.log = l
	}
}

// NewController creates a controller. poller is used by AwaitTerminal.
func NewController(api ControlPlane, registry Registry, poller *Poller, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:          api,
		registry:     registry,
		poller:       poller,
		log:          log.Default(),
		maxRetries:   5,
		initialDelay: time.Second,
		inFlight:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks spec without any network call.
func (c *Controller) Validate(spec Spec) (Target, error) {
	target, err := ParseTarget(spec.TargetARN)
	if err != nil {
		return Target{}, &SubmitError{Kind: InvalidTarget, Target: spec.TargetARN, Err: err}
	}
	if len(spec.Components) == 0 {
		return Target{}, &SubmitError{Kind: UnknownComponent, Target: spec.TargetARN, Err: errors.New("no components")}
	}
	var missing []error
	for _, name := range spec.componentNames() {
		v := spec.Components[name].Version
		if !c.registry.Has(name, v) {
			missing = append(missing, fmt.Errorf("%s@%s was not published", name, v))
		}
	}
	if len(missing) > 0 {
		return Target{}, &SubmitError{Kind: UnknownComponent, Target: spec.TargetARN, Err: errors.Join(missing...)}
	}
	return target, nil
}

// Submit validates spec and creates the deployment. The target stays in
// flight until AwaitTerminal or Release.
func (c *Controller) Submit(ctx context.Context, spec Spec) (Handle, error) {
	target, err := c.Validate(spec)
	if err != nil {
		return Handle{}, err
	}

	if err := c.reserve(target.ARN); err != nil {
		return Handle{}, err
	}

	var id string
	err = retry.WithExponentialBackoff(ctx, func() error {
		var err error
		id, err = c.api.CreateDeployment(ctx, spec.request())
		if err != nil && !greengrass.IsTransient(err) {
			return retry.Fatal(err)
		}
		return err
	}, retry.WithMaxRetries(c.maxRetries), retry.WithInitialDelay(c.initialDelay))
	if err != nil {
		c.release(target.ARN)
		return Handle{}, &SubmitError{Kind: submitKind(err), Target: target.ARN, Err: err}
	}

	c.mu.Lock()
	c.inFlight[target.ARN] = id
	c.mu.Unlock()

	c.log.Printf("[deployment] Submitted %s to %s (policy %s)", id, target.ARN, spec.Policy)
	return Handle{ID: id, Target: target, Devices: append([]string(nil), spec.Devices...)}, nil
}

// submitKind classifies a failed CreateDeployment. A cancelled or expired
// context says nothing about the request, so it never counts as a refusal.
func submitKind(err error) SubmitErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Unavailable
	}
	if retry.IsFatal(err) {
		return Rejected
	}
	return Unavailable
}

// AwaitTerminal waits for the outcome of h and releases its target.
func (c *Controller) AwaitTerminal(ctx context.Context, h Handle, policy Policy, maxWait, interval time.Duration) (Status, error) {
	defer c.Release(h)
	if c.poller == nil {
		return Status{}, errors.New("controller has no poller")
	}
	return c.poller.AwaitTerminal(ctx, h, policy, maxWait, interval)
}

// Release frees the target of h for the next submission.
func (c *Controller) Release(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.inFlight[h.Target.ARN]; ok && (id == h.ID || id == "") {
		delete(c.inFlight, h.Target.ARN)
	}
}

// InFlightDeployment returns the deployment in flight to targetARN.
func (c *Controller) InFlightDeployment(targetARN string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.inFlight[targetARN]
	return id, ok
}

func (c *Controller) reserve(target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.inFlight[target]; ok {
		if id == "" {
			id = "(submitting)"
		}
		return &SubmitError{Kind: InFlight, Target: target, Err: fmt.Errorf("deployment %s is not finished", id)}
	}
	c.inFlight[target] = ""
	return nil
}

func (c *Controller) release(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, target)
}
