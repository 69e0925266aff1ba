package deployment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/imamik/edgerun/internal/platform/greengrass"
	"github.com/imamik/edgerun/internal/util/retry"
)

// StatusSource reports deployment executions and device health.
// *greengrass.Client implements it.
type StatusSource interface {
	EffectiveDeployment(ctx context.Context, thingName, deploymentID string) (*greengrass.EffectiveDeployment, error)
	CoreDeviceHealth(ctx context.Context, thingName string) (*greengrass.DeviceHealth, error)
}

// Poller waits for deployments to reach a terminal state.
type Poller struct {
	src         StatusSource
	devices     []string
	clock       clock.Clock
	multiplier  float64
	maxInterval time.Duration
	log         Logger
	onAttempt   func(attempt int, status Status)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerClock sets the clock used between polls.
func WithPollerClock(clk clock.Clock) PollerOption {
	return func(p *Poller) {
		if clk != nil {
			p.clock = clk
		}
	}
}

// WithPollBackoff grows the poll interval by multiplier up to maxInterval.
func WithPollBackoff(multiplier float64, maxInterval time.Duration) PollerOption {
	return func(p *Poller) {
		p.multiplier = multiplier
		p.maxInterval = maxInterval
	}
}

// WithPollerLogger sets where progress is logged.
func WithPollerLogger(l Logger) PollerOption {
	return func(p *Poller) {
		p.log = l
	}
}

// WithPollHook calls fn after every poll with the status observed so far.
func WithPollHook(fn func(attempt int, status Status)) PollerOption {
	return func(p *Poller) {
		p.onAttempt = fn
	}
}

// NewPoller creates a poller. devices are the core devices observed for
// thing group targets whose handle names none; a thing target is observed
// directly.
func NewPoller(src StatusSource, devices []string, opts ...PollerOption) *Poller {
	p := &Poller{
		src:     src,
		devices: append([]string(nil), devices...),
		clock:   clock.WallClock,
		log:     log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AwaitTerminal polls until h succeeded on every device and the devices are
// healthy, until it failed on any device, or until maxWait elapses. A
// failure returns the policy outcome together with an *OutcomeError; a
// timeout returns TimedOut with a *retry.TimeoutError.
func (p *Poller) AwaitTerminal(ctx context.Context, h Handle, policy Policy, maxWait, interval time.Duration) (Status, error) {
	devices := h.Devices
	if len(devices) == 0 {
		devices = p.devices
	}
	if h.Target.Kind == TargetThing {
		devices = []string{h.Target.Name}
	}
	if len(devices) == 0 {
		return Status{}, retry.Fatal(fmt.Errorf("deployment %s: no core device to observe", h.ID))
	}

	var (
		mu     sync.Mutex
		status = Status{State: Queued}
	)
	_, err := retry.Poll(ctx, retry.PollConfig{
		Operation:   fmt.Sprintf("deployment %s", h.ID),
		MaxWait:     maxWait,
		Interval:    interval,
		Multiplier:  p.multiplier,
		MaxInterval: p.maxInterval,
		Clock:       p.clock,
	}, func(ctx context.Context, attempt int) (bool, error) {
		next, err := p.observe(ctx, h, policy, devices)
		mu.Lock()
		if err == nil {
			status = next
		}
		snapshot := status
		mu.Unlock()
		if p.onAttempt != nil {
			p.onAttempt(attempt, snapshot)
		}
		if err != nil {
			if !greengrass.IsTransient(err) {
				return false, retry.Fatal(err)
			}
			return false, err
		}
		return next.State.Terminal(), nil
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		if retry.IsTimeout(err) {
			status.State = TimedOut
			p.log.Printf("[deployment] %s timed out: %s", h.ID, status.Detail)
		}
		return status, err
	}

	switch status.State {
	case Succeeded:
		p.log.Printf("[deployment] %s succeeded", h.ID)
		return status, nil
	default:
		p.log.Printf("[deployment] %s %s: %s", h.ID, status.State, status.Detail)
		return status, &OutcomeError{DeploymentID: h.ID, Status: status}
	}
}

// observe performs one poll of every device.
func (p *Poller) observe(ctx context.Context, h Handle, policy Policy, devices []string) (Status, error) {
	status := Status{State: Queued, Devices: make([]DeviceStatus, len(devices))}
	var (
		failed, succeeded, started int
		rolledBack                 = true
		details                    []string
	)
	for i, thing := range devices {
		status.Devices[i].ThingName = thing
		ed, err := p.src.EffectiveDeployment(ctx, thing, h.ID)
		if err != nil {
			return Status{}, err
		}
		if ed == nil {
			continue
		}
		started++
		status.Devices[i].Execution = string(ed.Status)
		switch {
		case ed.Failed():
			failed++
			rolledBack = rolledBack && ed.RollbackComplete()
			if d := ed.Detail(); d != "" {
				details = append(details, thing+": "+d)
			} else {
				details = append(details, thing+": "+string(ed.Status))
			}
		case ed.Succeeded():
			succeeded++
		}
	}

	switch {
	case failed > 0:
		status.Detail = strings.Join(details, "; ")
		switch policy {
		case Rollback:
			status.State = RolledBack
			status.RollbackComplete = rolledBack
		case DoNothing:
			status.State = Failed
			status.Partial = true
		default:
			status.State = Failed
		}
		return status, nil
	case succeeded == len(devices):
		return p.checkHealth(ctx, status)
	case started > 0:
		status.State = InProgress
	}
	status.Detail = fmt.Sprintf("%d/%d devices applied the deployment", succeeded, len(devices))
	return status, nil
}

// checkHealth turns an applied deployment into Succeeded once every device
// is healthy. A BROKEN root component fails the deployment: the nucleus does
// not restart it, so waiting longer cannot help.
func (p *Poller) checkHealth(ctx context.Context, status Status) (Status, error) {
	status.State = InProgress
	var waiting, broken []string
	for i := range status.Devices {
		thing := status.Devices[i].ThingName
		health, err := p.src.CoreDeviceHealth(ctx, thing)
		if err != nil {
			return Status{}, err
		}
		if health == nil {
			return Status{}, errors.New("no health reported for " + thing)
		}
		status.Devices[i].Health = health.Summary()
		for _, ic := range health.Components {
			if ic.Broken() {
				broken = append(broken, brokenDetail(thing, ic))
			}
		}
		if !health.Healthy() {
			waiting = append(waiting, health.Summary())
		}
	}
	switch {
	case len(broken) > 0:
		status.State = Failed
		status.Detail = strings.Join(broken, "; ")
	case len(waiting) > 0:
		status.Detail = "waiting for device health: " + strings.Join(waiting, "; ")
	default:
		status.State = Succeeded
		status.Detail = ""
	}
	return status, nil
}

func brokenDetail(thing string, ic greengrass.InstalledComponent) string {
	name := ic.Name
	if ic.Version != "" {
		name += "@" + ic.Version
	}
	msg := fmt.Sprintf("%s: component %s is BROKEN", thing, name)
	if ic.Detail != "" {
		msg += ": " + ic.Detail
	}
	return msg
}
