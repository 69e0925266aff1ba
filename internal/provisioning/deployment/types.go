package deployment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/arn"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/platform/greengrass"
)

// Policy is what the control plane does when a deployment fails on a device.
type Policy int

const (
	// Rollback restores the previous deployment.
	Rollback Policy = iota
	// DoNothing leaves the device as the failed deployment left it.
	DoNothing
	// NotifyOnly leaves the device as is but lets components defer updates.
	NotifyOnly
)

func (p Policy) String() string {
	switch p {
	case Rollback:
		return "rollback"
	case DoNothing:
		return "do-nothing"
	case NotifyOnly:
		return "notify-only"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// PolicyFromConfig maps the configured failure policy.
func PolicyFromConfig(p config.FailurePolicy) (Policy, error) {
	switch p {
	case config.PolicyRollback, "":
		return Rollback, nil
	case config.PolicyDoNothing:
		return DoNothing, nil
	case config.PolicyNotifyOnly:
		return NotifyOnly, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", p)
	}
}

// ComponentSpec pins one component of a deployment.
type ComponentSpec struct {
	Version string
	Merge   map[string]any
}

// Spec describes a deployment to submit.
type Spec struct {
	Name          string
	TargetARN     string
	Components    map[string]ComponentSpec
	Policy        Policy
	UpdateTimeout time.Duration

	// Devices are the core devices expected to apply a thing group
	// deployment. A thing target is its own device.
	Devices []string
}

// SpecFromConfig builds the deployment of every configured component to
// targetARN.
func SpecFromConfig(cfg *config.Config, targetARN string) (Spec, error) {
	policy, err := PolicyFromConfig(cfg.Deployment.Policy)
	if err != nil {
		return Spec{}, err
	}
	components := make(map[string]ComponentSpec, len(cfg.Components))
	for _, c := range cfg.Components {
		components[c.Name] = ComponentSpec{Version: c.Version, Merge: c.Merge}
	}
	return Spec{
		Name:          cfg.Deployment.Name,
		TargetARN:     targetARN,
		Components:    components,
		Policy:        policy,
		UpdateTimeout: cfg.Deployment.UpdateTimeout,
		Devices:       []string{cfg.Greengrass.ThingName},
	}, nil
}

func (s Spec) request() greengrass.DeploymentRequest {
	components := make(map[string]greengrass.ComponentSpec, len(s.Components))
	for name, c := range s.Components {
		components[name] = greengrass.ComponentSpec{Version: c.Version, Merge: c.Merge}
	}
	return greengrass.DeploymentRequest{
		Name:             s.Name,
		TargetARN:        s.TargetARN,
		Components:       components,
		Rollback:         s.Policy == Rollback,
		NotifyComponents: s.Policy != DoNothing,
		UpdateTimeout:    s.UpdateTimeout,
	}
}

func (s Spec) componentNames() []string {
	names := make([]string, 0, len(s.Components))
	for name := range s.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TargetKind is the kind of IoT resource a deployment targets.
type TargetKind int

const (
	TargetThing TargetKind = iota
	TargetThingGroup
)

// Target is a parsed deployment target.
type Target struct {
	ARN  string
	Kind TargetKind
	Name string
}

// ParseTarget parses an IoT thing or thing group ARN.
func ParseTarget(s string) (Target, error) {
	a, err := arn.Parse(s)
	if err != nil {
		return Target{}, err
	}
	if a.Service != "iot" {
		return Target{}, fmt.Errorf("service is %q, want iot", a.Service)
	}
	kind, name, ok := strings.Cut(a.Resource, "/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return Target{}, fmt.Errorf("resource %q is not thing/<name> or thinggroup/<name>", a.Resource)
	}
	switch kind {
	case "thing":
		return Target{ARN: s, Kind: TargetThing, Name: name}, nil
	case "thinggroup":
		return Target{ARN: s, Kind: TargetThingGroup, Name: name}, nil
	default:
		return Target{}, fmt.Errorf("resource type %q is not thing or thinggroup", kind)
	}
}

// Handle identifies a submitted deployment.
type Handle struct {
	ID      string
	Target  Target
	Devices []string
}

// State is the observed state of a deployment.
type State int

const (
	Queued State = iota
	InProgress
	Succeeded
	Failed
	RolledBack
	TimedOut
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case InProgress:
		return "in-progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case RolledBack:
		return "rolled-back"
	case TimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is final.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == RolledBack || s == TimedOut
}

// DeviceStatus is what one core device reports.
type DeviceStatus struct {
	ThingName string
	// Execution is the device's execution status of the deployment, empty
	// while the device has not picked it up.
	Execution string
	// Health is the device health summary once checked.
	Health string
}

// Status is the observed outcome of a deployment.
type Status struct {
	State            State
	RollbackComplete bool
	// Partial means the device may run a mix of old and new components.
	Partial bool
	Detail  string
	Devices []DeviceStatus
}

// OutcomeError reports a deployment that reached a failed terminal state.
type OutcomeError struct {
	DeploymentID string
	Status       Status
}

func (e *OutcomeError) Error() string {
	msg := fmt.Sprintf("deployment %s %s", e.DeploymentID, e.Status.State)
	if e.Status.State == RolledBack {
		if e.Status.RollbackComplete {
			msg += " (previous deployment restored)"
		} else {
			msg += " (rollback not confirmed)"
		}
	}
	if e.Status.Partial {
		msg += " (device may be partially updated)"
	}
	if e.Status.Detail != "" {
		msg += ": " + e.Status.Detail
	}
	return msg
}
