package deployment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/platform/greengrass"
)

const (
	groupARN = "arn:aws:iot:eu-central-1:123456789012:thinggroup/edgerun-group"
	thingARN = "arn:aws:iot:eu-central-1:123456789012:thing/edgerun-core"
)

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type fakeRegistry map[string]bool

func (r fakeRegistry) Has(name, version string) bool {
	return r[name+"@"+version]
}

type fakePlane struct {
	mu       sync.Mutex
	requests []greengrass.DeploymentRequest
	errs     []error
}

func (f *fakePlane) CreateDeployment(_ context.Context, req greengrass.DeploymentRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "dep-1", nil
}

func (f *fakePlane) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func sensorSpec(target string) Spec {
	return Spec{
		Name:      "edgerun",
		TargetARN: target,
		Components: map[string]ComponentSpec{
			"com.example.Sensor": {Version: "1.0.0", Merge: map[string]any{"interval": 5}},
		},
		Policy:        Rollback,
		UpdateTimeout: 60 * time.Second,
	}
}

func newTestController(plane ControlPlane, poller *Poller) *Controller {
	return NewController(plane, fakeRegistry{"com.example.Sensor@1.0.0": true}, poller,
		WithControllerLogger(nopLogger{}),
		WithSubmitRetry(2, time.Millisecond),
	)
}

func TestSubmit(t *testing.T) {
	plane := &fakePlane{}
	c := newTestController(plane, nil)

	h, err := c.Submit(context.Background(), sensorSpec(groupARN))
	require.NoError(t, err)
	assert.Equal(t, "dep-1", h.ID)
	assert.Equal(t, TargetThingGroup, h.Target.Kind)
	assert.Equal(t, "edgerun-group", h.Target.Name)

	require.Len(t, plane.requests, 1)
	req := plane.requests[0]
	assert.Equal(t, groupARN, req.TargetARN)
	assert.True(t, req.Rollback)
	assert.True(t, req.NotifyComponents)
	assert.Equal(t, "1.0.0", req.Components["com.example.Sensor"].Version)
	assert.Equal(t, 60*time.Second, req.UpdateTimeout)

	id, ok := c.InFlightDeployment(groupARN)
	assert.True(t, ok)
	assert.Equal(t, "dep-1", id)
}

func TestSubmit_PolicyMapping(t *testing.T) {
	tests := []struct {
		policy   Policy
		rollback bool
		notify   bool
	}{
		{Rollback, true, true},
		{DoNothing, false, false},
		{NotifyOnly, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			spec := sensorSpec(groupARN)
			spec.Policy = tt.policy
			req := spec.request()
			assert.Equal(t, tt.rollback, req.Rollback)
			assert.Equal(t, tt.notify, req.NotifyComponents)
		})
	}
}

func TestSubmit_InvalidTarget(t *testing.T) {
	targets := []string{
		"edgerun-group",
		"arn:aws:s3:::bucket",
		"arn:aws:iot:eu-central-1:123456789012:thinggroup/",
		"arn:aws:iot:eu-central-1:123456789012:policy/p",
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			plane := &fakePlane{}
			_, err := newTestController(plane, nil).Submit(context.Background(), sensorSpec(target))

			var subErr *SubmitError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, InvalidTarget, subErr.Kind)
			assert.Equal(t, 0, plane.calls())
		})
	}
}

func TestSubmit_UnknownComponent(t *testing.T) {
	plane := &fakePlane{}
	spec := sensorSpec(groupARN)
	spec.Components["com.example.Bridge"] = ComponentSpec{Version: "2.0.0"}

	_, err := newTestController(plane, nil).Submit(context.Background(), spec)
	var subErr *SubmitError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, UnknownComponent, subErr.Kind)
	assert.Contains(t, err.Error(), "com.example.Bridge@2.0.0 was not published")
	assert.Equal(t, 0, plane.calls())

	spec.Components = nil
	_, err = newTestController(plane, nil).Submit(context.Background(), spec)
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, UnknownComponent, subErr.Kind)
}

func TestSubmit_InFlight(t *testing.T) {
	plane := &fakePlane{}
	c := newTestController(plane, nil)

	h, err := c.Submit(context.Background(), sensorSpec(groupARN))
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), sensorSpec(groupARN))
	var subErr *SubmitError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, InFlight, subErr.Kind)
	assert.Contains(t, err.Error(), "dep-1")
	assert.Equal(t, 1, plane.calls())

	_, err = c.Submit(context.Background(), sensorSpec(thingARN))
	require.NoError(t, err, "other targets are independent")

	c.Release(h)
	_, err = c.Submit(context.Background(), sensorSpec(groupARN))
	require.NoError(t, err)
}

func TestSubmit_TransientRetried(t *testing.T) {
	plane := &fakePlane{errs: []error{
		&smithy.GenericAPIError{Code: "ThrottlingException"},
		&smithy.GenericAPIError{Code: "InternalServerException", Fault: smithy.FaultServer},
	}}
	h, err := newTestController(plane, nil).Submit(context.Background(), sensorSpec(groupARN))
	require.NoError(t, err)
	assert.Equal(t, "dep-1", h.ID)
	assert.Equal(t, 3, plane.calls())
}

func TestSubmit_Unavailable(t *testing.T) {
	throttled := &smithy.GenericAPIError{Code: "ThrottlingException"}
	plane := &fakePlane{errs: []error{throttled, throttled, throttled}}
	c := newTestController(plane, nil)

	_, err := c.Submit(context.Background(), sensorSpec(groupARN))
	var subErr *SubmitError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, Unavailable, subErr.Kind)
	assert.Equal(t, 3, plane.calls())

	_, ok := c.InFlightDeployment(groupARN)
	assert.False(t, ok, "failed submission frees the target")
}

func TestSubmit_Rejected(t *testing.T) {
	plane := &fakePlane{errs: []error{&smithy.GenericAPIError{Code: "ValidationException", Message: "bad merge"}}}

	_, err := newTestController(plane, nil).Submit(context.Background(), sensorSpec(groupARN))
	var subErr *SubmitError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, Rejected, subErr.Kind)
	assert.Equal(t, 1, plane.calls())
}

func TestSubmit_CancelledIsNotRejected(t *testing.T) {
	for name, cause := range map[string]error{
		"canceled":          context.Canceled,
		"deadline exceeded": fmt.Errorf("operation error GreengrassV2: CreateDeployment: %w", context.DeadlineExceeded),
	} {
		t.Run(name, func(t *testing.T) {
			plane := &fakePlane{errs: []error{cause}}
			c := newTestController(plane, nil)

			_, err := c.Submit(context.Background(), sensorSpec(groupARN))
			var subErr *SubmitError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, Unavailable, subErr.Kind)
			assert.ErrorIs(t, err, cause)
			assert.Equal(t, 1, plane.calls())

			_, ok := c.InFlightDeployment(groupARN)
			assert.False(t, ok)
		})
	}
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget(thingARN)
	require.NoError(t, err)
	assert.Equal(t, Target{ARN: thingARN, Kind: TargetThing, Name: "edgerun-core"}, target)

	_, err = ParseTarget("arn:aws:iot:eu-central-1:123456789012:thing/a/b")
	require.Error(t, err)
}

func TestPolicyFromConfig(t *testing.T) {
	p, err := PolicyFromConfig("do-nothing")
	require.NoError(t, err)
	assert.Equal(t, DoNothing, p)

	p, err = PolicyFromConfig("")
	require.NoError(t, err)
	assert.Equal(t, Rollback, p)

	_, err = PolicyFromConfig("retry")
	require.Error(t, err)
}

func TestOutcomeError(t *testing.T) {
	err := &OutcomeError{DeploymentID: "dep-1", Status: Status{State: RolledBack, RollbackComplete: true, Detail: "edgerun-core: component failed"}}
	assert.Equal(t, "deployment dep-1 rolled-back (previous deployment restored): edgerun-core: component failed", err.Error())

	err = &OutcomeError{DeploymentID: "dep-1", Status: Status{State: Failed, Partial: true}}
	assert.Equal(t, "deployment dep-1 failed (device may be partially updated)", err.Error())
}

func TestSubmit_CarriesDevices(t *testing.T) {
	spec := sensorSpec(groupARN)
	spec.Devices = []string{"edgerun-core"}

	h, err := newTestController(&fakePlane{}, nil).Submit(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"edgerun-core"}, h.Devices)
}

func TestSpecFromConfig(t *testing.T) {
	cfg := &config.Config{
		Components: []config.Component{
			{Name: "com.example.Sensor", Version: "1.0.0", Merge: map[string]any{"interval": 5}},
			{Name: "com.example.Bridge", Version: "2.1.0"},
		},
		Deployment: config.DeploymentConfig{Policy: config.PolicyNotifyOnly},
	}
	cfg.ApplyDefaults()

	spec, err := SpecFromConfig(cfg, groupARN)
	require.NoError(t, err)
	assert.Equal(t, NotifyOnly, spec.Policy)
	assert.Equal(t, groupARN, spec.TargetARN)
	assert.Equal(t, "2.1.0", spec.Components["com.example.Bridge"].Version)
	assert.Equal(t, 5, spec.Components["com.example.Sensor"].Merge["interval"])
	assert.Equal(t, []string{"edgerun-core"}, spec.Devices)
	assert.Equal(t, "edgerun", spec.Name[:7])
	assert.Equal(t, config.DefaultUpdateTimeout, spec.UpdateTimeout)
}
