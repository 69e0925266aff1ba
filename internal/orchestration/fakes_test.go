package orchestration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/greengrassv2/types"
	"github.com/juju/clock/testclock"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/platform/greengrass"
	"github.com/imamik/edgerun/internal/provisioning/infrastructure"
)

const (
	testBucket   = "edgerun-gg-artifacts-123456789012"
	testThing    = "edgerun-core"
	testGroupARN = "arn:aws:iot:eu-central-1:123456789012:thinggroup/edgerun-group"
)

var errRefused = errors.New("dial tcp 203.0.113.10:22: connect: connection refused")

type fakeEngine struct {
	calls int
	err   error
}

func (e *fakeEngine) Apply(_ context.Context, req infrastructure.Request) (map[string]string, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return map[string]string{
		infrastructure.KeyNodeAddress:       "203.0.113.10",
		infrastructure.KeyServerID:          "42",
		infrastructure.KeyServerName:        req.ServerName(),
		infrastructure.KeySSHKeyName:        req.Prefix + "-key",
		infrastructure.KeySSHPrivateKeyPath: filepath.Join(req.StateDir, req.Prefix+"-key"),
		infrastructure.KeyBucketName:        testBucket,
		infrastructure.KeyRoleAlias:         req.RoleAlias,
		infrastructure.KeyThingName:         req.ThingName,
		infrastructure.KeyTargetARN:         testGroupARN,
	}, nil
}

// fakeNode answers probes with probeErr and treats the marker as present.
// Commands succeed; service checks report active.
type fakeNode struct {
	mu       sync.Mutex
	probeErr error
	probes   int
	commands []string
}

func (n *fakeNode) Probe(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.probes++
	return n.probeErr
}

func (n *fakeNode) Run(_ context.Context, command string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.commands = append(n.commands, command)
	return "", nil
}

func (n *fakeNode) Execute(_ context.Context, command string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.commands = append(n.commands, command)
	if strings.HasPrefix(command, "systemctl is-active") {
		return "active\n", nil
	}
	return "", nil
}

func (n *fakeNode) probeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.probes
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memStore) PutObject(_ context.Context, bucket, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	return out
}

type fakeRegistrar struct {
	mu      sync.Mutex
	recipes [][]byte
}

func (r *fakeRegistrar) RegisterComponent(_ context.Context, recipe []byte) (*greengrass.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipes = append(r.recipes, recipe)
	return &greengrass.Registration{ARN: fmt.Sprintf("arn:aws:greengrass:eu-central-1:123456789012:components:agent-core:versions:%d", len(r.recipes))}, nil
}

func (r *fakeRegistrar) LookupComponentVersion(context.Context, string, string) (*greengrass.RegisteredVersion, error) {
	return nil, nil
}

type fakeControlPlane struct {
	mu       sync.Mutex
	requests []greengrass.DeploymentRequest
}

func (c *fakeControlPlane) CreateDeployment(_ context.Context, req greengrass.DeploymentRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return fmt.Sprintf("dep-%d", len(c.requests)), nil
}

// scriptedStatus reports executions in order; the last one repeats.
// Devices are always healthy.
type scriptedStatus struct {
	mu         sync.Mutex
	executions []types.EffectiveDeploymentExecutionStatus
	reason     string
	polls      int
}

func (s *scriptedStatus) EffectiveDeployment(_ context.Context, _, id string) (*greengrass.EffectiveDeployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.polls, len(s.executions)-1)
	s.polls++
	ed := &greengrass.EffectiveDeployment{DeploymentID: id, Status: s.executions[i]}
	if ed.Failed() {
		ed.Reason = s.reason
	}
	return ed, nil
}

func (s *scriptedStatus) CoreDeviceHealth(_ context.Context, thing string) (*greengrass.DeviceHealth, error) {
	return &greengrass.DeviceHealth{
		ThingName:  thing,
		Status:     string(types.CoreDeviceStatusHealthy),
		Components: []greengrass.InstalledComponent{{Name: "agent-core", Version: "1.0.0", State: "RUNNING"}},
	}, nil
}

const agentRecipe = `
RecipeFormatVersion: "2020-01-25"
ComponentName: "{{COMPONENT_NAME}}"
ComponentVersion: "{{COMPONENT_VERSION}}"
ComponentDescription: Edge agent core
ComponentPublisher: edgerun
Manifests:
  - Platform:
      os: linux
    Lifecycle:
      Run: "python3 -u {artifacts:path}/agent.py --config {artifacts:path}/agent.conf"
`

// testConfig writes the agent-core bundle into dir and returns a config
// naming it.
func testConfig(dir string, policy config.FailurePolicy) (*config.Config, error) {
	files := map[string]string{
		"recipe.yaml": agentRecipe,
		"agent.py":    "print('agent')\n",
		"agent.conf":  "interval=5\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			return nil, err
		}
	}
	cfg := &config.Config{
		StateDir: filepath.Join(dir, "state"),
		Readiness: config.ReadinessConfig{
			SSHSources: []string{"198.51.100.0/24"},
		},
		Components: []config.Component{{
			Name:      "agent-core",
			Version:   "1.0.0",
			Recipe:    filepath.Join(dir, "recipe.yaml"),
			Artifacts: []string{filepath.Join(dir, "agent.py"), filepath.Join(dir, "agent.conf")},
		}},
		Deployment:  config.DeploymentConfig{Policy: policy},
		HCloudToken: "test-token",
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// autoAdvance moves clk forward in steps of d whenever something waits on
// it, until stop is closed.
func autoAdvance(clk *testclock.Clock, d time.Duration, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		_ = clk.WaitAdvance(d, 10*time.Millisecond, 1)
	}
}
