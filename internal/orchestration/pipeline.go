package orchestration

import (
	"context"
	"fmt"
	"sync"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/provisioning"
	"github.com/imamik/edgerun/internal/provisioning/artifacts"
	"github.com/imamik/edgerun/internal/provisioning/deployment"
	"github.com/imamik/edgerun/internal/provisioning/infrastructure"
	"github.com/imamik/edgerun/internal/provisioning/install"
	"github.com/imamik/edgerun/internal/provisioning/readiness"
	"github.com/imamik/edgerun/internal/util/async"
	"github.com/imamik/edgerun/internal/util/retry"
)

// Stage names, in execution order.
const (
	StageProvision = "provision"
	StageReady     = "ready"
	StagePublish   = "publish"
	StageInstall   = "install"
	StageDeploy    = "deploy"
	StageAwait     = "await"
)

// publishConcurrency bounds how many bundles upload at once.
const publishConcurrency = 4

// Node is the command channel to the provisioned node. *ssh.Client
// implements it.
type Node interface {
	readiness.Prober
	install.Executor
}

// Dialer opens a command channel to the node described by out.
type Dialer func(out *infrastructure.Outputs, cfg *config.Config) (Node, error)

// Dependencies are the external systems a pipeline talks to.
type Dependencies struct {
	Engine       infrastructure.Engine
	Dial         Dialer
	Store        artifacts.Store
	Registrar    artifacts.Registrar
	ControlPlane deployment.ControlPlane
	Status       deployment.StatusSource

	// PermanentStoreError reports upload errors that retrying cannot fix.
	PermanentStoreError func(error) bool

	// InstallEnv is exported to the nucleus installer on the node.
	InstallEnv map[string]string
}

// Pipeline runs the edgerun stages against one configuration.
type Pipeline struct {
	deps     Dependencies
	registry *artifacts.Registry

	mu   sync.Mutex
	node Node

	controllerOnce sync.Once
	controller     *deployment.Controller
}

// New creates a pipeline.
func New(deps Dependencies) *Pipeline {
	return &Pipeline{deps: deps, registry: artifacts.NewRegistry()}
}

// Registry returns the components published by this pipeline.
func (p *Pipeline) Registry() *artifacts.Registry {
	return p.registry
}

type phase struct {
	name string
	fn   func(*provisioning.Context) error
}

func (s phase) Name() string                              { return s.name }
func (s phase) Provision(ctx *provisioning.Context) error { return s.fn(ctx) }

// Phases returns the stages in execution order.
func (p *Pipeline) Phases() []provisioning.Phase {
	return []provisioning.Phase{
		phase{StageProvision, p.provision},
		phase{StageReady, p.awaitReady},
		phase{StagePublish, p.publish},
		phase{StageInstall, p.install},
		phase{StageDeploy, p.deploy},
		phase{StageAwait, p.awaitDeployment},
	}
}

// Run validates the configuration and executes every stage. The first
// failure stops the run and is returned as a *provisioning.StageError.
func (p *Pipeline) Run(ctx *provisioning.Context) error {
	if err := provisioning.Preflight(ctx); err != nil {
		return err
	}
	return provisioning.RunPhases(ctx, p.Phases())
}

func (p *Pipeline) provision(ctx *provisioning.Context) error {
	req := infrastructure.RequestFromConfig(ctx.Config)
	provisioning.LogResourceCreating(ctx.Observer, StageProvision, "server", req.ServerName())

	out, err := infrastructure.NewAdapter(p.deps.Engine, ctx.Observer).Provision(ctx, req)
	if err != nil {
		return err
	}
	ctx.State.Infrastructure = out

	provisioning.LogResourceCreated(ctx.Observer, StageProvision, "server", out.ServerName, out.ServerID)
	provisioning.LogResourceCreated(ctx.Observer, StageProvision, "bucket", out.BucketName, out.BucketName)
	return nil
}

func (p *Pipeline) awaitReady(ctx *provisioning.Context) error {
	out, err := ctx.State.RequireInfrastructure(StageReady)
	if err != nil {
		return err
	}
	node, err := p.dial(out, ctx.Config)
	if err != nil {
		return err
	}

	t := ctx.Timeouts
	w := readiness.NewWaiter(node, ctx.Config.Readiness.Marker,
		readiness.WithClock(ctx.Clock),
		readiness.WithBackoff(t.ReadinessMultiplier, t.ReadinessMaxInterval),
		readiness.WithLogger(ctx.Observer),
		readiness.WithAttemptHook(func(attempt int, state readiness.State) {
			provisioning.LogPollAttempt(ctx.Observer, StageReady, attempt, state.String())
		}),
	)
	state, err := w.AwaitReady(ctx, t.ReadinessMaxWait, t.ReadinessInterval)
	ctx.State.Readiness = state
	return err
}

// dial opens the node channel once per pipeline.
func (p *Pipeline) dial(out *infrastructure.Outputs, cfg *config.Config) (Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.node != nil {
		return p.node, nil
	}
	if p.deps.Dial == nil {
		return nil, retry.Fatal(fmt.Errorf("no node dialer configured"))
	}
	node, err := p.deps.Dial(out, cfg)
	if err != nil {
		return nil, err
	}
	p.node = node
	return node, nil
}

func (p *Pipeline) publish(ctx *provisioning.Context) error {
	out, err := ctx.State.RequireInfrastructure(StagePublish)
	if err != nil {
		return err
	}
	if err := ctx.State.RequireReady(StagePublish); err != nil {
		return err
	}

	opts := []artifacts.Option{
		artifacts.WithRetry(ctx.Timeouts.RetryMaxAttempts, ctx.Timeouts.RetryInitialDelay),
		artifacts.WithLogger(ctx.Observer),
	}
	if p.deps.PermanentStoreError != nil {
		opts = append(opts, artifacts.WithPermanentError(p.deps.PermanentStoreError))
	}
	publisher := artifacts.NewPublisher(p.deps.Store, p.deps.Registrar, p.registry, opts...)
	dest := artifacts.Destination{Bucket: out.BucketName}

	published := make([]*artifacts.PublishedComponent, len(ctx.Config.Components))
	tasks := make([]async.Task, 0, len(ctx.Config.Components))
	for i, comp := range ctx.Config.Components {
		bundle, err := artifacts.BundleFromConfig(comp)
		if err != nil {
			return err
		}
		tasks = append(tasks, async.Task{Name: bundle.Key(), Func: func(c context.Context) error {
			pc, err := publisher.Publish(c, bundle, dest)
			if err != nil {
				return err
			}
			published[i] = pc
			return nil
		}})
	}
	if err := async.Run(ctx, publishConcurrency, tasks); err != nil {
		return err
	}

	for _, pc := range published {
		if pc.ARN == "" {
			provisioning.LogResourceExists(ctx.Observer, StagePublish, "component", pc.Name+"@"+pc.Version, pc.Prefix)
		} else {
			provisioning.LogResourceCreated(ctx.Observer, StagePublish, "component", pc.Name+"@"+pc.Version, pc.ARN)
		}
	}
	ctx.State.Published = published
	return nil
}

func (p *Pipeline) install(ctx *provisioning.Context) error {
	out, err := ctx.State.RequireInfrastructure(StageInstall)
	if err != nil {
		return err
	}
	if err := ctx.State.RequireReady(StageInstall); err != nil {
		return err
	}
	node, err := p.dial(out, ctx.Config)
	if err != nil {
		return err
	}

	opts := install.OptionsFromConfig(ctx.Config, p.deps.InstallEnv)
	opts.ThingName = out.ThingName
	opts.RoleAlias = out.RoleAlias
	steps, err := install.GreengrassSteps(opts)
	if err != nil {
		return err
	}

	t := ctx.Timeouts
	installer := install.NewInstaller(node,
		install.WithClock(ctx.Clock),
		install.WithLogger(ctx.Observer),
		install.WithVerify(t.ServiceVerifyRetries, t.ServiceVerifyDelay),
		install.WithCommandTimeout(t.CommandTimeout),
	)
	res, err := installer.Install(ctx, steps)
	if err != nil {
		return err
	}
	ctx.State.Install = res
	return nil
}

func (p *Pipeline) deploy(ctx *provisioning.Context) error {
	out, err := ctx.State.RequireInfrastructure(StageDeploy)
	if err != nil {
		return err
	}
	if _, err := ctx.State.RequirePublished(StageDeploy); err != nil {
		return err
	}
	if err := ctx.State.RequireInstalled(StageDeploy); err != nil {
		return err
	}

	spec, err := deployment.SpecFromConfig(ctx.Config, out.TargetARN)
	if err != nil {
		return retry.Fatal(err)
	}
	spec.Devices = []string{out.ThingName}

	h, err := p.deploymentController(ctx).Submit(ctx, spec)
	if err != nil {
		return err
	}
	ctx.State.Deployment = &h
	provisioning.LogResourceCreated(ctx.Observer, StageDeploy, "deployment", spec.Name, h.ID)
	return nil
}

func (p *Pipeline) awaitDeployment(ctx *provisioning.Context) error {
	h, err := ctx.State.RequireDeployment(StageAwait)
	if err != nil {
		return err
	}
	policy, err := deployment.PolicyFromConfig(ctx.Config.Deployment.Policy)
	if err != nil {
		return retry.Fatal(err)
	}

	t := ctx.Timeouts
	status, err := p.deploymentController(ctx).AwaitTerminal(ctx, *h, policy, t.DeploymentMaxWait, t.DeploymentInterval)
	ctx.State.Status = &status
	return err
}

// deploymentController builds the controller on first use so that it
// shares the run's clock and observer.
func (p *Pipeline) deploymentController(ctx *provisioning.Context) *deployment.Controller {
	p.controllerOnce.Do(func() {
		t := ctx.Timeouts
		poller := deployment.NewPoller(p.deps.Status, []string{ctx.Config.Greengrass.ThingName},
			deployment.WithPollerClock(ctx.Clock),
			deployment.WithPollBackoff(pollMultiplier(t), t.DeploymentMaxInterval),
			deployment.WithPollerLogger(ctx.Observer),
			deployment.WithPollHook(func(attempt int, status deployment.Status) {
				provisioning.LogPollAttempt(ctx.Observer, StageAwait, attempt, status.State.String())
			}),
		)
		p.controller = deployment.NewController(p.deps.ControlPlane, p.registry, poller,
			deployment.WithSubmitRetry(t.RetryMaxAttempts, t.RetryInitialDelay),
			deployment.WithControllerLogger(ctx.Observer),
		)
	})
	return p.controller
}

// pollMultiplier grows the status interval only when a cap above the
// first interval leaves room to grow.
func pollMultiplier(t *config.Timeouts) float64 {
	if t.DeploymentMaxInterval > t.DeploymentInterval {
		return 1.5
	}
	return 1
}
