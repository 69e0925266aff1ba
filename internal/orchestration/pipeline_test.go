package orchestration

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/greengrassv2/types"
	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/provisioning"
	"github.com/imamik/edgerun/internal/provisioning/deployment"
	"github.com/imamik/edgerun/internal/provisioning/infrastructure"
	"github.com/imamik/edgerun/internal/provisioning/install"
	"github.com/imamik/edgerun/internal/provisioning/readiness"
	"github.com/imamik/edgerun/internal/util/retry"
)

var _ = Describe("Pipeline", func() {
	var (
		cfg      *config.Config
		clk      *testclock.Clock
		start    time.Time
		node     *fakeNode
		store    *memStore
		plane    *fakeControlPlane
		status   *scriptedStatus
		metrics  *Metrics
		pipeline *Pipeline
		pctx     *provisioning.Context
		stop     chan struct{}
	)

	run := func() error {
		stop = make(chan struct{})
		go autoAdvance(clk, 5*time.Second, stop)
		defer close(stop)
		return pipeline.Run(pctx)
	}

	setup := func(policy config.FailurePolicy) {
		var err error
		cfg, err = testConfig(GinkgoT().TempDir(), policy)
		Expect(err).NotTo(HaveOccurred())

		start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		clk = testclock.NewClock(start)
		node = &fakeNode{}
		store = &memStore{}
		plane = &fakeControlPlane{}
		status = &scriptedStatus{executions: []types.EffectiveDeploymentExecutionStatus{
			types.EffectiveDeploymentExecutionStatusInProgress,
			types.EffectiveDeploymentExecutionStatusSucceeded,
		}}
		metrics = NewMetrics()

		pipeline = New(Dependencies{
			Engine:       &fakeEngine{},
			Dial:         func(*infrastructure.Outputs, *config.Config) (Node, error) { return node, nil },
			Store:        store,
			Registrar:    &fakeRegistrar{},
			ControlPlane: plane,
			Status:       status,
			InstallEnv:   map[string]string{"AWS_REGION": "eu-central-1"},
		})

		pctx = provisioning.NewContext(context.Background(), cfg,
			provisioning.MultiObserver{provisioning.NewLogrObserver(GinkgoLogr), metrics.Observer()})
		pctx.Timeouts = config.TestTimeouts()
		pctx.Clock = clk
	}

	Context("with one component and two artifacts", func() {
		BeforeEach(func() { setup(config.PolicyRollback) })

		It("publishes the bundle under <bucket>/<name>/<version>/ and deploys it", func() {
			Expect(run()).To(Succeed())

			By("recording the published component")
			Expect(pctx.State.Published).To(HaveLen(1))
			pc := pctx.State.Published[0]
			Expect(pc.Prefix).To(Equal(testBucket + "/agent-core/1.0.0/"))
			Expect(pc.ObjectKeys).To(Equal([]string{
				"agent-core/1.0.0/agent.py",
				"agent-core/1.0.0/agent.conf",
				"agent-core/1.0.0/recipe.json",
			}))
			Expect(store.keys()).To(ConsistOf(
				testBucket+"/agent-core/1.0.0/agent.py",
				testBucket+"/agent-core/1.0.0/agent.conf",
				testBucket+"/agent-core/1.0.0/recipe.json",
			))
			Expect(pipeline.Registry().Has("agent-core", "1.0.0")).To(BeTrue())

			By("installing the runtime before submitting")
			Expect(pctx.State.Readiness).To(Equal(readiness.Ready))
			Expect(pctx.State.Install.Trace).To(HaveLen(7))
			last := pctx.State.Install.Trace[6]
			Expect(last.Step.Kind).To(Equal(install.VerifyActive))

			By("submitting one deployment to the thing group")
			Expect(plane.requests).To(HaveLen(1))
			req := plane.requests[0]
			Expect(req.TargetARN).To(Equal(testGroupARN))
			Expect(req.Components).To(HaveKey("agent-core"))
			Expect(req.Rollback).To(BeTrue())

			By("waiting for the device to apply it")
			Expect(pctx.State.Deployment.ID).To(Equal("dep-1"))
			Expect(pctx.State.Status.State).To(Equal(deployment.Succeeded))
			Expect(testutil.ToFloat64(metrics.stageTotal.WithLabelValues(StageAwait, "success"))).To(Equal(1.0))
		})

		It("can run again against the same resources", func() {
			Expect(run()).To(Succeed())
			Expect(run()).To(Succeed())

			Expect(plane.requests).To(HaveLen(2))
			Expect(node.probeCount()).To(Equal(2))
			Expect(store.keys()).To(HaveLen(3))
		})
	})

	Context("when the node never becomes reachable", func() {
		BeforeEach(func() {
			setup(config.PolicyRollback)
			node.probeErr = errRefused
		})

		It("times out the readiness wait after 12 probes", func() {
			err := run()

			var stageErr *provisioning.StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal(StageReady))
			Expect(stageErr.Class).To(Equal(provisioning.ClassTransient))

			var timeout *retry.TimeoutError
			Expect(errors.As(err, &timeout)).To(BeTrue())
			Expect(timeout.Attempts).To(Equal(12))
			Expect(node.probeCount()).To(Equal(12))
			Expect(clk.Now().Sub(start)).To(Equal(time.Minute))

			Expect(pctx.State.Readiness).To(Equal(readiness.Unreachable))
			Expect(pctx.State.Published).To(BeEmpty())
			Expect(testutil.ToFloat64(metrics.pollAttempts.WithLabelValues(StageReady, "unreachable"))).To(Equal(12.0))
		})
	})

	Context("when the publish stage runs without a ready node", func() {
		BeforeEach(func() {
			setup(config.PolicyRollback)
			pctx.State.Infrastructure = &infrastructure.Outputs{BucketName: testBucket}
			pctx.State.Readiness = readiness.MarkerPending
		})

		It("refuses to upload anything", func() {
			var publish provisioning.Phase
			for _, ph := range pipeline.Phases() {
				if ph.Name() == StagePublish {
					publish = ph
				}
			}
			Expect(publish).NotTo(BeNil())

			err := publish.Provision(pctx)
			var precondition *provisioning.PreconditionError
			Expect(errors.As(err, &precondition)).To(BeTrue())
			Expect(precondition.Phase).To(Equal(StagePublish))
			Expect(retry.IsFatal(err)).To(BeTrue())
			Expect(store.keys()).To(BeEmpty())
			Expect(pctx.State.Published).To(BeEmpty())
		})
	})

	Context("when the device fails the deployment under the rollback policy", func() {
		BeforeEach(func() {
			setup(config.PolicyRollback)
			status.executions = []types.EffectiveDeploymentExecutionStatus{
				types.EffectiveDeploymentExecutionStatusInProgress,
				types.EffectiveDeploymentExecutionStatusFailed,
			}
			status.reason = "DEPLOYMENT_FAILED: ROLLBACK_COMPLETE"
		})

		It("reports the deployment as rolled back within the wait ceiling", func() {
			err := run()

			var stageErr *provisioning.StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal(StageAwait))
			Expect(stageErr.Class).To(Equal(provisioning.ClassDeployment))

			var outcome *deployment.OutcomeError
			Expect(errors.As(err, &outcome)).To(BeTrue())
			Expect(outcome.Status.State).To(Equal(deployment.RolledBack))

			Expect(pctx.State.Status.State).To(Equal(deployment.RolledBack))
			Expect(pctx.State.Status.RollbackComplete).To(BeTrue())
			Expect(status.polls).To(Equal(2))
			Expect(clk.Now().Sub(start)).To(BeNumerically("<", pctx.Timeouts.DeploymentMaxWait))
		})
	})

	Context("when preflight finds a missing artifact", func() {
		BeforeEach(func() {
			setup(config.PolicyRollback)
			cfg.Components[0].Artifacts = append(cfg.Components[0].Artifacts, "/nonexistent/agent.bin")
		})

		It("stops before touching any remote system", func() {
			err := run()

			var stageErr *provisioning.StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal(provisioning.PreflightStage))
			Expect(stageErr.Class).To(Equal(provisioning.ClassConfiguration))
			Expect(pctx.State.Infrastructure).To(BeNil())
			Expect(node.probeCount()).To(BeZero())
		})
	})
})
