package provisioning

import (
	"fmt"

	"github.com/imamik/edgerun/internal/provisioning/artifacts"
	"github.com/imamik/edgerun/internal/provisioning/deployment"
	"github.com/imamik/edgerun/internal/provisioning/infrastructure"
	"github.com/imamik/edgerun/internal/provisioning/install"
	"github.com/imamik/edgerun/internal/provisioning/readiness"
	"github.com/imamik/edgerun/internal/util/retry"
)

// State holds the results of pipeline phases.
// It is progressively populated as each phase completes and is passed
// to subsequent phases that need earlier results.
type State struct {
	Infrastructure *infrastructure.Outputs
	Readiness      readiness.State
	Published      []*artifacts.PublishedComponent
	Install        *install.Result
	Deployment     *deployment.Handle
	Status         *deployment.Status
}

// NewState creates an empty pipeline state.
func NewState() *State {
	return &State{Readiness: readiness.Unreachable}
}

// PreconditionError reports a phase that ran before its inputs existed.
type PreconditionError struct {
	Phase   string
	Missing string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s requires %s, which no earlier phase produced", e.Phase, e.Missing)
}

func missing(phase, what string) error {
	return retry.Fatal(&PreconditionError{Phase: phase, Missing: what})
}

// RequireInfrastructure returns the provisioning outputs.
func (s *State) RequireInfrastructure(phase string) (*infrastructure.Outputs, error) {
	if s.Infrastructure == nil {
		return nil, missing(phase, "provisioning outputs")
	}
	return s.Infrastructure, nil
}

// RequireReady fails unless the node was found ready.
func (s *State) RequireReady(phase string) error {
	if s.Readiness != readiness.Ready {
		return missing(phase, "a ready node")
	}
	return nil
}

// RequirePublished returns the published components.
func (s *State) RequirePublished(phase string) ([]*artifacts.PublishedComponent, error) {
	if len(s.Published) == 0 {
		return nil, missing(phase, "published components")
	}
	return s.Published, nil
}

// RequireInstalled fails unless the runtime was installed.
func (s *State) RequireInstalled(phase string) error {
	if s.Install == nil {
		return missing(phase, "an installed runtime")
	}
	return nil
}

// RequireDeployment returns the submitted deployment.
func (s *State) RequireDeployment(phase string) (*deployment.Handle, error) {
	if s.Deployment == nil {
		return nil, missing(phase, "a submitted deployment")
	}
	return s.Deployment, nil
}
