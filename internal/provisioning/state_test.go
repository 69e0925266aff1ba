package provisioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/edgerun/internal/provisioning/artifacts"
	"github.com/imamik/edgerun/internal/provisioning/deployment"
	"github.com/imamik/edgerun/internal/provisioning/infrastructure"
	"github.com/imamik/edgerun/internal/provisioning/install"
	"github.com/imamik/edgerun/internal/provisioning/readiness"
	"github.com/imamik/edgerun/internal/util/retry"
)

func TestState_Preconditions(t *testing.T) {
	s := NewState()
	assert.Equal(t, readiness.Unreachable, s.Readiness)

	_, err := s.RequireInfrastructure("ready")
	require.Error(t, err)
	assert.True(t, retry.IsFatal(err))
	assert.Equal(t, ClassConfiguration, ClassOf(err))
	assert.Contains(t, err.Error(), "ready requires provisioning outputs")

	require.Error(t, s.RequireReady("publish"))
	_, err = s.RequirePublished("deploy")
	require.Error(t, err)
	require.Error(t, s.RequireInstalled("deploy"))
	_, err = s.RequireDeployment("await")
	require.Error(t, err)

	s.Infrastructure = &infrastructure.Outputs{NodeAddress: "203.0.113.10"}
	s.Readiness = readiness.Ready
	s.Published = []*artifacts.PublishedComponent{{Name: "a", Version: "1.0.0"}}
	s.Install = &install.Result{}
	s.Deployment = &deployment.Handle{ID: "dep-1"}

	out, err := s.RequireInfrastructure("ready")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.10", out.NodeAddress)
	require.NoError(t, s.RequireReady("publish"))
	pub, err := s.RequirePublished("deploy")
	require.NoError(t, err)
	assert.Len(t, pub, 1)
	require.NoError(t, s.RequireInstalled("deploy"))
	h, err := s.RequireDeployment("await")
	require.NoError(t, err)
	assert.Equal(t, "dep-1", h.ID)
}
