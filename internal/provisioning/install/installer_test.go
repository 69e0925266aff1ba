package install

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/edgerun/internal/platform/ssh"
	"github.com/imamik/edgerun/internal/util/retry"
)

type reply struct {
	out string
	err error
}

// fakeNode answers commands by prefix; queued replies are consumed first.
type fakeNode struct {
	mu      sync.Mutex
	replies map[string][]reply
	history []string
}

func newFakeNode() *fakeNode {
	return &fakeNode{replies: map[string][]reply{}}
}

func (n *fakeNode) on(prefix string, replies ...reply) {
	n.replies[prefix] = append(n.replies[prefix], replies...)
}

func (n *fakeNode) Execute(_ context.Context, command string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, command)
	for prefix, queue := range n.replies {
		if !strings.HasPrefix(command, prefix) || len(queue) == 0 {
			continue
		}
		r := queue[0]
		if len(queue) > 1 {
			n.replies[prefix] = queue[1:]
		}
		return r.out, r.err
	}
	if strings.HasPrefix(command, "systemctl is-active") {
		return "active\n", nil
	}
	return "", nil
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

func newTestInstaller(exec Executor) *Installer {
	return NewInstaller(exec, WithLogger(nopLogger{}), WithVerify(3, time.Millisecond))
}

func TestInstall_RunsInOrder(t *testing.T) {
	node := newFakeNode()
	steps := []Step{
		Run("first", "echo one"),
		Run("second", "echo two"),
		AddToGroups("ggc_user", "greengrass", "video"),
		Restart("greengrass"),
		Verify("greengrass"),
	}

	res, err := newTestInstaller(node).Install(context.Background(), steps)
	require.NoError(t, err)

	require.Len(t, res.Trace, 5)
	for i, rec := range res.Trace {
		assert.Equal(t, i, rec.Index)
		assert.NoError(t, rec.Err)
	}
	assert.Equal(t, "active", res.Trace[4].Output)
	assert.Equal(t, []string{
		"echo one",
		"echo two",
		"(id -nG ggc_user | grep -qw video || usermod -aG video ggc_user)",
		"systemctl restart greengrass",
		"systemctl is-active greengrass",
	}, node.history)
}

func TestInstall_StopsAtFirstFailure(t *testing.T) {
	node := newFakeNode()
	node.on("false", reply{out: "step output\nE: broken package", err: &ssh.ExitError{Command: "false", Status: 100}})
	steps := []Step{
		Run("ok", "true"),
		Run("broken", "false"),
		Run("never", "echo never"),
	}

	res, err := newTestInstaller(node).Install(context.Background(), steps)
	require.Error(t, err)

	var installErr *InstallError
	require.True(t, errors.As(err, &installErr))
	assert.Equal(t, 1, installErr.Index)
	assert.Equal(t, "broken", installErr.Step.Name)
	assert.Contains(t, installErr.Output, "E: broken package")
	assert.Contains(t, err.Error(), "install step 1 (broken) failed")
	assert.Contains(t, err.Error(), "E: broken package")

	exitErr, ok := ssh.AsExitError(err)
	require.True(t, ok)
	assert.Equal(t, 100, exitErr.Status)

	assert.Len(t, res.Trace, 2)
	assert.NotContains(t, node.history, "echo never")
}

func TestInstall_RerunAfterFixCompletes(t *testing.T) {
	node := newFakeNode()
	node.on("apt-get", reply{out: "E: could not get lock", err: &ssh.ExitError{Command: "apt-get", Status: 100}})
	steps := []Step{
		Run("prepare", "echo prepare"),
		Run("packages", "apt-get install -y unzip"),
		AddToGroups("ggc_user", "greengrass", "video"),
		Restart("greengrass"),
		Verify("greengrass"),
	}
	inst := newTestInstaller(node)

	res, err := inst.Install(context.Background(), steps)
	var installErr *InstallError
	require.ErrorAs(t, err, &installErr)
	assert.Equal(t, 1, installErr.Index)
	assert.Len(t, res.Trace, 2)

	node.mu.Lock()
	delete(node.replies, "apt-get")
	node.mu.Unlock()

	res, err = inst.Install(context.Background(), steps)
	require.NoError(t, err)
	require.Len(t, res.Trace, len(steps))
	for i, rec := range res.Trace {
		assert.Equal(t, i, rec.Index)
		assert.NoError(t, rec.Err, rec.Step.Name)
	}
	assert.Equal(t, "active", res.Trace[4].Output)
}

func TestInstall_VerifyToleratesDroppedConnection(t *testing.T) {
	node := newFakeNode()
	node.on("systemctl is-active",
		reply{err: errors.New("connection reset by peer")},
		reply{out: "activating\n", err: &ssh.ExitError{Status: 3}},
		reply{out: "active\n"},
	)

	res, err := newTestInstaller(node).Install(context.Background(), []Step{
		AddToGroups("ggc_user", "greengrass", "video"),
		Restart("greengrass"),
		Verify("greengrass"),
	})
	require.NoError(t, err)
	assert.Equal(t, "active", res.Trace[2].Output)
	assert.Len(t, node.history, 5)
}

func TestInstall_VerifyGivesUp(t *testing.T) {
	node := newFakeNode()
	node.on("systemctl is-active", reply{out: "failed\n", err: &ssh.ExitError{Status: 3}})

	res, err := newTestInstaller(node).Install(context.Background(), []Step{Verify("greengrass")})
	require.Error(t, err)

	var installErr *InstallError
	require.True(t, errors.As(err, &installErr))
	assert.Equal(t, VerifyActive, installErr.Step.Kind)
	assert.Equal(t, "failed", installErr.Output)
	assert.Contains(t, err.Error(), "did not become active")
	assert.Len(t, node.history, 3)
	assert.Len(t, res.Trace, 1)
}

func TestInstall_InvalidSequenceRunsNothing(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
		want  string
	}{
		{
			name:  "group change without restart",
			steps: []Step{AddToGroups("ggc_user", "greengrass", "video"), Verify("greengrass")},
			want:  "must be followed by a restart of greengrass",
		},
		{
			name:  "restart without verify",
			steps: []Step{AddToGroups("ggc_user", "greengrass", "video"), Restart("greengrass"), Run("x", "true")},
			want:  "must be followed by a verification of greengrass",
		},
		{
			name:  "restart of another service",
			steps: []Step{AddToGroups("ggc_user", "greengrass", "video"), Restart("ssh"), Verify("ssh")},
			want:  "restart of greengrass",
		},
		{
			name:  "group change last",
			steps: []Step{Run("x", "true"), AddToGroups("ggc_user", "greengrass", "video")},
			want:  "step 1",
		},
		{
			name:  "empty command",
			steps: []Step{Run("x", "  ")},
			want:  "command is empty",
		},
		{
			name:  "bad env name",
			steps: []Step{{Kind: Command, Command: "true", Env: map[string]string{"A B": "1"}}},
			want:  "invalid environment variable name",
		},
		{
			name:  "verify without service",
			steps: []Step{{Kind: VerifyActive}},
			want:  "service is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newFakeNode()
			res, err := newTestInstaller(node).Install(context.Background(), tt.steps)
			require.Error(t, err)
			assert.True(t, retry.IsFatal(err))
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, node.history)
			assert.Empty(t, res.Trace)
		})
	}
}

func TestInstall_Cancelled(t *testing.T) {
	node := newFakeNode()
	node.on("systemctl is-active", reply{out: "activating", err: &ssh.ExitError{Status: 3}})
	inst := NewInstaller(node, WithLogger(nopLogger{}), WithVerify(10, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := inst.Install(ctx, []Step{Verify("greengrass")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStep_ScriptExportsEnv(t *testing.T) {
	s := Run("install", "java -jar x.jar")
	s.Env = map[string]string{"B": "two words", "A": "1"}

	assert.Equal(t, "export A=1; export 'B=two words'; java -jar x.jar", s.Script())
}

func TestStep_GroupChangeScriptIsIdempotent(t *testing.T) {
	s := AddToGroups("ggc_user", "greengrass", "video", "dialout")
	assert.Equal(t,
		"(id -nG ggc_user | grep -qw video || usermod -aG video ggc_user) && (id -nG ggc_user | grep -qw dialout || usermod -aG dialout ggc_user)",
		s.Script())
	assert.Equal(t, "add ggc_user to video,dialout", s.String())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "command", Command.String())
	assert.Equal(t, "group-change", GroupChange.String())
	assert.Equal(t, "restart-service", RestartService.String())
	assert.Equal(t, "verify-active", VerifyActive.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
