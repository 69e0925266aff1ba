package infrastructure

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hcloud_internal "github.com/imamik/edgerun/internal/platform/hcloud"
	"github.com/imamik/edgerun/internal/platform/sts"
	"github.com/imamik/edgerun/internal/util/retry"
)

type fakeStore struct {
	created []string
	err     error
}

func (f *fakeStore) CreateBucket(_ context.Context, name string) error {
	f.created = append(f.created, name)
	return f.err
}

type fakeIdentity struct {
	id  *sts.Identity
	err error
}

func (f fakeIdentity) CallerIdentity(context.Context) (*sts.Identity, error) {
	return f.id, f.err
}

func testIdentity() fakeIdentity {
	return fakeIdentity{id: &sts.Identity{AccountID: "123456789012", Partition: "aws"}}
}

func testRequest(t *testing.T) Request {
	t.Helper()
	return Request{
		Prefix:     "edgerun",
		Location:   "fsn1",
		ServerType: "cx22",
		Image:      "ubuntu-24.04",
		StateDir:   filepath.Join(t.TempDir(), "state"),
		AWSRegion:  "eu-central-1",
		ThingName:  "edgerun-core",
		ThingGroup: "edgerun-group",
		RoleAlias:  "edgerun-token-exchange-role-alias",
		Labels:     map[string]string{"edgerun.io/deployment": "edgerun"},
	}
}

func newTestEngine(infra hcloud_internal.InfrastructureManager, store BucketStore, id IdentityResolver) *HetznerEngine {
	e := NewHetznerEngine(infra, store, id, nopLogger{})
	e.keyBits = 2048
	return e
}

func TestHetznerEngine_Apply(t *testing.T) {
	var (
		uploadedKey string
		rules       []hcloud.FirewallRule
		serverOpts  hcloud_internal.ServerCreateOpts
	)
	infra := &hcloud_internal.MockClient{
		EnsureSSHKeyFunc: func(_ context.Context, name, publicKey string, _ map[string]string) (*hcloud.SSHKey, error) {
			uploadedKey = publicKey
			return &hcloud.SSHKey{ID: 1, Name: name}, nil
		},
		EnsureFirewallFunc: func(_ context.Context, name string, r []hcloud.FirewallRule, _ map[string]string) (*hcloud.Firewall, error) {
			rules = r
			return &hcloud.Firewall{ID: 2, Name: name}, nil
		},
		EnsureServerFunc: func(_ context.Context, opts hcloud_internal.ServerCreateOpts) (*hcloud.Server, bool, error) {
			serverOpts = opts
			return &hcloud.Server{ID: 42, Name: opts.Name}, true, nil
		},
	}
	store := &fakeStore{}
	req := testRequest(t)

	out, err := newTestEngine(infra, store, testIdentity()).Apply(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "203.0.113.10", out[KeyNodeAddress])
	assert.Equal(t, "42", out[KeyServerID])
	assert.Equal(t, "edgerun-node", out[KeyServerName])
	assert.Equal(t, "edgerun-key", out[KeySSHKeyName])
	assert.Equal(t, "edgerun-gg-artifacts-123456789012", out[KeyBucketName])
	assert.Equal(t, "arn:aws:iot:eu-central-1:123456789012:thinggroup/edgerun-group", out[KeyTargetARN])
	assert.Equal(t, []string{"edgerun-gg-artifacts-123456789012"}, store.created)

	_, err = OutputsFromMap(out)
	require.NoError(t, err)

	keyPath := out[KeySSHPrivateKeyPath]
	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.True(t, strings.HasPrefix(uploadedKey, "ssh-rsa "))

	require.Len(t, rules, 1)
	require.Len(t, rules[0].SourceIPs, 1)
	assert.Equal(t, "198.51.100.1/32", rules[0].SourceIPs[0].String())

	assert.Equal(t, []string{"edgerun-key"}, serverOpts.SSHKeys)
	assert.Equal(t, []string{"edgerun-ssh"}, serverOpts.Firewalls)
	assert.True(t, strings.HasPrefix(serverOpts.UserData, "#cloud-config\n"))
}

func TestHetznerEngine_ApplyReusesKey(t *testing.T) {
	var keys []string
	infra := &hcloud_internal.MockClient{
		EnsureSSHKeyFunc: func(_ context.Context, name, publicKey string, _ map[string]string) (*hcloud.SSHKey, error) {
			keys = append(keys, publicKey)
			return &hcloud.SSHKey{ID: 1, Name: name}, nil
		},
	}
	req := testRequest(t)
	engine := newTestEngine(infra, &fakeStore{}, testIdentity())

	_, err := engine.Apply(context.Background(), req)
	require.NoError(t, err)
	_, err = engine.Apply(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
}

func TestHetznerEngine_SSHSources(t *testing.T) {
	t.Run("configured", func(t *testing.T) {
		e := newTestEngine(&hcloud_internal.MockClient{}, nil, nil)
		nets, err := e.sshSources(context.Background(), []string{"10.0.0.0/8", "2001:db8::/32"})
		require.NoError(t, err)
		require.Len(t, nets, 2)
		assert.Equal(t, "10.0.0.0/8", nets[0].String())
	})

	t.Run("invalid configured is fatal", func(t *testing.T) {
		e := newTestEngine(&hcloud_internal.MockClient{}, nil, nil)
		_, err := e.sshSources(context.Background(), []string{"not-a-cidr"})
		require.Error(t, err)
		assert.True(t, retry.IsFatal(err))
	})

	t.Run("lookup failure opens ssh", func(t *testing.T) {
		e := newTestEngine(&hcloud_internal.MockClient{
			GetPublicIPFunc: func(context.Context) (string, error) { return "", errors.New("offline") },
		}, nil, nil)
		nets, err := e.sshSources(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, nets)

		rules := hcloud_internal.SSHFirewallRules(nets)
		assert.Len(t, rules[0].SourceIPs, 2)
	})

	t.Run("caller address", func(t *testing.T) {
		e := newTestEngine(&hcloud_internal.MockClient{}, nil, nil)
		nets, err := e.sshSources(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, nets, 1)
		assert.True(t, nets[0].IP.Equal(net.ParseIP("198.51.100.1")))
	})
}

func TestHetznerEngine_Failures(t *testing.T) {
	t.Run("server", func(t *testing.T) {
		infra := &hcloud_internal.MockClient{
			EnsureServerFunc: func(context.Context, hcloud_internal.ServerCreateOpts) (*hcloud.Server, bool, error) {
				return nil, false, errors.New("resource_unavailable")
			},
		}
		store := &fakeStore{}
		_, err := newTestEngine(infra, store, testIdentity()).Apply(context.Background(), testRequest(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ensure server")
		assert.Empty(t, store.created)
	})

	t.Run("identity", func(t *testing.T) {
		_, err := newTestEngine(&hcloud_internal.MockClient{}, &fakeStore{}, fakeIdentity{err: errors.New("expired token")}).
			Apply(context.Background(), testRequest(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expired token")
	})

	t.Run("bucket override", func(t *testing.T) {
		store := &fakeStore{}
		req := testRequest(t)
		req.Bucket = "shared-artifacts"
		out, err := newTestEngine(&hcloud_internal.MockClient{}, store, testIdentity()).Apply(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "shared-artifacts", out[KeyBucketName])
	})
}

func TestThingGroupARN(t *testing.T) {
	assert.Equal(t, "arn:aws-cn:iot:cn-north-1:123456789012:thinggroup/lab-group",
		ThingGroupARN("aws-cn", "cn-north-1", "123456789012", "lab-group"))
}

func TestCloudInit(t *testing.T) {
	data, err := CloudInit()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(data, "#cloud-config\n"))
	assert.Contains(t, data, "package_update: true")
	assert.Contains(t, data, "- curl")
}
