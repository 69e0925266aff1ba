package hcloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/hetznercloud/hcloud-go/v2/hcloud/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/util/retry"
)

const testPublicKey = "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQC7 edgerun"

// testServer mocks the Hetzner Cloud API.
type testServer struct {
	server *httptest.Server
	mux    *http.ServeMux
}

func newTestServer() *testServer {
	mux := http.NewServeMux()
	return &testServer{
		server: httptest.NewServer(mux),
		mux:    mux,
	}
}

func (ts *testServer) close() {
	ts.server.Close()
}

func (ts *testServer) client() *hcloud.Client {
	return hcloud.NewClient(
		hcloud.WithToken("test-token"),
		hcloud.WithEndpoint(ts.server.URL),
	)
}

func (ts *testServer) realClient() *RealClient {
	return NewRealClient("test-token",
		WithHCloudClient(ts.client()),
		WithTimeouts(config.TestTimeouts()),
	)
}

func (ts *testServer) handleFunc(pattern string, handler http.HandlerFunc) {
	ts.mux.HandleFunc(pattern, handler)
}

func jsonResponse(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func TestRealClient_GetServerIP(t *testing.T) {
	ts := newTestServer()
	defer ts.close()

	ts.handleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("name") {
		case "edgerun-node":
			jsonResponse(w, http.StatusOK, schema.ServerListResponse{
				Servers: []schema.Server{{
					ID:   123,
					Name: "edgerun-node",
					PublicNet: schema.ServerPublicNet{
						IPv4: schema.ServerPublicNetIPv4{IP: "203.0.113.42"},
					},
				}},
			})
		case "no-ipv4":
			jsonResponse(w, http.StatusOK, schema.ServerListResponse{
				Servers: []schema.Server{{ID: 124, Name: "no-ipv4"}},
			})
		default:
			jsonResponse(w, http.StatusOK, schema.ServerListResponse{Servers: []schema.Server{}})
		}
	})

	client := ts.realClient()
	ctx := context.Background()

	ip, err := client.GetServerIP(ctx, "edgerun-node")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.42", ip)

	_, err = client.GetServerIP(ctx, "no-ipv4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no public IPv4")

	_, err = client.GetServerIP(ctx, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server not found")
}

func TestRealClient_EnsureServer_ReturnsExisting(t *testing.T) {
	ts := newTestServer()
	defer ts.close()

	ts.handleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s /servers: existing server must not be recreated", r.Method)
			http.Error(w, "unexpected", http.StatusBadRequest)
			return
		}
		jsonResponse(w, http.StatusOK, schema.ServerListResponse{
			Servers: []schema.Server{{ID: 9, Name: "edgerun-node"}},
		})
	})

	server, created, err := ts.realClient().EnsureServer(context.Background(), ServerCreateOpts{
		Name:       "edgerun-node",
		Image:      "ubuntu-24.04",
		ServerType: "cx22",
		Location:   "fsn1",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(9), server.ID)
}

func TestRealClient_EnsureSSHKey(t *testing.T) {
	ts := newTestServer()
	defer ts.close()

	var (
		mu      sync.Mutex
		created []schema.SSHKeyCreateRequest
	)

	ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			switch r.URL.Query().Get("name") {
			case "same-key":
				jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{SSHKeys: []schema.SSHKey{{
					ID: 1, Name: "same-key", PublicKey: "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQC7 other-comment",
				}}})
			case "other-key":
				jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{SSHKeys: []schema.SSHKey{{
					ID: 2, Name: "other-key", PublicKey: "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAI", Fingerprint: "aa:bb",
				}}})
			default:
				jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{SSHKeys: []schema.SSHKey{}})
			}
		case http.MethodPost:
			var req schema.SSHKeyCreateRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			created = append(created, req)
			mu.Unlock()
			jsonResponse(w, http.StatusCreated, schema.SSHKeyCreateResponse{
				SSHKey: schema.SSHKey{ID: 3, Name: req.Name, PublicKey: req.PublicKey},
			})
		}
	})

	client := ts.realClient()
	ctx := context.Background()
	labels := map[string]string{"edgerun.io/deployment": "edgerun"}

	key, err := client.EnsureSSHKey(ctx, "same-key", testPublicKey, labels)
	require.NoError(t, err)
	assert.Equal(t, int64(1), key.ID)

	_, err = client.EnsureSSHKey(ctx, "other-key", testPublicKey, labels)
	require.Error(t, err)
	assert.True(t, retry.IsFatal(err))
	assert.Contains(t, err.Error(), "different public key")

	key, err = client.EnsureSSHKey(ctx, "edgerun-key", testPublicKey, labels)
	require.NoError(t, err)
	assert.Equal(t, int64(3), key.ID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, created, 1)
	assert.Equal(t, "edgerun-key", created[0].Name)
	assert.Equal(t, testPublicKey, created[0].PublicKey)
}

func TestRealClient_EnsureFirewall_Creates(t *testing.T) {
	ts := newTestServer()
	defer ts.close()

	var got schema.FirewallCreateRequest
	ts.handleFunc("/firewalls", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			jsonResponse(w, http.StatusOK, schema.FirewallListResponse{Firewalls: []schema.Firewall{}})
		case http.MethodPost:
			_ = json.NewDecoder(r.Body).Decode(&got)
			jsonResponse(w, http.StatusCreated, schema.FirewallCreateResponse{
				Firewall: schema.Firewall{ID: 200, Name: got.Name},
			})
		}
	})

	fw, err := ts.realClient().EnsureFirewall(context.Background(), "edgerun-ssh", SSHFirewallRules(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(200), fw.ID)

	require.Len(t, got.Rules, 1)
	assert.Equal(t, "in", got.Rules[0].Direction)
	assert.Equal(t, "tcp", got.Rules[0].Protocol)
	require.NotNil(t, got.Rules[0].Port)
	assert.Equal(t, "22", *got.Rules[0].Port)
	assert.ElementsMatch(t, []string{"0.0.0.0/0", "::/0"}, got.Rules[0].SourceIPs)
}

func TestRealClient_DeleteServer(t *testing.T) {
	ts := newTestServer()
	defer ts.close()

	var deleted atomic.Bool
	ts.handleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "edgerun-node" && !deleted.Load() {
			jsonResponse(w, http.StatusOK, schema.ServerListResponse{
				Servers: []schema.Server{{ID: 789, Name: "edgerun-node"}},
			})
			return
		}
		jsonResponse(w, http.StatusOK, schema.ServerListResponse{Servers: []schema.Server{}})
	})
	ts.handleFunc("/servers/789", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		deleted.Store(true)
		jsonResponse(w, http.StatusOK, schema.ServerDeleteResponse{
			Action: schema.Action{ID: 1, Status: "success", Progress: 100},
		})
	})

	client := ts.realClient()
	require.NoError(t, client.DeleteServer(context.Background(), "edgerun-node"))
	assert.True(t, deleted.Load())

	// Already gone.
	require.NoError(t, client.DeleteServer(context.Background(), "edgerun-node"))
}

func TestRealClient_CleanupByLabel_NothingToDelete(t *testing.T) {
	ts := newTestServer()
	defer ts.close()

	var selectors []string
	var mu sync.Mutex
	record := func(r *http.Request) {
		mu.Lock()
		selectors = append(selectors, r.URL.Query().Get("label_selector"))
		mu.Unlock()
	}
	ts.handleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		jsonResponse(w, http.StatusOK, schema.ServerListResponse{Servers: []schema.Server{}})
	})
	ts.handleFunc("/firewalls", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		jsonResponse(w, http.StatusOK, schema.FirewallListResponse{Firewalls: []schema.Firewall{}})
	})
	ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{SSHKeys: []schema.SSHKey{}})
	})

	err := ts.realClient().CleanupByLabel(context.Background(), map[string]string{
		"edgerun.io/managed-by": "edgerun",
		"edgerun.io/deployment": "edgerun",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, selectors)
	for _, s := range selectors {
		assert.Equal(t, "edgerun.io/deployment=edgerun,edgerun.io/managed-by=edgerun", s)
	}
}

func TestRealClient_GetPublicIP(t *testing.T) {
	ipServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("198.51.100.7\n"))
	}))
	defer ipServer.Close()

	client := NewRealClient("test-token", WithPublicIPEndpoint(ipServer.URL), WithHTTPClient(ipServer.Client()))
	ip, err := client.GetPublicIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", ip)

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer garbage.Close()

	client = NewRealClient("test-token", WithPublicIPEndpoint(garbage.URL))
	_, err = client.GetPublicIP(context.Background())
	require.Error(t, err)
}

func TestSamePublicKey(t *testing.T) {
	assert.True(t, samePublicKey("ssh-rsa AAAA one", "ssh-rsa AAAA two"))
	assert.False(t, samePublicKey("ssh-rsa AAAA", "ssh-rsa BBBB"))
	assert.False(t, samePublicKey("ssh-rsa AAAA", "ssh-ed25519 AAAA"))
}
