package hcloud

import (
	"context"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// MockClient is a mock implementation of InfrastructureManager. Unset
// functions succeed with zero values.
type MockClient struct {
	EnsureServerFunc    func(ctx context.Context, opts ServerCreateOpts) (*hcloud.Server, bool, error)
	DeleteServerFunc    func(ctx context.Context, name string) error
	GetServerIPFunc     func(ctx context.Context, name string) (string, error)
	GetServerByNameFunc func(ctx context.Context, name string) (*hcloud.Server, error)

	EnsureSSHKeyFunc func(ctx context.Context, name, publicKey string, labels map[string]string) (*hcloud.SSHKey, error)
	DeleteSSHKeyFunc func(ctx context.Context, name string) error

	EnsureFirewallFunc func(ctx context.Context, name string, rules []hcloud.FirewallRule, labels map[string]string) (*hcloud.Firewall, error)
	DeleteFirewallFunc func(ctx context.Context, name string) error
	GetFirewallFunc    func(ctx context.Context, name string) (*hcloud.Firewall, error)

	CleanupByLabelFunc func(ctx context.Context, labelSelector map[string]string) error
	GetPublicIPFunc    func(ctx context.Context) (string, error)
}

var _ InfrastructureManager = (*MockClient)(nil)

// EnsureServer implements ServerProvisioner.
func (m *MockClient) EnsureServer(ctx context.Context, opts ServerCreateOpts) (*hcloud.Server, bool, error) {
	if m.EnsureServerFunc != nil {
		return m.EnsureServerFunc(ctx, opts)
	}
	return &hcloud.Server{ID: 1, Name: opts.Name}, true, nil
}

// DeleteServer implements ServerProvisioner.
func (m *MockClient) DeleteServer(ctx context.Context, name string) error {
	if m.DeleteServerFunc != nil {
		return m.DeleteServerFunc(ctx, name)
	}
	return nil
}

// GetServerIP implements ServerProvisioner.
func (m *MockClient) GetServerIP(ctx context.Context, name string) (string, error) {
	if m.GetServerIPFunc != nil {
		return m.GetServerIPFunc(ctx, name)
	}
	return "203.0.113.10", nil
}

// GetServerByName implements ServerProvisioner.
func (m *MockClient) GetServerByName(ctx context.Context, name string) (*hcloud.Server, error) {
	if m.GetServerByNameFunc != nil {
		return m.GetServerByNameFunc(ctx, name)
	}
	return nil, nil
}

// EnsureSSHKey implements SSHKeyManager.
func (m *MockClient) EnsureSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) (*hcloud.SSHKey, error) {
	if m.EnsureSSHKeyFunc != nil {
		return m.EnsureSSHKeyFunc(ctx, name, publicKey, labels)
	}
	return &hcloud.SSHKey{ID: 1, Name: name, PublicKey: publicKey}, nil
}

// DeleteSSHKey implements SSHKeyManager.
func (m *MockClient) DeleteSSHKey(ctx context.Context, name string) error {
	if m.DeleteSSHKeyFunc != nil {
		return m.DeleteSSHKeyFunc(ctx, name)
	}
	return nil
}

// EnsureFirewall implements FirewallManager.
func (m *MockClient) EnsureFirewall(ctx context.Context, name string, rules []hcloud.FirewallRule, labels map[string]string) (*hcloud.Firewall, error) {
	if m.EnsureFirewallFunc != nil {
		return m.EnsureFirewallFunc(ctx, name, rules, labels)
	}
	return &hcloud.Firewall{ID: 1, Name: name, Rules: rules}, nil
}

// DeleteFirewall implements FirewallManager.
func (m *MockClient) DeleteFirewall(ctx context.Context, name string) error {
	if m.DeleteFirewallFunc != nil {
		return m.DeleteFirewallFunc(ctx, name)
	}
	return nil
}

// GetFirewall implements FirewallManager.
func (m *MockClient) GetFirewall(ctx context.Context, name string) (*hcloud.Firewall, error) {
	if m.GetFirewallFunc != nil {
		return m.GetFirewallFunc(ctx, name)
	}
	return nil, nil
}

// CleanupByLabel implements InfrastructureManager.
func (m *MockClient) CleanupByLabel(ctx context.Context, labelSelector map[string]string) error {
	if m.CleanupByLabelFunc != nil {
		return m.CleanupByLabelFunc(ctx, labelSelector)
	}
	return nil
}

// GetPublicIP implements InfrastructureManager.
func (m *MockClient) GetPublicIP(ctx context.Context) (string, error) {
	if m.GetPublicIPFunc != nil {
		return m.GetPublicIPFunc(ctx)
	}
	return "198.51.100.1", nil
}
