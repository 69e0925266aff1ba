package hcloud

import (
	"context"
	"net"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// ServerCreateOpts holds all parameters for creating the edge node.
type ServerCreateOpts struct {
	Name       string
	Image      string
	ServerType string
	Location   string
	SSHKeys    []string
	Firewalls  []string
	Labels     map[string]string
	UserData   string
}

// ServerProvisioner manages the edge node.
type ServerProvisioner interface {
	// EnsureServer returns the server with opts.Name, creating it when absent.
	// created reports whether this call created it.
	EnsureServer(ctx context.Context, opts ServerCreateOpts) (server *hcloud.Server, created bool, err error)
	DeleteServer(ctx context.Context, name string) error
	// GetServerIP returns the public IPv4 of the server.
	GetServerIP(ctx context.Context, name string) (string, error)
	// GetServerByName returns the server, or nil if not found.
	GetServerByName(ctx context.Context, name string) (*hcloud.Server, error)
}

// SSHKeyManager manages the node's SSH key.
type SSHKeyManager interface {
	EnsureSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) (*hcloud.SSHKey, error)
	DeleteSSHKey(ctx context.Context, name string) error
}

// FirewallManager manages the node's firewall.
type FirewallManager interface {
	EnsureFirewall(ctx context.Context, name string, rules []hcloud.FirewallRule, labels map[string]string) (*hcloud.Firewall, error)
	DeleteFirewall(ctx context.Context, name string) error
	GetFirewall(ctx context.Context, name string) (*hcloud.Firewall, error)
}

// InfrastructureManager combines everything the provisioning engine needs.
type InfrastructureManager interface {
	ServerProvisioner
	SSHKeyManager
	FirewallManager
	// CleanupByLabel deletes every server, firewall and SSH key matching the selector.
	CleanupByLabel(ctx context.Context, labelSelector map[string]string) error
	GetPublicIP(ctx context.Context) (string, error)
}

// SSHFirewallRules allows inbound SSH from the given networks.
// With no networks, SSH is open to the world on IPv4 and IPv6.
func SSHFirewallRules(sources []net.IPNet) []hcloud.FirewallRule {
	if len(sources) == 0 {
		sources = []net.IPNet{
			{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)},
			{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)},
		}
	}
	return []hcloud.FirewallRule{{
		Direction:   hcloud.FirewallRuleDirectionIn,
		Protocol:    hcloud.FirewallRuleProtocolTCP,
		Port:        hcloud.Ptr("22"),
		SourceIPs:   sources,
		Description: hcloud.Ptr("ssh"),
	}}
}
