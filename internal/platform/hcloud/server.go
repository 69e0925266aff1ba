package hcloud

import (
	"context"
	"fmt"

	"github.com/imamik/edgerun/internal/util/retry"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// EnsureServer returns the server named opts.Name, creating it when absent.
// An existing server is returned as is; its user data cannot change.
func (c *RealClient) EnsureServer(ctx context.Context, opts ServerCreateOpts) (*hcloud.Server, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.ServerCreate)
	defer cancel()

	return (&EnsureOperation[*hcloud.Server, ServerCreateOpts, any]{
		Name:             opts.Name,
		ResourceType:     "server",
		Get:              c.client.Server.Get,
		Create:           c.createServer,
		CreateOptsMapper: func() ServerCreateOpts { return opts },
	}).ExecuteCreated(ctx, c)
}

func (c *RealClient) createServer(ctx context.Context, opts ServerCreateOpts) (*CreateResult[*hcloud.Server], *hcloud.Response, error) {
	createOpts, err := c.buildServerCreateOpts(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	var (
		result hcloud.ServerCreateResult
		resp   *hcloud.Response
	)
	err = retry.WithExponentialBackoff(ctx, func() error {
		res, r, err := c.client.Server.Create(ctx, createOpts)
		resp = r
		if err != nil {
			if isInvalidParameter(err) {
				return retry.Fatal(err)
			}
			return err
		}
		result = res
		return nil
	}, retry.WithMaxRetries(c.timeouts.RetryMaxAttempts), retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
	if err != nil {
		return nil, resp, err
	}

	actions := make([]*hcloud.Action, 0, 1+len(result.NextActions))
	if result.Action != nil {
		actions = append(actions, result.Action)
	}
	actions = append(actions, result.NextActions...)
	return &CreateResult[*hcloud.Server]{Resource: result.Server, Actions: actions}, resp, nil
}

// buildServerCreateOpts resolves names to API objects.
func (c *RealClient) buildServerCreateOpts(ctx context.Context, opts ServerCreateOpts) (hcloud.ServerCreateOpts, error) {
	serverType, _, err := c.client.ServerType.Get(ctx, opts.ServerType)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get server type: %w", err)
	}
	if serverType == nil {
		return hcloud.ServerCreateOpts{}, retry.Fatal(fmt.Errorf("server type not found: %s", opts.ServerType))
	}

	image, _, err := c.client.Image.GetForArchitecture(ctx, opts.Image, serverType.Architecture)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get image: %w", err)
	}
	if image == nil {
		return hcloud.ServerCreateOpts{}, retry.Fatal(fmt.Errorf("image %s not found for %s", opts.Image, serverType.Architecture))
	}

	location, _, err := c.client.Location.Get(ctx, opts.Location)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get location: %w", err)
	}
	if location == nil {
		return hcloud.ServerCreateOpts{}, retry.Fatal(fmt.Errorf("location not found: %s", opts.Location))
	}

	sshKeys := make([]*hcloud.SSHKey, 0, len(opts.SSHKeys))
	for _, name := range opts.SSHKeys {
		key, _, err := c.client.SSHKey.Get(ctx, name)
		if err != nil {
			return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get ssh key %s: %w", name, err)
		}
		if key == nil {
			return hcloud.ServerCreateOpts{}, retry.Fatal(fmt.Errorf("ssh key not found: %s", name))
		}
		sshKeys = append(sshKeys, key)
	}

	firewalls := make([]*hcloud.ServerCreateFirewall, 0, len(opts.Firewalls))
	for _, name := range opts.Firewalls {
		fw, _, err := c.client.Firewall.Get(ctx, name)
		if err != nil {
			return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get firewall %s: %w", name, err)
		}
		if fw == nil {
			return hcloud.ServerCreateOpts{}, retry.Fatal(fmt.Errorf("firewall not found: %s", name))
		}
		firewalls = append(firewalls, &hcloud.ServerCreateFirewall{Firewall: *fw})
	}

	return hcloud.ServerCreateOpts{
		Name:       opts.Name,
		ServerType: serverType,
		Image:      image,
		SSHKeys:    sshKeys,
		Location:   location,
		Firewalls:  firewalls,
		Labels:     opts.Labels,
		UserData:   opts.UserData,
	}, nil
}

// DeleteServer deletes the server with the given name.
func (c *RealClient) DeleteServer(ctx context.Context, name string) error {
	return (&DeleteOperation[*hcloud.Server]{
		Name:         name,
		ResourceType: "server",
		Get:          c.client.Server.Get,
		Delete: func(ctx context.Context, server *hcloud.Server) (*hcloud.Response, error) {
			result, resp, err := c.client.Server.DeleteWithResult(ctx, server)
			if err != nil {
				return resp, err
			}
			return resp, c.client.Action.WaitFor(ctx, result.Action)
		},
	}).Execute(ctx, c)
}

// GetServerByName returns the server, or nil if not found.
func (c *RealClient) GetServerByName(ctx context.Context, name string) (*hcloud.Server, error) {
	server, _, err := c.client.Server.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return server, nil
}

// GetServerIP returns the public IPv4 of the server.
func (c *RealClient) GetServerIP(ctx context.Context, name string) (string, error) {
	server, err := c.GetServerByName(ctx, name)
	if err != nil {
		return "", err
	}
	if server == nil {
		return "", fmt.Errorf("server not found: %s", name)
	}
	ip := server.PublicNet.IPv4.IP
	if ip == nil || ip.IsUnspecified() {
		return "", fmt.Errorf("server %s has no public IPv4", name)
	}
	return ip.String(), nil
}
