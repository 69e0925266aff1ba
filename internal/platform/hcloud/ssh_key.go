package hcloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// EnsureSSHKey uploads the public key under name. An existing key with the
// same name must carry the same public key.
func (c *RealClient) EnsureSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) (*hcloud.SSHKey, error) {
	return (&EnsureOperation[*hcloud.SSHKey, hcloud.SSHKeyCreateOpts, any]{
		Name:         name,
		ResourceType: "ssh key",
		Get:          c.client.SSHKey.Get,
		Create:       simpleCreate(c.client.SSHKey.Create),
		Validate: func(existing *hcloud.SSHKey) error {
			if !samePublicKey(existing.PublicKey, publicKey) {
				return fmt.Errorf("ssh key %q exists with a different public key (fingerprint %s)", name, existing.Fingerprint)
			}
			return nil
		},
		CreateOptsMapper: func() hcloud.SSHKeyCreateOpts {
			return hcloud.SSHKeyCreateOpts{
				Name:      name,
				PublicKey: publicKey,
				Labels:    labels,
			}
		},
	}).Execute(ctx, c)
}

// DeleteSSHKey deletes the SSH key with the given name.
func (c *RealClient) DeleteSSHKey(ctx context.Context, name string) error {
	return (&DeleteOperation[*hcloud.SSHKey]{
		Name:         name,
		ResourceType: "ssh key",
		Get:          c.client.SSHKey.Get,
		Delete:       c.client.SSHKey.Delete,
	}).Execute(ctx, c)
}

// samePublicKey compares key type and material, ignoring the comment.
func samePublicKey(a, b string) bool {
	fa, fb := strings.Fields(a), strings.Fields(b)
	if len(fa) < 2 || len(fb) < 2 {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return fa[0] == fb[0] && fa[1] == fb[1]
}

// simpleCreate adapts create calls that return the resource directly.
func simpleCreate[T any, Opts any](
	createFn func(context.Context, Opts) (T, *hcloud.Response, error),
) func(context.Context, Opts) (*CreateResult[T], *hcloud.Response, error) {
	return func(ctx context.Context, opts Opts) (*CreateResult[T], *hcloud.Response, error) {
		resource, resp, err := createFn(ctx, opts)
		if err != nil {
			return nil, resp, err
		}
		return &CreateResult[T]{Resource: resource}, resp, nil
	}
}
