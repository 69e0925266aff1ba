package hcloud

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/imamik/edgerun/internal/util/retry"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// CleanupByLabel deletes every server, firewall and SSH key matching the
// label selector, in that order. It keeps going after a failure and
// returns all failures joined.
func (c *RealClient) CleanupByLabel(ctx context.Context, labelSelector map[string]string) error {
	selector := buildLabelSelector(labelSelector)
	log.Printf("[Cleanup] Deleting resources matching %s", selector)

	var errs []error
	if err := c.deleteServersByLabel(ctx, selector); err != nil {
		errs = append(errs, fmt.Errorf("servers: %w", err))
	}
	if err := deleteResourcesByLabel(ctx, "firewall",
		func(ctx context.Context) ([]*hcloud.Firewall, error) {
			return c.client.Firewall.AllWithOpts(ctx, hcloud.FirewallListOpts{
				ListOpts: hcloud.ListOpts{LabelSelector: selector},
			})
		},
		func(ctx context.Context, fw *hcloud.Firewall) error {
			return c.DeleteFirewall(ctx, fw.Name)
		},
	); err != nil {
		errs = append(errs, fmt.Errorf("firewalls: %w", err))
	}
	if err := deleteResourcesByLabel(ctx, "ssh key",
		func(ctx context.Context) ([]*hcloud.SSHKey, error) {
			return c.client.SSHKey.AllWithOpts(ctx, hcloud.SSHKeyListOpts{
				ListOpts: hcloud.ListOpts{LabelSelector: selector},
			})
		},
		func(ctx context.Context, k *hcloud.SSHKey) error {
			_, err := c.client.SSHKey.Delete(ctx, k)
			return err
		},
	); err != nil {
		errs = append(errs, fmt.Errorf("ssh keys: %w", err))
	}

	if len(errs) > 0 {
		log.Printf("[Cleanup] Completed with %d errors", len(errs))
		return errors.Join(errs...)
	}
	log.Printf("[Cleanup] Complete")
	return nil
}

type named interface {
	*hcloud.Server | *hcloud.Firewall | *hcloud.SSHKey
}

func resourceName[T named](r T) string {
	switch v := any(r).(type) {
	case *hcloud.Server:
		return v.Name
	case *hcloud.Firewall:
		return v.Name
	case *hcloud.SSHKey:
		return v.Name
	default:
		return ""
	}
}

func deleteResourcesByLabel[T named](
	ctx context.Context,
	resourceType string,
	listFn func(context.Context) ([]T, error),
	deleteFn func(context.Context, T) error,
) error {
	resources, err := listFn(ctx)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", resourceType, err)
	}

	var errs []error
	for _, r := range resources {
		name := resourceName(r)
		log.Printf("[Cleanup] Deleting %s %s", resourceType, name)
		if err := deleteFn(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", resourceType, name, err))
		}
	}
	return errors.Join(errs...)
}

// deleteServersByLabel deletes the servers and waits until none is listed,
// so that firewalls are no longer in use afterwards.
func (c *RealClient) deleteServersByLabel(ctx context.Context, selector string) error {
	list := func(ctx context.Context) ([]*hcloud.Server, error) {
		return c.client.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
			ListOpts: hcloud.ListOpts{LabelSelector: selector},
		})
	}
	err := deleteResourcesByLabel(ctx, "server", list, func(ctx context.Context, s *hcloud.Server) error {
		_, _, err := c.client.Server.DeleteWithResult(ctx, s)
		return err
	})
	if err != nil {
		return err
	}

	_, err = retry.Poll(ctx, retry.PollConfig{
		Operation:   "server deletion",
		MaxWait:     c.timeouts.Delete,
		Interval:    2 * time.Second,
		Multiplier:  1.5,
		MaxInterval: 10 * time.Second,
	}, func(ctx context.Context, _ int) (bool, error) {
		remaining, err := list(ctx)
		if err != nil {
			return false, err
		}
		return len(remaining) == 0, nil
	})
	return err
}

// buildLabelSelector converts labels to a selector string with stable ordering.
func buildLabelSelector(labels map[string]string) string {
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
