package hcloud

import (
	"context"
	"fmt"
	"reflect"

	"github.com/imamik/edgerun/internal/util/retry"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// CreateResult wraps a created resource and the actions to await.
type CreateResult[T any] struct {
	Resource T
	Action   *hcloud.Action
	Actions  []*hcloud.Action
}

// DeleteOperation deletes a named resource. It succeeds when the resource
// does not exist and retries while the resource is locked.
type DeleteOperation[T any] struct {
	Name         string
	ResourceType string

	Get    func(ctx context.Context, name string) (T, *hcloud.Response, error)
	Delete func(ctx context.Context, resource T) (*hcloud.Response, error)
}

// Execute runs the deletion within the client's delete timeout.
func (op *DeleteOperation[T]) Execute(ctx context.Context, client *RealClient) error {
	ctx, cancel := context.WithTimeout(ctx, client.timeouts.Delete)
	defer cancel()

	return retry.WithExponentialBackoff(ctx, func() error {
		resource, _, err := op.Get(ctx, op.Name)
		if err != nil {
			return retry.Fatal(fmt.Errorf("failed to get %s: %w", op.ResourceType, err))
		}
		if reflect.ValueOf(resource).IsNil() {
			return nil
		}

		if _, err := op.Delete(ctx, resource); err != nil {
			if isResourceLocked(err) || IsResourceInUse(err) {
				return err
			}
			return retry.Fatal(fmt.Errorf("failed to delete %s %s: %w", op.ResourceType, op.Name, err))
		}
		return nil
	},
		retry.WithMaxRetries(client.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(client.timeouts.RetryInitialDelay))
}

// EnsureOperation is get-or-create for a named resource. An existing
// resource is checked by Validate and brought in line by Update, both optional.
type EnsureOperation[T any, CreateOpts any, UpdateOpts any] struct {
	Name         string
	ResourceType string

	Get      func(ctx context.Context, name string) (T, *hcloud.Response, error)
	Create   func(ctx context.Context, opts CreateOpts) (*CreateResult[T], *hcloud.Response, error)
	Update   func(ctx context.Context, resource T, opts UpdateOpts) ([]*hcloud.Action, *hcloud.Response, error)
	Validate func(resource T) error

	CreateOptsMapper func() CreateOpts
	// UpdateOptsMapper is required when Update is set.
	UpdateOptsMapper func(resource T) UpdateOpts
}

// Execute returns the existing resource or creates it, waiting for its actions.
func (op *EnsureOperation[T, CreateOpts, UpdateOpts]) Execute(ctx context.Context, client *RealClient) (T, error) {
	resource, _, err := op.ExecuteCreated(ctx, client)
	return resource, err
}

// ExecuteCreated is Execute, also reporting whether the resource was created.
func (op *EnsureOperation[T, CreateOpts, UpdateOpts]) ExecuteCreated(ctx context.Context, client *RealClient) (T, bool, error) {
	var zero T

	resource, _, err := op.Get(ctx, op.Name)
	if err != nil {
		return zero, false, fmt.Errorf("failed to get %s: %w", op.ResourceType, err)
	}

	if !reflect.ValueOf(resource).IsNil() {
		if op.Validate != nil {
			if err := op.Validate(resource); err != nil {
				return zero, false, retry.Fatal(err)
			}
		}
		if op.Update != nil && op.UpdateOptsMapper != nil {
			actions, _, err := op.Update(ctx, resource, op.UpdateOptsMapper(resource))
			if err != nil {
				return zero, false, fmt.Errorf("failed to update %s: %w", op.ResourceType, err)
			}
			if err := waitForActions(ctx, client.client, actions...); err != nil {
				return zero, false, fmt.Errorf("failed to wait for %s update: %w", op.ResourceType, err)
			}
		}
		return resource, false, nil
	}

	result, _, err := op.Create(ctx, op.CreateOptsMapper())
	if err != nil {
		if isInvalidParameter(err) {
			err = retry.Fatal(err)
		}
		return zero, false, fmt.Errorf("failed to create %s: %w", op.ResourceType, err)
	}
	if err := waitForActionResult(ctx, client.client, result); err != nil {
		return zero, true, fmt.Errorf("failed to wait for %s creation: %w", op.ResourceType, err)
	}
	return result.Resource, true, nil
}

// waitForActions waits for actions to complete; none is a no-op.
func waitForActions(ctx context.Context, client *hcloud.Client, actions ...*hcloud.Action) error {
	if len(actions) == 0 {
		return nil
	}
	return client.Action.WaitFor(ctx, actions...)
}

// waitForActionResult waits for the singular Action, or else the Actions.
func waitForActionResult[T any](ctx context.Context, client *hcloud.Client, result *CreateResult[T]) error {
	if result.Action != nil {
		return client.Action.WaitFor(ctx, result.Action)
	}
	if len(result.Actions) > 0 {
		return client.Action.WaitFor(ctx, result.Actions...)
	}
	return nil
}
