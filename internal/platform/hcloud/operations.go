package hcloud

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// CreateResult wraps the result of a resource creation operation.
type CreateResult[T any] struct {
	Resource T
	Actions  []*hcloud.Action
}

// EnsureOperation encapsulates get-or-create logic for an hcloud resource.
//
//	network, err := (&EnsureOperation[*hcloud.Network, hcloud.NetworkCreateOpts]{
//	    Name:         "vmbr10",
//	    ResourceType: "network",
//	    Get:          p.client.Network.Get,
//	    Create:       simpleCreate(p.client.Network.Create),
//	    CreateOptsMapper: func() hcloud.NetworkCreateOpts { ... },
//	}).Execute(ctx, p)
type EnsureOperation[T any, CreateOpts any] struct {
	Name         string
	ResourceType string

	// Get retrieves the resource by name
	Get func(ctx context.Context, name string) (T, *hcloud.Response, error)

	// Create creates the resource with the given options
	Create func(ctx context.Context, opts CreateOpts) (*CreateResult[T], *hcloud.Response, error)

	// Validate checks if an existing resource matches desired state (optional)
	Validate func(resource T) error

	// CreateOptsMapper builds the create options
	CreateOptsMapper func() CreateOpts
}

// Execute returns the existing resource or creates it and waits for the
// creation actions.
func (op *EnsureOperation[T, CreateOpts]) Execute(ctx context.Context, p *Provider) (T, error) {
	var zero T

	resource, _, err := op.Get(ctx, op.Name)
	if err != nil {
		return zero, fmt.Errorf("failed to get %s: %w", op.ResourceType, err)
	}
	if !reflect.ValueOf(resource).IsNil() {
		if op.Validate != nil {
			if err := op.Validate(resource); err != nil {
				return zero, err
			}
		}
		return resource, nil
	}

	result, _, err := op.Create(ctx, op.CreateOptsMapper())
	if err != nil {
		return zero, fmt.Errorf("failed to create %s: %w", op.ResourceType, err)
	}
	if len(result.Actions) > 0 {
		if err := p.client.Action.WaitFor(ctx, result.Actions...); err != nil {
			return zero, fmt.Errorf("failed to wait for %s creation: %w", op.ResourceType, err)
		}
	}
	return result.Resource, nil
}

// simpleCreate wraps create functions returning the resource directly.
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
