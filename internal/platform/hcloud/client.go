package hcloud

import (
	"context"
	"fmt"
	"sync"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/util/retry"
)

const (
	// labelManagedBy marks every resource created by dropship.
	labelManagedBy = "managed-by"
	managedByValue = "dropship"

	// labelNetPrefix records the network of interface N as "dropship.netN".
	labelNetPrefix = "dropship.net"

	defaultNetworkRange = "10.0.0.0/8"
	defaultNetworkZone  = "eu-central"
)

// Provider implements provisioning.Provider on Hetzner Cloud.
type Provider struct {
	client   *hcloud.Client
	cfg      config.HCloudConfig
	timeouts *config.Timeouts

	mu      sync.Mutex
	actions []*hcloud.Action
}

// Option configures a Provider.
type Option func(*Provider)

// WithTimeouts sets custom timeouts for the provider.
func WithTimeouts(t *config.Timeouts) Option {
	return func(p *Provider) { p.timeouts = t }
}

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) Option {
	return func(p *Provider) { p.client = hc }
}

// NewProvider creates a provider for cfg.
func NewProvider(cfg config.HCloudConfig, opts ...Option) (*Provider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: hcloud token is required", config.ErrInvalid)
	}
	if cfg.ServerType == "" {
		return nil, fmt.Errorf("%w: hcloud server type is required", config.ErrInvalid)
	}
	p := &Provider{
		client:   hcloud.NewClient(hcloud.WithToken(cfg.Token), hcloud.WithApplication("dropship", "")),
		cfg:      cfg,
		timeouts: config.LoadTimeouts(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// HCloudClient returns the underlying hcloud.Client.
func (p *Provider) HCloudClient() *hcloud.Client {
	return p.client
}

func (p *Provider) track(actions ...*hcloud.Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range actions {
		if a != nil {
			p.actions = append(p.actions, a)
		}
	}
}

// WaitForOutstandingTasks waits for every recorded action.
func (p *Provider) WaitForOutstandingTasks(ctx context.Context) error {
	p.mu.Lock()
	actions := p.actions
	p.actions = nil
	p.mu.Unlock()

	if len(actions) == 0 {
		return nil
	}
	if err := p.client.Action.WaitFor(ctx, actions...); err != nil {
		return fmt.Errorf("wait for %d actions: %w", len(actions), err)
	}
	return nil
}

// labels returns the configured labels plus the managed-by marker.
func (p *Provider) labels(extra map[string]string) map[string]string {
	out := map[string]string{labelManagedBy: managedByValue}
	for k, v := range p.cfg.Labels {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// withRetry retries locked-resource errors and gives up on invalid input.
func (p *Provider) withRetry(ctx context.Context, op func() error) error {
	return retry.WithExponentialBackoff(ctx, func() error {
		err := op()
		if err != nil && !isResourceLocked(err) {
			return retry.Fatal(err)
		}
		return err
	},
		retry.WithMaxRetries(p.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(p.timeouts.RetryInitialDelay))
}
