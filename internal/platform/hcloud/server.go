package hcloud

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/dropship/internal/util/retry"
)

// imageFor maps an image reference to an image: numeric references are
// snapshot or image ids, anything else an image name.
func imageFor(ref string) *hcloud.Image {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return &hcloud.Image{ID: id}
	}
	return &hcloud.Image{Name: ref}
}

func (p *Provider) resolveSSHKeys(ctx context.Context) ([]*hcloud.SSHKey, error) {
	keys := make([]*hcloud.SSHKey, 0, len(p.cfg.SSHKeys))
	for _, name := range p.cfg.SSHKeys {
		key, _, err := p.client.SSHKey.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get ssh key %s: %w", name, err)
		}
		if key == nil {
			return nil, fmt.Errorf("ssh key not found: %s", name)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// CloneVM creates a stopped server from an image. The server id is the VM id.
func (p *Provider) CloneVM(ctx context.Context, imageRef, displayName string) (int, error) {
	keys, err := p.resolveSSHKeys(ctx)
	if err != nil {
		return 0, err
	}
	opts := hcloud.ServerCreateOpts{
		Name:             displayName,
		ServerType:       &hcloud.ServerType{Name: p.cfg.ServerType},
		Image:            imageFor(imageRef),
		SSHKeys:          keys,
		Labels:           p.labels(nil),
		StartAfterCreate: hcloud.Ptr(false),
	}
	if p.cfg.Location != "" {
		opts.Location = &hcloud.Location{Name: p.cfg.Location}
	}

	// a failed create is not retried: the server may exist regardless
	result, _, err := p.client.Server.Create(ctx, opts)
	if err != nil {
		if isInvalidParameter(err) {
			return 0, retry.Fatal(fmt.Errorf("failed to create server %s: %w", displayName, err))
		}
		return 0, fmt.Errorf("failed to create server %s: %w", displayName, err)
	}
	p.track(result.Action)
	p.track(result.NextActions...)
	return int(result.Server.ID), nil
}

// StartVM powers a server on.
func (p *Provider) StartVM(ctx context.Context, vmid int) error {
	return p.withRetry(ctx, func() error {
		action, _, err := p.client.Server.Poweron(ctx, &hcloud.Server{ID: int64(vmid)})
		if err != nil {
			return fmt.Errorf("failed to power on server %d: %w", vmid, err)
		}
		p.track(action)
		return nil
	})
}

// SnapshotVM creates a snapshot image described by label.
func (p *Provider) SnapshotVM(ctx context.Context, vmid int, label string) error {
	result, _, err := p.client.Server.CreateImage(ctx, &hcloud.Server{ID: int64(vmid)}, &hcloud.ServerCreateImageOpts{
		Type:        hcloud.ImageTypeSnapshot,
		Description: hcloud.Ptr(label),
		Labels:      p.labels(map[string]string{"dropship.snapshot": label}),
	})
	if err != nil {
		return fmt.Errorf("failed to snapshot server %d: %w", vmid, err)
	}
	p.track(result.Action)
	return nil
}

func (p *Provider) server(ctx context.Context, vmid int) (*hcloud.Server, error) {
	server, _, err := p.client.Server.GetByID(ctx, int64(vmid))
	if err != nil {
		return nil, fmt.Errorf("failed to get server %d: %w", vmid, err)
	}
	if server == nil {
		return nil, retry.Fatal(fmt.Errorf("server not found: %d", vmid))
	}
	return server, nil
}
