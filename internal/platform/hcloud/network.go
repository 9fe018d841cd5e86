package hcloud

import (
	"context"
	"fmt"
	"maps"
	"net"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/dropship/internal/provisioning"
)

func netLabel(index int) string {
	return fmt.Sprintf("%s%d", labelNetPrefix, index)
}

// CreateSwitch ensures a private network named switchID exists.
func (p *Provider) CreateSwitch(ctx context.Context, switchID string) error {
	_, err := p.ensureNetwork(ctx, switchID)
	return err
}

func (p *Provider) ensureNetwork(ctx context.Context, name string) (*hcloud.Network, error) {
	zone := p.cfg.NetworkZone
	if zone == "" {
		zone = defaultNetworkZone
	}
	return (&EnsureOperation[*hcloud.Network, hcloud.NetworkCreateOpts]{
		Name:         name,
		ResourceType: "network",
		Get:          p.client.Network.Get,
		Create:       simpleCreate(p.client.Network.Create),
		CreateOptsMapper: func() hcloud.NetworkCreateOpts {
			_, ipNet, _ := net.ParseCIDR(defaultNetworkRange)
			return hcloud.NetworkCreateOpts{
				Name:    name,
				IPRange: ipNet,
				Subnets: []hcloud.NetworkSubnet{{
					Type:        hcloud.NetworkSubnetTypeCloud,
					IPRange:     ipNet,
					NetworkZone: hcloud.NetworkZone(zone),
				}},
				Labels: p.labels(nil),
			}
		},
	}).Execute(ctx, p)
}

func (p *Provider) network(ctx context.Context, name string) (*hcloud.Network, error) {
	network, _, err := p.client.Network.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get network %s: %w", name, err)
	}
	if network == nil {
		return nil, fmt.Errorf("network not found: %s", name)
	}
	return network, nil
}

func attachedTo(server *hcloud.Server, network *hcloud.Network) (hcloud.ServerPrivateNet, bool) {
	for _, pn := range server.PrivateNet {
		if pn.Network != nil && pn.Network.ID == network.ID {
			return pn, true
		}
	}
	return hcloud.ServerPrivateNet{}, false
}

// SetInterface points interface index at the network switchID. The previous
// network is detached unless another interface still uses it.
func (p *Provider) SetInterface(ctx context.Context, vmid, index int, switchID string) error {
	server, err := p.server(ctx, vmid)
	if err != nil {
		return err
	}
	key := netLabel(index)
	previous := server.Labels[key]

	target, err := p.network(ctx, switchID)
	if err != nil {
		return err
	}

	if previous != "" && previous != switchID && !usedElsewhere(server.Labels, key, previous) {
		old, err := p.network(ctx, previous)
		if err != nil {
			return err
		}
		if _, ok := attachedTo(server, old); ok {
			err := p.withRetry(ctx, func() error {
				action, _, err := p.client.Server.DetachFromNetwork(ctx, server, hcloud.ServerDetachFromNetworkOpts{Network: old})
				if err != nil {
					return err
				}
				return p.client.Action.WaitFor(ctx, action)
			})
			if err != nil {
				return fmt.Errorf("failed to detach server %d from %s: %w", vmid, previous, err)
			}
		}
	}

	if _, ok := attachedTo(server, target); !ok {
		err := p.withRetry(ctx, func() error {
			action, _, err := p.client.Server.AttachToNetwork(ctx, server, hcloud.ServerAttachToNetworkOpts{Network: target})
			if err != nil {
				return err
			}
			return p.client.Action.WaitFor(ctx, action)
		})
		if err != nil {
			return fmt.Errorf("failed to attach server %d to %s: %w", vmid, switchID, err)
		}
	}

	labels := maps.Clone(server.Labels)
	if labels == nil {
		labels = map[string]string{}
	}
	labels[key] = switchID
	if _, _, err := p.client.Server.Update(ctx, server, hcloud.ServerUpdateOpts{Labels: labels}); err != nil {
		return fmt.Errorf("failed to label server %d: %w", vmid, err)
	}
	return nil
}

func usedElsewhere(labels map[string]string, key, network string) bool {
	for k, v := range labels {
		if k != key && strings.HasPrefix(k, labelNetPrefix) && v == network {
			return true
		}
	}
	return false
}

// GetInterface reports the network and MAC of interface index.
func (p *Provider) GetInterface(ctx context.Context, vmid, index int) (provisioning.NIC, error) {
	server, err := p.server(ctx, vmid)
	if err != nil {
		return provisioning.NIC{}, err
	}
	name := server.Labels[netLabel(index)]
	if name == "" {
		return provisioning.NIC{}, fmt.Errorf("server %d interface %d: %w", vmid, index, ErrNoInterface)
	}
	network, err := p.network(ctx, name)
	if err != nil {
		return provisioning.NIC{}, err
	}
	pn, ok := attachedTo(server, network)
	if !ok {
		return provisioning.NIC{}, fmt.Errorf("server %d interface %d (%s): %w", vmid, index, name, ErrNoInterface)
	}
	return provisioning.NIC{MAC: strings.ToLower(pn.MACAddress), SwitchID: name}, nil
}
