package proxmox

import (
	"context"
	"fmt"

	"github.com/luthermonson/go-proxmox"
)

type iface struct {
	Iface string `json:"iface"`
	Type  string `json:"type"`
}

// CreateSwitch ensures a Linux bridge exists on the node and applies the
// pending network configuration when one was created.
func (c *Client) CreateSwitch(ctx context.Context, switchID string) error {
	return c.call(ctx, func(ctx context.Context, api *proxmox.Client) error {
		var ifaces []iface
		if err := api.Get(ctx, c.nodePath("/network?type=any_bridge"), &ifaces); err != nil {
			return fmt.Errorf("list bridges: %w", err)
		}
		for _, i := range ifaces {
			if i.Iface == switchID {
				return nil
			}
		}

		bridge := map[string]any{"iface": switchID, "type": "bridge", "autostart": 1}
		if err := api.Post(ctx, c.nodePath("/network"), bridge, nil); err != nil {
			return fmt.Errorf("create bridge %s: %w", switchID, err)
		}
		var upid proxmox.UPID
		if err := api.Put(ctx, c.nodePath("/network"), nil, &upid); err != nil {
			return fmt.Errorf("apply network config: %w", err)
		}
		c.track(proxmox.NewTask(upid, api))
		return nil
	})
}
