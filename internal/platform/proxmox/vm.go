package proxmox

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/luthermonson/go-proxmox"

	"github.com/imamik/dropship/internal/provisioning"
)

type resource struct {
	VMID     int    `json:"vmid"`
	Name     string `json:"name"`
	Node     string `json:"node"`
	Template int    `json:"template"`
}

// templateID resolves an image reference: a numeric VM id, or the name of a
// template on the client's node.
func (c *Client) templateID(ctx context.Context, api *proxmox.Client, ref string) (int, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return id, nil
	}
	var resources []resource
	if err := api.Get(ctx, "/cluster/resources?type=vm", &resources); err != nil {
		return 0, fmt.Errorf("list templates: %w", err)
	}
	for _, r := range resources {
		if r.Template == 1 && r.Name == ref && r.Node == c.node {
			return r.VMID, nil
		}
	}
	return 0, fmt.Errorf("template %q not found on node %s", ref, c.node)
}

func nextID(ctx context.Context, api *proxmox.Client) (int, error) {
	// the API returns the id as a JSON string
	var raw string
	if err := api.Get(ctx, "/cluster/nextid", &raw); err != nil {
		return 0, fmt.Errorf("allocate vm id: %w", err)
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("allocate vm id: %q is not a number", raw)
	}
	return id, nil
}

// CloneVM clones a template. The clone task is tracked, not awaited.
func (c *Client) CloneVM(ctx context.Context, imageRef, displayName string) (int, error) {
	var newID int
	err := c.call(ctx, func(ctx context.Context, api *proxmox.Client) error {
		tmpl, err := c.templateID(ctx, api, imageRef)
		if err != nil {
			return err
		}
		id, err := nextID(ctx, api)
		if err != nil {
			return err
		}
		vm, err := c.virtualMachine(ctx, api, tmpl)
		if err != nil {
			return err
		}

		opts := &proxmox.VirtualMachineCloneOptions{NewID: id, Name: displayName, Pool: c.pool}
		if c.fullClone {
			opts.Full = 1
		}
		cloned, task, err := vm.Clone(ctx, opts)
		if err != nil {
			return fmt.Errorf("clone %d: %w", tmpl, err)
		}
		newID = cloned
		c.track(task)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newID, nil
}

// StartVM powers a VM on.
func (c *Client) StartVM(ctx context.Context, vmid int) error {
	return c.call(ctx, func(ctx context.Context, api *proxmox.Client) error {
		vm, err := c.virtualMachine(ctx, api, vmid)
		if err != nil {
			return err
		}
		task, err := vm.Start(ctx)
		if err != nil {
			return err
		}
		c.track(task)
		return nil
	})
}

// SnapshotVM snapshots a VM.
func (c *Client) SnapshotVM(ctx context.Context, vmid int, label string) error {
	return c.call(ctx, func(ctx context.Context, api *proxmox.Client) error {
		vm, err := c.virtualMachine(ctx, api, vmid)
		if err != nil {
			return err
		}
		task, err := vm.NewSnapshot(ctx, label)
		if err != nil {
			return err
		}
		c.track(task)
		return nil
	})
}

// netDevice reads the raw netN value of a VM.
func (c *Client) netDevice(ctx context.Context, api *proxmox.Client, vmid, index int) (string, bool, error) {
	var cfg map[string]any
	if err := api.Get(ctx, c.nodePath("/qemu/%d/config", vmid), &cfg); err != nil {
		return "", false, fmt.Errorf("vm %d: %w", vmid, err)
	}
	raw, ok := cfg[fmt.Sprintf("net%d", index)].(string)
	return raw, ok, nil
}

// GetInterface reports NIC index of a VM.
func (c *Client) GetInterface(ctx context.Context, vmid, index int) (provisioning.NIC, error) {
	var nic provisioning.NIC
	err := c.call(ctx, func(ctx context.Context, api *proxmox.Client) error {
		raw, ok, err := c.netDevice(ctx, api, vmid, index)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("vm %d has no net%d", vmid, index)
		}
		nic = ParseNetDevice(raw).NIC()
		return nil
	})
	return nic, err
}

// SetInterface attaches NIC index to a bridge, keeping its model and MAC.
// A missing NIC is created as virtio.
func (c *Client) SetInterface(ctx context.Context, vmid, index int, switchID string) error {
	return c.call(ctx, func(ctx context.Context, api *proxmox.Client) error {
		vm, err := c.virtualMachine(ctx, api, vmid)
		if err != nil {
			return err
		}
		raw, ok, err := c.netDevice(ctx, api, vmid, index)
		if err != nil {
			return err
		}
		dev := NetDevice{Model: "virtio"}
		if ok {
			dev = ParseNetDevice(raw)
		}
		dev.Set("bridge", switchID)

		task, err := vm.Config(ctx, proxmox.VirtualMachineOption{
			Name:  fmt.Sprintf("net%d", index),
			Value: dev.String(),
		})
		if err != nil {
			return err
		}
		c.track(task)
		return nil
	})
}

// NetDevice is a netN value such as "virtio=52:54:00:12:34:56,bridge=vmbr0".
type NetDevice struct {
	Model string
	MAC   string
	opts  [][2]string
}

// ParseNetDevice parses a netN value.
func ParseNetDevice(raw string) NetDevice {
	var dev NetDevice
	for i, part := range strings.Split(raw, ",") {
		k, v, _ := strings.Cut(part, "=")
		if i == 0 {
			dev.Model, dev.MAC = k, v
			continue
		}
		dev.opts = append(dev.opts, [2]string{k, v})
	}
	return dev
}

// Get returns an option value.
func (d NetDevice) Get(key string) string {
	for _, o := range d.opts {
		if o[0] == key {
			return o[1]
		}
	}
	return ""
}

// Set replaces or appends an option.
func (d *NetDevice) Set(key, value string) {
	for i, o := range d.opts {
		if o[0] == key {
			d.opts[i][1] = value
			return
		}
	}
	d.opts = append(d.opts, [2]string{key, value})
}

func (d NetDevice) String() string {
	parts := []string{d.Model}
	if d.MAC != "" {
		parts[0] += "=" + d.MAC
	}
	for _, o := range d.opts {
		parts = append(parts, o[0]+"="+o[1])
	}
	return strings.Join(parts, ",")
}

// NIC converts the device to the provisioning view.
func (d NetDevice) NIC() provisioning.NIC {
	return provisioning.NIC{MAC: strings.ToLower(d.MAC), SwitchID: d.Get("bridge")}
}
