package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/dropship/internal/addressing"
	"github.com/imamik/dropship/internal/topology"
	"github.com/imamik/dropship/internal/util/naming"
	"github.com/imamik/dropship/internal/util/retry"
)

// The helpers below wrap Provider calls with per-VM serialization, retries
// for idempotent operations, observer events and ProviderError wrapping.

func (c *Context) retryOpts() []retry.Option {
	opts := []retry.Option{}
	if c.Timeouts != nil {
		opts = append(opts,
			retry.WithMaxRetries(max(c.Timeouts.RetryMaxAttempts-1, 0)),
			retry.WithInitialDelay(c.Timeouts.RetryInitialDelay))
	}
	return opts
}

func (c *Context) cloneVM(phase string, h *topology.Host, prefix string) error {
	d, err := c.Modules.Get(h.Module)
	if err != nil {
		return err
	}
	image := c.Config.ImageRef(d.Image)
	name := naming.VMDisplayName(prefix, h.Hostname)

	// clones are not retried: a failed call may still have created a VM
	vmid, err := c.Provider.CloneVM(c, image, name)
	if err != nil {
		return &ProviderError{Op: "clone " + image, Host: h.Hostname, Err: err}
	}
	if vmid <= 0 {
		return &ProviderError{Op: "clone " + image, Host: h.Hostname, Err: errors.New("provider returned no vm id")}
	}
	h.VMID = vmid
	LogVM(c.Observer, EventVMCloned, phase, h.Hostname, vmid, fmt.Sprintf("cloned %s as %s", image, name))
	return nil
}

func (c *Context) setInterface(phase string, h *topology.Host, index int, switchID string) error {
	unlock := c.vmLocks().Lock(h.VMID)
	defer unlock()

	err := retry.WithExponentialBackoff(c, func() error {
		return c.Provider.SetInterface(c, h.VMID, index, switchID)
	}, c.retryOpts()...)
	if err != nil {
		return &ProviderError{Op: fmt.Sprintf("set interface %d to %s", index, switchID), VMID: h.VMID, Host: h.Hostname, Err: err}
	}
	LogVM(c.Observer, EventVMAttached, phase, h.Hostname, h.VMID, fmt.Sprintf("net%d -> %s", index, switchID))
	return nil
}

func (c *Context) readMAC(h *topology.Host, index int) (string, error) {
	var nic NIC
	err := retry.WithExponentialBackoff(c, func() error {
		var err error
		nic, err = c.Provider.GetInterface(c, h.VMID, index)
		return err
	}, c.retryOpts()...)
	if err != nil {
		return "", &ProviderError{Op: fmt.Sprintf("get interface %d", index), VMID: h.VMID, Host: h.Hostname, Err: err}
	}
	mac := addressing.NormalizeMAC(nic.MAC)
	if mac == "" {
		return "", &ProviderError{Op: fmt.Sprintf("get interface %d", index), VMID: h.VMID, Host: h.Hostname, Err: errors.New("no MAC address reported")}
	}
	return mac, nil
}

func (c *Context) startVM(phase string, h *topology.Host) error {
	unlock := c.vmLocks().Lock(h.VMID)
	defer unlock()

	err := retry.WithExponentialBackoff(c, func() error {
		return c.Provider.StartVM(c, h.VMID)
	}, c.retryOpts()...)
	if err != nil {
		return &ProviderError{Op: "start", VMID: h.VMID, Host: h.Hostname, Err: err}
	}
	LogVM(c.Observer, EventVMStarted, phase, h.Hostname, h.VMID, "started")
	return nil
}

func (c *Context) snapshotVM(phase string, h *topology.Host, label string) error {
	unlock := c.vmLocks().Lock(h.VMID)
	defer unlock()

	if err := c.Provider.SnapshotVM(c, h.VMID, label); err != nil {
		return &ProviderError{Op: "snapshot " + label, VMID: h.VMID, Host: h.Hostname, Err: err}
	}
	LogVM(c.Observer, EventVMSnapshot, phase, h.Hostname, h.VMID, "snapshot "+label)
	return nil
}

// waitTasks waits for outstanding hypervisor tasks. The wait is unbounded
// unless a provider task timeout is configured.
func (c *Context) waitTasks() error {
	ctx := context.Context(c)
	if c.Timeouts != nil && c.Timeouts.ProviderTasks > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c, c.Timeouts.ProviderTasks)
		defer cancel()
	}

	err := c.Provider.WaitForOutstandingTasks(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && c.Err() == nil {
		return &addressing.TimeoutError{Op: "wait for provider tasks", Attempts: 1}
	}
	return &ProviderError{Op: "wait for tasks", Err: err}
}

// resolveAddresses maps every host MAC to its DHCP address.
func (c *Context) resolveAddresses(phase string, hosts []*topology.Host) error {
	macs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		macs = append(macs, h.MAC())
	}

	found, err := c.Resolver.Resolve(c, macs)
	if err != nil {
		return err
	}
	for _, h := range hosts {
		ip, ok := found[strings.ToLower(h.MAC())]
		if !ok {
			return &addressing.TimeoutError{Op: "resolve addresses", Pending: []string{h.MAC()}}
		}
		h.ConnectIP = ip
		LogAddressResolved(c.Observer, phase, h.Hostname, h.MAC(), ip)
	}
	return nil
}
