package provisioning

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imamik/dropship/internal/state"
	"github.com/imamik/dropship/internal/topology"
)

// ensureDir creates a directory under the output root.
func (c *Context) ensureDir(parts ...string) (string, error) {
	dir := filepath.Join(append([]string{c.Config.OutputDir}, parts...)...)
	rel, err := filepath.Rel(c.Config.OutputDir, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes output directory", dir)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// applyLedger copies recorded vmids, MACs and addresses onto hosts.
// Hosts without a record are left untouched.
func applyLedger(l *state.Ledger, hosts []*topology.Host) {
	for _, h := range hosts {
		rec, ok := l.Get(h.Hostname)
		if !ok {
			continue
		}
		h.VMID = rec.VMID
		if rec.MAC != "" {
			h.SetMAC(rec.MAC)
		}
		if rec.IP != "" {
			h.ConnectIP = rec.IP
		}
	}
}

// resumeState decides where an unfinished group resumes. A ledger that
// exists but lacks a vmid or MAC for any host cannot be resumed safely.
func resumeState(l *state.Ledger, hosts []*topology.Host) (GroupState, error) {
	if !l.Exists() {
		return StateNotStarted, nil
	}

	missingIP := false
	for _, h := range hosts {
		rec, ok := l.Get(h.Hostname)
		if !ok || rec.VMID == 0 || rec.MAC == "" {
			return StateNotStarted, fmt.Errorf("%w: %s: host %s has no vmid or MAC; remove its VMs and the ledger to retry",
				ErrIncompleteLedger, l.Path(), h.Hostname)
		}
		if rec.IP == "" {
			missingIP = true
		}
	}
	applyLedger(l, hosts)

	if missingIP {
		return StateNetworkAttached, nil
	}
	return StateAddressResolved, nil
}

// cloneGroup clones every host, persisting after each clone.
func (c *Context) cloneGroup(phase string, l *state.Ledger, hosts []*topology.Host, prefix string) error {
	LogGroupState(c.Observer, phase, StateCloning)
	for _, h := range hosts {
		if err := l.Add(h.Hostname); err != nil {
			return err
		}
	}
	for i, h := range hosts {
		if err := c.cloneVM(phase, h, prefix); err != nil {
			return err
		}
		if err := l.SetVMID(h.Hostname, h.VMID); err != nil {
			return err
		}
		if err := l.Persist(); err != nil {
			return err
		}
		c.Observer.Progress(phase, i+1, len(hosts))
	}
	return nil
}

// attachAndStart waits for the clones, attaches NIC 0 (and any extra NICs)
// to the bootstrap switch, records MACs and then starts every VM.
func (c *Context) attachAndStart(phase string, l *state.Ledger, hosts []*topology.Host, extra ...int) error {
	if err := c.waitTasks(); err != nil {
		return err
	}

	bootstrap := c.Config.Bootstrap.Switch
	for _, h := range hosts {
		if err := c.setInterface(phase, h, 0, bootstrap); err != nil {
			return err
		}
		mac, err := c.readMAC(h, 0)
		if err != nil {
			return err
		}
		h.SetMAC(mac)
		if err := l.SetMAC(h.Hostname, mac); err != nil {
			return err
		}
		for _, idx := range extra {
			if err := c.setInterface(phase, h, idx, bootstrap); err != nil {
				return err
			}
		}
	}
	if err := l.Persist(); err != nil {
		return err
	}

	for _, h := range hosts {
		if err := c.startVM(phase, h); err != nil {
			return err
		}
	}
	LogGroupState(c.Observer, phase, StateNetworkAttached)
	return nil
}

// resolveGroup resolves the DHCP address of every host and records it.
func (c *Context) resolveGroup(phase string, l *state.Ledger, hosts []*topology.Host) error {
	if err := c.resolveAddresses(phase, hosts); err != nil {
		return err
	}
	for _, h := range hosts {
		if err := l.SetIP(h.Hostname, h.ConnectIP); err != nil {
			return err
		}
	}
	if err := l.Persist(); err != nil {
		return err
	}
	LogGroupState(c.Observer, phase, StateAddressResolved)
	return nil
}

// snapshotGroup snapshots every host when a snapshot label is configured.
func (c *Context) snapshotGroup(phase string, hosts []*topology.Host) error {
	label := c.Config.SnapshotLabel
	if label == "" {
		return nil
	}
	for _, h := range hosts {
		if err := c.snapshotVM(phase, h, label); err != nil {
			return err
		}
	}
	return c.waitTasks()
}
