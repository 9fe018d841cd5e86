package provisioning

import (
	"fmt"
	"path/filepath"

	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/state"
	"github.com/imamik/dropship/internal/topology"
	"github.com/imamik/dropship/internal/util/naming"
)

// DeployGroup applies role configuration to a bootstrapped group on its
// final switch. DHCP-addressed hosts are harvested from the instance's DHCP
// server first. It is a no-op once the group's deploy ledger is done.
func DeployGroup(ctx *Context, inst *topology.NetworkInstance, group topology.Group) error {
	c := ctx.WithObserver(ctx.Observer.WithFields(map[string]string{
		"instance": inst.Name,
		"group":    string(group),
	}))
	fail := func(err error) error {
		return &PhaseError{Phase: PhaseDeploy, Instance: inst.Name, Group: group, Host: hostOf(err), Err: err}
	}

	hosts := inst.Group(group)
	boot, err := state.Open(filepath.Join(c.Config.OutputDir, inst.Name, naming.BootstrapDir, naming.GroupLedger(string(group))))
	if err != nil {
		return fail(err)
	}
	if !boot.IsDone() {
		return fail(fmt.Errorf("%w: bootstrap of %s/%s", ErrPhaseOrder, inst.Name, group))
	}

	dir, err := c.ensureDir(inst.Name, naming.DeployDir)
	if err != nil {
		return fail(err)
	}
	path := filepath.Join(dir, naming.GroupLedger(string(group)))
	ledger, err := state.Open(path)
	if err != nil {
		return fail(err)
	}

	if ledger.IsDone() {
		applyLedger(ledger, hosts)
		LogPhaseSkipped(c.Observer, PhaseDeploy, ledger.Path())
		return nil
	}

	if !ledger.Exists() {
		// seed from bootstrap; bootstrap addresses are not final
		ledger = boot.Clone(path)
		for _, h := range hosts {
			if err := ledger.Add(h.Hostname); err != nil {
				return fail(err)
			}
			if err := ledger.SetIP(h.Hostname, ""); err != nil {
				return fail(err)
			}
		}
	}
	for _, h := range hosts {
		rec, _ := ledger.Get(h.Hostname)
		h.VMID = rec.VMID
		if rec.MAC != "" {
			h.SetMAC(rec.MAC)
		}
		h.ConnectIP = rec.IP

		if addr, ok := h.Addr(); ok {
			h.ConnectIP = addr.String()
			if err := ledger.SetIP(h.Hostname, h.ConnectIP); err != nil {
				return fail(err)
			}
		}
	}
	if err := ledger.Persist(); err != nil {
		return fail(err)
	}

	var pending []*topology.Host
	for _, h := range hosts {
		if h.UsesDHCP() && h.ConnectIP == "" {
			pending = append(pending, h)
		}
	}
	if len(pending) > 0 {
		if err := c.harvestDHCP(inst, dir, ledger, pending); err != nil {
			return fail(err)
		}
	}
	LogGroupState(c.Observer, PhaseDeploy, StateAddressResolved)

	builder := newInventoryBuilder(c, "", inst.Vars(), modules.TaskDeploy)
	for _, h := range hosts {
		h.Vars = deployVars(h)
		if err := builder.add(h); err != nil {
			return fail(err)
		}
	}
	name := fmt.Sprintf("%s_%s_deploy", inst.Name, group)
	if err := c.push(PhaseDeploy, name, dir, builder.build(), modules.TaskDeploy); err != nil {
		return fail(err)
	}
	LogGroupState(c.Observer, PhaseDeploy, StateConfigured)

	if err := ledger.Persist(); err != nil {
		return fail(err)
	}
	return markDone(c, PhaseDeploy, ledger, fail)
}

func deployVars(h *topology.Host) map[string]any {
	return map[string]any{
		"hostname":    h.Hostname,
		"ip":          h.ConnectIP,
		"target_dhcp": h.UsesDHCP(),
	}
}
