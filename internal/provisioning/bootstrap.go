package provisioning

import (
	"fmt"
	"path/filepath"

	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/state"
	"github.com/imamik/dropship/internal/topology"
	"github.com/imamik/dropship/internal/util/naming"
)

// Phase names.
const (
	PhaseRouters   = "routers"
	PhaseBootstrap = "bootstrap"
	PhaseDeploy    = "deploy"
	PhasePost      = "post"
)

// BootstrapGroup runs the bootstrap state machine for one group of an
// instance. It is a no-op once the group's ledger is done.
func BootstrapGroup(ctx *Context, inst *topology.NetworkInstance, group topology.Group) error {
	c := ctx.WithObserver(ctx.Observer.WithFields(map[string]string{
		"instance": inst.Name,
		"group":    string(group),
	}))
	fail := func(err error) error {
		return &PhaseError{Phase: PhaseBootstrap, Instance: inst.Name, Group: group, Host: hostOf(err), Err: err}
	}

	hosts := inst.Group(group)
	dir, err := c.ensureDir(inst.Name, naming.BootstrapDir)
	if err != nil {
		return fail(err)
	}
	ledger, err := state.Open(filepath.Join(dir, naming.GroupLedger(string(group))))
	if err != nil {
		return fail(err)
	}

	if ledger.IsDone() {
		applyLedger(ledger, hosts)
		LogPhaseSkipped(c.Observer, PhaseBootstrap, ledger.Path())
		return nil
	}
	if len(hosts) == 0 {
		if err := ledger.Persist(); err != nil {
			return fail(err)
		}
		return markDone(c, PhaseBootstrap, ledger, fail)
	}

	s, err := resumeState(ledger, hosts)
	if err != nil {
		return fail(err)
	}
	if s != StateNotStarted {
		c.Observer.Printf("[%s] resuming %s/%s at %s", PhaseBootstrap, inst.Name, group, s)
	}

	if s == StateNotStarted {
		if err := c.cloneGroup(PhaseBootstrap, ledger, hosts, inst.Prefix); err != nil {
			return fail(err)
		}
		if err := c.attachAndStart(PhaseBootstrap, ledger, hosts); err != nil {
			return fail(err)
		}
		s = StateNetworkAttached
	}

	if s == StateNetworkAttached {
		if err := c.resolveGroup(PhaseBootstrap, ledger, hosts); err != nil {
			return fail(err)
		}
	}

	builder := newInventoryBuilder(c, "", inst.Vars(), modules.TaskBootstrap, modules.TaskReboot)
	for _, h := range hosts {
		d, err := c.Modules.Get(h.Module)
		if err != nil {
			return fail(err)
		}
		h.Vars = bootstrapVars(h, inst, d)
		if err := builder.add(h); err != nil {
			return fail(err)
		}
	}
	name := fmt.Sprintf("%s_%s_bootstrap", inst.Name, group)
	if err := c.push(PhaseBootstrap, name, dir, builder.build(), modules.TaskBootstrap, modules.TaskReboot); err != nil {
		return fail(err)
	}
	LogGroupState(c.Observer, PhaseBootstrap, StateConfigured)

	for _, h := range hosts {
		if err := c.setInterface(PhaseBootstrap, h, 0, inst.SwitchID); err != nil {
			return fail(err)
		}
	}
	LogGroupState(c.Observer, PhaseBootstrap, StateRewired)

	if err := c.snapshotGroup(PhaseBootstrap, hosts); err != nil {
		return fail(err)
	}

	return markDone(c, PhaseBootstrap, ledger, fail)
}

func markDone(c *Context, phase string, l *state.Ledger, fail func(error) error) error {
	if err := l.MarkDone(); err != nil {
		return fail(err)
	}
	LogGroupState(c.Observer, phase, StateDone)
	return nil
}

// bootstrapVars returns the per-host variables of the bootstrap task set.
func bootstrapVars(h *topology.Host, inst *topology.NetworkInstance, d *modules.Descriptor) map[string]any {
	vars := map[string]any{"hostname": h.Hostname}
	for k, v := range h.Vars {
		if _, set := vars[k]; !set {
			vars[k] = v
		}
	}

	iface := map[string]any{"iface": d.InterfaceName(0)}
	addr, static := h.Addr()
	if static {
		vars["target_ip"] = addr.String()
		vars["target_dhcp"] = false
		iface["addr"] = addr.String()
		iface["prefix"] = inst.Range.Bits()
		iface["netmask"] = topology.Netmask(inst.Range)
		iface["gateway"] = inst.Gateway().String()
		iface["dhcp"] = false
	} else {
		vars["target_ip"] = ""
		vars["target_dhcp"] = true
		iface["dhcp"] = true
	}
	vars["interfaces"] = []map[string]any{iface}
	return vars
}
