package provisioning

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/state"
	"github.com/imamik/dropship/internal/topology"
	"github.com/imamik/dropship/internal/util/naming"
)

// ValidatePost checks the post targets of an instance without side effects.
func ValidatePost(reg *modules.Registry, inst *topology.NetworkInstance) error {
	for _, t := range inst.PostTargets {
		if _, ok := inst.Host(t.Hostname); !ok {
			return configErr("post target %s of %s: no such host", t.Hostname, inst.Name)
		}
		d, err := reg.Get(t.Module)
		if err != nil {
			return configErr("post target %s of %s: %v", t.Hostname, inst.Name, err)
		}
		if d.Role != topology.RolePost {
			return configErr("module %s has role %s, not %s", d.Name, d.Role, topology.RolePost)
		}
		for _, v := range d.RequiredVars {
			if _, ok := t.Vars[v]; !ok {
				return configErr("post module %s on %s requires variable %s", d.Name, t.Hostname, v)
			}
		}
	}
	return nil
}

// RunPost applies the post modules of an instance. It is a no-op once the
// instance's post ledger is done.
func RunPost(ctx *Context, inst *topology.NetworkInstance) error {
	c := ctx.WithObserver(ctx.Observer.WithFields(map[string]string{"instance": inst.Name}))
	fail := func(err error) error {
		return &PhaseError{Phase: PhasePost, Instance: inst.Name, Host: hostOf(err), Err: err}
	}

	if err := ValidatePost(c.Modules, inst); err != nil {
		return fail(err)
	}

	deployDir := filepath.Join(c.Config.OutputDir, inst.Name, naming.DeployDir)
	deployed := make(map[topology.Group]*state.Ledger, 2)
	for _, g := range []topology.Group{topology.GroupServices, topology.GroupClients} {
		l, err := state.Open(filepath.Join(deployDir, naming.GroupLedger(string(g))))
		if err != nil {
			return fail(err)
		}
		if !l.IsDone() {
			return fail(fmt.Errorf("%w: deploy of %s/%s", ErrPhaseOrder, inst.Name, g))
		}
		deployed[g] = l
	}

	dir, err := c.ensureDir(inst.Name, naming.PostDir)
	if err != nil {
		return fail(err)
	}
	path := filepath.Join(dir, naming.PostLedger)
	ledger, err := state.Open(path)
	if err != nil {
		return fail(err)
	}
	if ledger.IsDone() {
		LogPhaseSkipped(c.Observer, PhasePost, ledger.Path())
		return nil
	}

	ledger = deployed[topology.GroupServices].Clone(path)
	for _, rec := range deployed[topology.GroupClients].Records() {
		if err := ledger.Add(rec.Hostname); err != nil {
			return fail(err)
		}
		if err := ledger.SetVMID(rec.Hostname, rec.VMID); err != nil {
			return fail(err)
		}
		if err := ledger.SetMAC(rec.Hostname, rec.MAC); err != nil {
			return fail(err)
		}
		if err := ledger.SetIP(rec.Hostname, rec.IP); err != nil {
			return fail(err)
		}
	}
	if err := ledger.Persist(); err != nil {
		return fail(err)
	}

	if len(inst.PostTargets) == 0 {
		return markDone(c, PhasePost, ledger, fail)
	}

	var hooked []string
	for _, t := range inst.PostTargets {
		d, err := c.Modules.Get(t.Module)
		if err != nil {
			return fail(err)
		}
		if d.Hook == nil || slices.Contains(hooked, d.Name) {
			continue
		}
		hooked = append(hooked, d.Name)
		c.Observer.Printf("[%s] running pre-post hook of %s", PhasePost, d.Name)
		if err := d.Hook.BeforePost(c, d, modules.StageDir(c.Config.OutputDir, d)); err != nil {
			return fail(fmt.Errorf("pre-post hook of %s: %w", d.Name, err))
		}
	}

	builder := newInventoryBuilder(c, "", inst.Vars(), modules.TaskPost)
	for _, t := range inst.PostTargets {
		addr := ledger.IP(t.Hostname)
		if addr == "" {
			return fail(fmt.Errorf("post target %s has no recorded address", t.Hostname))
		}
		vars := map[string]any{"hostname": t.Hostname}
		for k, v := range t.Vars {
			vars[k] = v
		}
		// the same host may appear under several post modules
		alias := naming.InventoryGroup("", t.Module) + "_" + t.Hostname
		if err := builder.addAs(t.Module, alias, addr, vars); err != nil {
			return fail(err)
		}
	}
	name := fmt.Sprintf("%s_post", inst.Name)
	if err := c.push(PhasePost, name, dir, builder.build(), modules.TaskPost); err != nil {
		return fail(err)
	}
	LogGroupState(c.Observer, PhasePost, StateConfigured)

	return markDone(c, PhasePost, ledger, fail)
}
