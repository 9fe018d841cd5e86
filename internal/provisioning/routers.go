package provisioning

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/state"
	"github.com/imamik/dropship/internal/topology"
	"github.com/imamik/dropship/internal/util/naming"
)

// Inventory prefix of the first router configuration stage.
const preStagePrefix = "pre-"

// BootstrapRouters brings up every router of the topology under a single
// ledger. Routers boot with NIC 0 and NIC 1 on the bootstrap switch. The
// first configuration stage sets the address of NIC 1 through the DHCP
// address and reboots; the second connects through the new address,
// configures the remaining interfaces once EXTERNAL links are on the
// external switch; finally internal links move to their instance switches.
func BootstrapRouters(ctx *Context, routers []*topology.Host, lookup topology.NetworkLookup) error {
	c := ctx.WithObserver(ctx.Observer.WithFields(map[string]string{"group": string(topology.GroupRouters)}))
	fail := func(err error) error {
		return &PhaseError{Phase: PhaseRouters, Group: topology.GroupRouters, Host: hostOf(err), Err: err}
	}

	dir, err := c.ensureDir(naming.RouterDir)
	if err != nil {
		return fail(err)
	}
	ledger, err := state.Open(filepath.Join(dir, naming.RouterLedger))
	if err != nil {
		return fail(err)
	}

	if ledger.IsDone() {
		applyLedger(ledger, routers)
		LogPhaseSkipped(c.Observer, PhaseRouters, ledger.Path())
		return nil
	}
	if len(routers) == 0 {
		if err := ledger.Persist(); err != nil {
			return fail(err)
		}
		return markDone(c, PhaseRouters, ledger, fail)
	}

	if err := checkRouters(routers, lookup); err != nil {
		return fail(err)
	}

	s, err := resumeState(ledger, routers)
	if err != nil {
		return fail(err)
	}
	if s == StateNotStarted {
		if err := c.cloneGroup(PhaseRouters, ledger, routers, ""); err != nil {
			return fail(err)
		}
		if err := c.attachAndStart(PhaseRouters, ledger, routers, 1); err != nil {
			return fail(err)
		}
		s = StateNetworkAttached
	}
	if s == StateNetworkAttached {
		if err := c.resolveGroup(PhaseRouters, ledger, routers); err != nil {
			return fail(err)
		}
	}

	// stage 1: address NIC 1 through the DHCP address and reboot
	pre := newInventoryBuilder(c, preStagePrefix, nil, modules.TaskBootstrap, modules.TaskReboot)
	for _, r := range routers {
		d, err := c.Modules.Get(r.Module)
		if err != nil {
			return fail(err)
		}
		entry, addr, err := routerInterfaceVars(r, 1, d, lookup)
		if err != nil {
			return fail(fmt.Errorf("router %s: %w", r.Hostname, err))
		}
		r.Vars = map[string]any{
			"hostname":   r.Hostname,
			"interfaces": []map[string]any{entry},
			"new_ip_set": addr,
		}
		if err := pre.add(r); err != nil {
			return fail(err)
		}
	}
	if err := c.push(PhaseRouters, "pre_routers", dir, pre.build(), modules.TaskBootstrap, modules.TaskReboot); err != nil {
		return fail(err)
	}
	LogGroupState(c.Observer, PhaseRouters, StateConfigured)

	// stage 2: connect through NIC 1 and configure the other interfaces
	main := newInventoryBuilder(c, "", nil, modules.TaskBootstrap)
	for _, r := range routers {
		d, err := c.Modules.Get(r.Module)
		if err != nil {
			return fail(err)
		}
		r.ConnectIP, _ = r.Vars["new_ip_set"].(string)
		ifaces := []map[string]any{}
		for i, iface := range r.Interfaces {
			if i == 1 || iface.NetworkName == topology.External {
				continue
			}
			entry, _, err := routerInterfaceVars(r, i, d, lookup)
			if err != nil {
				return fail(fmt.Errorf("router %s: %w", r.Hostname, err))
			}
			ifaces = append(ifaces, entry)
		}
		r.Vars = map[string]any{"hostname": r.Hostname, "interfaces": ifaces}

		for i, iface := range r.Interfaces {
			if iface.NetworkName != topology.External {
				continue
			}
			if err := c.setInterface(PhaseRouters, r, i, c.Config.ExternalSwitch); err != nil {
				return fail(err)
			}
		}
		if err := main.add(r); err != nil {
			return fail(err)
		}
	}
	if err := c.push(PhaseRouters, "routers", dir, main.build(), modules.TaskBootstrap); err != nil {
		return fail(err)
	}

	// stage 3: move internal links to their instance switches
	for _, r := range routers {
		for i, iface := range r.Interfaces {
			if iface.NetworkName == topology.External {
				continue
			}
			inst, _ := lookup(iface.NetworkName)
			if err := c.setInterface(PhaseRouters, r, i, inst.SwitchID); err != nil {
				return fail(err)
			}
		}
	}
	LogGroupState(c.Observer, PhaseRouters, StateRewired)

	if err := c.snapshotGroup(PhaseRouters, routers); err != nil {
		return fail(err)
	}
	return markDone(c, PhaseRouters, ledger, fail)
}

// checkRouters validates router wiring before any side effect.
func checkRouters(routers []*topology.Host, lookup topology.NetworkLookup) error {
	for _, r := range routers {
		if len(r.Interfaces) < 2 {
			return configErr("router %s needs at least two interfaces", r.Hostname)
		}
		if r.Interfaces[1].NetworkName == topology.External {
			return fmt.Errorf("router %s interface 1: %w", r.Hostname, topology.ErrExternalNetwork)
		}
		if m := r.Interfaces[1].Mode(); m == topology.AddressDHCP || m == topology.AddressUnset {
			return configErr("router %s interface 1 needs a static address or offset", r.Hostname)
		}
		for i, iface := range r.Interfaces {
			if iface.NetworkName == topology.External {
				continue
			}
			if _, ok := lookup(iface.NetworkName); !ok {
				return configErr("router %s interface %d: %v: %s", r.Hostname, i, topology.ErrUnknownNetwork, iface.NetworkName)
			}
		}
	}
	return nil
}

// CheckRouters is the exported preflight form of checkRouters. It also
// requires an external switch when any router has an EXTERNAL link.
func CheckRouters(routers []*topology.Host, lookup topology.NetworkLookup, externalSwitch string) error {
	if err := checkRouters(routers, lookup); err != nil {
		return err
	}
	for _, r := range routers {
		for i, iface := range r.Interfaces {
			if iface.NetworkName == topology.External && externalSwitch == "" {
				return configErr("router %s interface %d is EXTERNAL but no external_switch is configured", r.Hostname, i)
			}
			if iface.HasOffset() {
				inst, _ := lookup(iface.NetworkName)
				if _, err := topology.UsableHost(inst.Range, mustOffset(iface)); err != nil {
					return configErr("router %s interface %d: %v", r.Hostname, i, err)
				}
			}
		}
	}
	return nil
}

func mustOffset(i *topology.Interface) int {
	n, _ := i.Offset()
	return n
}

// routerInterfaceVars resolves interface i of r and renders its variables.
func routerInterfaceVars(r *topology.Host, i int, d *modules.Descriptor, lookup topology.NetworkLookup) (map[string]any, string, error) {
	iface := r.Interfaces[i]
	addr, err := topology.ResolveAddress(iface, lookup)
	if err != nil {
		if errors.Is(err, topology.ErrNoStaticAddress) && iface.IsDHCP() {
			return map[string]any{"iface": d.InterfaceName(i), "dhcp": true}, "", nil
		}
		return nil, "", err
	}
	inst, _ := lookup(iface.NetworkName)
	return map[string]any{
		"iface":   d.InterfaceName(i),
		"addr":    addr.String(),
		"prefix":  inst.Range.Bits(),
		"netmask": topology.Netmask(inst.Range),
	}, addr.String(), nil
}
