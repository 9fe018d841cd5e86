package provisioning

import (
	"fmt"
	"maps"

	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/topology"
	"github.com/imamik/dropship/internal/util/naming"
)

// Credentials are the login and privilege escalation settings of a group.
type Credentials struct {
	Username     string
	Password     string
	BecomeMethod string
	BecomeUser   string
}

// InventoryHost is one host of an inventory group.
type InventoryHost struct {
	Name           string
	ConnectAddress string
	Vars           map[string]any
}

// InventoryGroup holds the hosts of one module.
type InventoryGroup struct {
	Name             string
	Module           string
	OSType           string
	ConnectionMethod string
	Credentials      Credentials
	Hosts            []InventoryHost
	GlobalVars       map[string]any
	TaskFiles        map[modules.TaskSet][]string
}

// Inventory is an ordered set of groups keyed by module.
type Inventory struct {
	Groups []*InventoryGroup
}

// Group returns the group of a module.
func (inv *Inventory) Group(module string) (*InventoryGroup, bool) {
	for _, g := range inv.Groups {
		if g.Module == module {
			return g, true
		}
	}
	return nil, false
}

// HostCount returns the number of hosts over all groups.
func (inv *Inventory) HostCount() int {
	n := 0
	for _, g := range inv.Groups {
		n += len(g.Hosts)
	}
	return n
}

// inventoryBuilder assembles an inventory, staging task files per module.
type inventoryBuilder struct {
	ctx    *Context
	prefix string
	global map[string]any
	sets   []modules.TaskSet
	inv    *Inventory
}

func newInventoryBuilder(ctx *Context, prefix string, global map[string]any, sets ...modules.TaskSet) *inventoryBuilder {
	return &inventoryBuilder{ctx: ctx, prefix: prefix, global: global, sets: sets, inv: &Inventory{}}
}

// add places h in its module's group.
func (b *inventoryBuilder) add(h *topology.Host) error {
	return b.addAs(h.Module, h.Hostname, h.ConnectIP, h.Vars)
}

// addAs places a host under module with explicit vars.
func (b *inventoryBuilder) addAs(module, hostname, address string, vars map[string]any) error {
	g, ok := b.inv.Group(module)
	if !ok {
		var err error
		g, err = b.newGroup(module)
		if err != nil {
			return err
		}
		b.inv.Groups = append(b.inv.Groups, g)
	}
	if address == "" {
		return fmt.Errorf("host %s has no connect address", hostname)
	}
	g.Hosts = append(g.Hosts, InventoryHost{
		Name:           naming.InventoryHost(b.prefix, hostname),
		ConnectAddress: address,
		Vars:           maps.Clone(vars),
	})
	return nil
}

func (b *inventoryBuilder) newGroup(module string) (*InventoryGroup, error) {
	d, err := b.ctx.Modules.Get(module)
	if err != nil {
		return nil, err
	}

	cred, _ := b.ctx.Config.CredentialFor(d.OSType)
	g := &InventoryGroup{
		Name:             naming.InventoryGroup(b.prefix, module),
		Module:           module,
		OSType:           d.OSType,
		ConnectionMethod: d.ConnectionMethod,
		Credentials: Credentials{
			Username:     cred.Username,
			Password:     cred.Password,
			BecomeMethod: d.BecomeMethod,
			BecomeUser:   d.BecomeUser,
		},
		GlobalVars: maps.Clone(b.global),
		TaskFiles:  make(map[modules.TaskSet][]string, len(b.sets)),
	}
	for _, set := range b.sets {
		path, err := modules.Stage(b.ctx.Config.OutputDir, d, set)
		if err != nil {
			return nil, err
		}
		g.TaskFiles[set] = append(g.TaskFiles[set], path)
	}
	return g, nil
}

func (b *inventoryBuilder) build() *Inventory { return b.inv }
