package topology

import (
	"maps"
	"net/netip"
)

// Host is a provisionable system.
type Host struct {
	Hostname string
	Module   string
	Role     Role

	// VMID is zero until the host has been cloned.
	VMID int

	// ConnectIP is the address used to reach the host for configuration.
	// It may differ from the final address while bootstrapping.
	ConnectIP string

	// Interfaces are ordered; index 0 is the primary bootstrap interface.
	Interfaces []*Interface

	Vars map[string]any
}

// NewHost returns a host attached to its network through a single interface.
func NewHost(hostname, module string, role Role, primary *Interface) *Host {
	h := &Host{
		Hostname: hostname,
		Module:   module,
		Role:     role,
		Vars:     map[string]any{},
	}
	if primary != nil {
		h.Interfaces = append(h.Interfaces, primary)
	}
	return h
}

// NewRouter returns a router with no interfaces. Interface index 1 is the
// internal configuration interface.
func NewRouter(hostname, module string) *Host {
	return NewHost(hostname, module, RoleRouter, nil)
}

// AddInterface appends an interface.
func (h *Host) AddInterface(i *Interface) {
	h.Interfaces = append(h.Interfaces, i)
}

// IsRouter reports whether the host is a router.
func (h *Host) IsRouter() bool { return h.Role == RoleRouter }

// Primary returns the primary interface, or nil.
func (h *Host) Primary() *Interface {
	if len(h.Interfaces) == 0 {
		return nil
	}
	return h.Interfaces[0]
}

// MAC returns the MAC of the primary interface.
func (h *Host) MAC() string {
	if p := h.Primary(); p != nil {
		return p.MAC
	}
	return ""
}

// SetMAC records the MAC of the primary interface.
func (h *Host) SetMAC(mac string) {
	if p := h.Primary(); p != nil {
		p.MAC = mac
	}
}

// Addr returns the static address of the primary interface.
func (h *Host) Addr() (netip.Addr, bool) {
	if p := h.Primary(); p != nil {
		return p.Addr()
	}
	return netip.Addr{}, false
}

// UsesDHCP reports whether the primary interface is DHCP-addressed.
func (h *Host) UsesDHCP() bool {
	p := h.Primary()
	return p != nil && p.IsDHCP()
}

// Clone returns a deep copy of the host.
func (h *Host) Clone() *Host {
	c := *h
	c.Interfaces = make([]*Interface, len(h.Interfaces))
	for i, iface := range h.Interfaces {
		c.Interfaces[i] = iface.Clone()
	}
	c.Vars = maps.Clone(h.Vars)
	if c.Vars == nil {
		c.Vars = map[string]any{}
	}
	return &c
}
