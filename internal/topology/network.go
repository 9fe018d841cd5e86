package topology

import (
	"fmt"
	"maps"
	"net/netip"
	"strconv"
	"strings"
)

// Domain describes the directory domain served inside a network.
type Domain struct {
	FQDN     string
	Admin    string
	Password string
}

// HostSpec is a host as written in a definition. Address is a literal
// (possibly containing octet variables), dhcp, or an integer offset.
type HostSpec struct {
	Hostname string
	Module   string
	Role     Role
	Address  string
}

// PostTarget is a post module invocation against a named host.
type PostTarget struct {
	Hostname string
	Module   string
	Vars     map[string]string
}

// NetworkDefinition is a reusable network template. It is not modified
// after parsing.
type NetworkDefinition struct {
	Name        string
	Range       string
	Domain      *Domain
	Vars        map[string]string
	Hosts       []HostSpec
	Users       []User
	PostTargets []PostTarget
}

// AddHost appends a host, rejecting duplicate hostnames.
func (d *NetworkDefinition) AddHost(h HostSpec) error {
	for _, existing := range d.Hosts {
		if existing.Hostname == h.Hostname {
			return fmt.Errorf("%w: %s in network %s", ErrDuplicateHost, h.Hostname, d.Name)
		}
	}
	d.Hosts = append(d.Hosts, h)
	return nil
}

// HasRole reports whether any host of the definition has the given role.
func (d *NetworkDefinition) HasRole(r Role) bool {
	for _, h := range d.Hosts {
		if h.Role == r {
			return true
		}
	}
	return false
}

// InstanceSpec carries the per-instance parameters of NewInstance.
type InstanceSpec struct {
	Name     string
	SwitchID string
	// Prefix is prepended to VM display names.
	Prefix string
	Octets map[string]string
}

// NetworkInstance is a definition realized on a switch with a concrete range.
type NetworkInstance struct {
	Name       string
	Definition string
	SwitchID   string
	Prefix     string
	Range      netip.Prefix
	Domain     *Domain
	Users      []User

	PostTargets []PostTarget

	hosts   []*Host
	routers []*Host
	vars    map[string]any
}

// NewInstance realizes def: octet variables are substituted in the range and
// in literal host addresses, hosts are copied, and network variables computed.
func NewInstance(def *NetworkDefinition, spec InstanceSpec) (*NetworkInstance, error) {
	if spec.Name == External {
		return nil, fmt.Errorf("%w: %s", ErrReservedName, spec.Name)
	}

	rangeText, err := SubstituteOctets(def.Range, spec.Octets)
	if err != nil {
		return nil, fmt.Errorf("range of %s: %w", spec.Name, err)
	}
	prefix, err := netip.ParsePrefix(rangeText)
	if err != nil {
		return nil, fmt.Errorf("range of %s: %w", spec.Name, err)
	}
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("range of %s: only IPv4 is supported", spec.Name)
	}

	inst := &NetworkInstance{
		Name:        spec.Name,
		Definition:  def.Name,
		SwitchID:    spec.SwitchID,
		Prefix:      spec.Prefix,
		Range:       prefix.Masked(),
		Domain:      def.Domain,
		Users:       append([]User(nil), def.Users...),
		PostTargets: make([]PostTarget, 0, len(def.PostTargets)),
		vars:        map[string]any{},
	}

	for _, hs := range def.Hosts {
		addr, err := SubstituteOctets(hs.Address, spec.Octets)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", hs.Hostname, err)
		}
		iface, err := ParseAddress(spec.Name, addr)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", hs.Hostname, err)
		}
		if iface.HasOffset() {
			if err := iface.ResolveOffset(inst.Range); err != nil {
				return nil, fmt.Errorf("host %s: %w", hs.Hostname, err)
			}
		}
		if err := inst.addHost(NewHost(hs.Hostname, hs.Module, hs.Role, iface)); err != nil {
			return nil, err
		}
	}

	for _, pt := range def.PostTargets {
		pt.Vars = maps.Clone(pt.Vars)
		inst.PostTargets = append(inst.PostTargets, pt)
	}

	if err := inst.computeVars(def.Vars); err != nil {
		return nil, err
	}
	return inst, nil
}

func (n *NetworkInstance) addHost(h *Host) error {
	if _, ok := n.Host(h.Hostname); ok {
		return fmt.Errorf("%w: %s in instance %s", ErrDuplicateHost, h.Hostname, n.Name)
	}
	n.hosts = append(n.hosts, h)
	return nil
}

// AddRouter attaches a router to the instance.
func (n *NetworkInstance) AddRouter(r *Host) error {
	if !r.IsRouter() {
		return fmt.Errorf("%s is not a router", r.Hostname)
	}
	if _, ok := n.Host(r.Hostname); ok {
		return fmt.Errorf("%w: %s in instance %s", ErrDuplicateHost, r.Hostname, n.Name)
	}
	n.routers = append(n.routers, r)
	return nil
}

// Host returns the host or router with the given name.
func (n *NetworkInstance) Host(name string) (*Host, bool) {
	for _, h := range n.hosts {
		if h.Hostname == name {
			return h, true
		}
	}
	for _, r := range n.routers {
		if r.Hostname == name {
			return r, true
		}
	}
	return nil, false
}

// Hosts returns the non-router hosts in definition order.
func (n *NetworkInstance) Hosts() []*Host { return n.hosts }

// Routers returns the routers in declaration order.
func (n *NetworkInstance) Routers() []*Host { return n.routers }

// Group returns the hosts of a provisioning group in order.
func (n *NetworkInstance) Group(g Group) []*Host {
	if g == GroupRouters {
		return n.routers
	}
	var out []*Host
	for _, h := range n.hosts {
		if h.Role.Group() == g {
			out = append(out, h)
		}
	}
	return out
}

// DHCPServer returns the first host with the dhcp role.
func (n *NetworkInstance) DHCPServer() (*Host, bool) {
	for _, h := range n.hosts {
		if h.Role == RoleDHCP {
			return h, true
		}
	}
	return nil, false
}

// Gateway returns the first usable host of the range.
func (n *NetworkInstance) Gateway() netip.Addr {
	gw, _ := UsableHost(n.Range, 0)
	return gw
}

// Vars returns a copy of the network variables.
func (n *NetworkInstance) Vars() map[string]any {
	return maps.Clone(n.vars)
}

// SetVar sets a network variable.
func (n *NetworkInstance) SetVar(name string, value any) {
	n.vars[name] = value
}

func (n *NetworkInstance) computeVars(defVars map[string]string) error {
	gw, err := UsableHost(n.Range, 0)
	if err != nil {
		return fmt.Errorf("gateway of %s: %w", n.Name, err)
	}

	for k, v := range defVars {
		n.vars[k] = v
	}

	dns := gw
	for _, h := range n.hosts {
		if h.Role != RoleDomain {
			continue
		}
		if a, ok := h.Addr(); ok {
			dns = a
			break
		}
	}

	n.vars["network_name"] = n.Name
	n.vars["network"] = n.Range.Addr().String()
	n.vars["gateway"] = gw.String()
	n.vars["netmask"] = Netmask(n.Range)
	n.vars["prefix"] = n.Range.Bits()
	n.vars["dns_server"] = dns.String()

	if n.Domain != nil {
		n.vars["domain"] = n.Domain.FQDN
		n.vars["domain_admin"] = n.Domain.Admin
		n.vars["domain_password"] = n.Domain.Password
	}

	if len(n.Users) > 0 {
		users := make([]map[string]any, 0, len(n.Users))
		for _, u := range n.Users {
			users = append(users, u.Vars())
		}
		n.vars["users"] = users
	}
	return nil
}

// SubstituteOctets replaces non-numeric octets of an IPv4 address or prefix
// with their values from octets. The keyword dhcp and integer offsets pass
// through unchanged.
func SubstituteOctets(text string, octets map[string]string) (string, error) {
	if isDHCP(text) {
		return text, nil
	}
	if _, ok := parseOffset(text); ok {
		return text, nil
	}

	addr, bits, hasBits := strings.Cut(text, "/")
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return "", fmt.Errorf("invalid IPv4 template %q", text)
	}

	var missing []string
	for i, p := range parts {
		if _, err := strconv.Atoi(p); err == nil {
			continue
		}
		v, ok := octets[p]
		if !ok {
			missing = append(missing, p)
			continue
		}
		parts[i] = v
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s in %q", ErrUnresolvedOctet, strings.Join(missing, ", "), text)
	}

	out := strings.Join(parts, ".")
	if hasBits {
		out += "/" + bits
	}
	return out, nil
}

func isDHCP(s string) bool {
	return strings.EqualFold(s, "dhcp")
}

func parseOffset(s string) (int, bool) {
	if s == "" || strings.ContainsAny(s, "./") {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
