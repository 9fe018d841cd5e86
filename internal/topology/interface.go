package topology

import (
	"fmt"
	"net/netip"
)

// External is the reserved network name for links outside the managed topology.
const External = "EXTERNAL"

// AddressMode describes how an interface obtains its address.
type AddressMode int

// Address modes.
const (
	AddressUnset AddressMode = iota
	AddressStatic
	AddressDHCP
	AddressOffset
)

func (m AddressMode) String() string {
	switch m {
	case AddressStatic:
		return "static"
	case AddressDHCP:
		return "dhcp"
	case AddressOffset:
		return "offset"
	}
	return "unset"
}

// Interface is one network attachment point on a host.
type Interface struct {
	NetworkName string
	MAC         string

	mode       AddressMode
	addr       netip.Addr
	offset     int
	fromOffset bool
}

// NewInterface returns an interface with no address.
func NewInterface(network string) *Interface {
	return &Interface{NetworkName: network}
}

// NewStaticInterface returns an interface with a literal address.
func NewStaticInterface(network string, addr netip.Addr) *Interface {
	return &Interface{NetworkName: network, mode: AddressStatic, addr: addr}
}

// NewDHCPInterface returns an interface addressed by DHCP.
func NewDHCPInterface(network string) *Interface {
	return &Interface{NetworkName: network, mode: AddressDHCP}
}

// NewOffsetInterface returns an interface whose address is the nth usable
// host of its network's range.
func NewOffsetInterface(network string, offset int) *Interface {
	return &Interface{NetworkName: network, mode: AddressOffset, offset: offset, fromOffset: true}
}

// ParseAddress builds an interface from a definition token: a literal IPv4
// address, the keyword dhcp, or a non-negative integer offset.
func ParseAddress(network, token string) (*Interface, error) {
	if isDHCP(token) {
		return NewDHCPInterface(network), nil
	}
	if n, ok := parseOffset(token); ok {
		return NewOffsetInterface(network, n), nil
	}
	addr, err := netip.ParseAddr(token)
	if err != nil || !addr.Is4() {
		return nil, fmt.Errorf("invalid address %q: want IPv4, dhcp or offset", token)
	}
	return NewStaticInterface(network, addr), nil
}

// Mode reports how the interface obtains its address.
func (i *Interface) Mode() AddressMode { return i.mode }

// HasOffset reports whether the interface still carries an unresolved offset.
func (i *Interface) HasOffset() bool { return i.mode == AddressOffset }

// IsDHCP reports whether the interface is DHCP-addressed.
func (i *Interface) IsDHCP() bool { return i.mode == AddressDHCP }

// Offset returns the configured offset. It stays available after resolution.
func (i *Interface) Offset() (int, bool) {
	return i.offset, i.fromOffset
}

// Addr returns the literal or resolved address.
func (i *Interface) Addr() (netip.Addr, bool) {
	if i.mode != AddressStatic {
		return netip.Addr{}, false
	}
	return i.addr, true
}

// ResolveOffset computes the address from the offset and the owning range
// and stores it, after which the interface is static. Resolving an already
// resolved offset interface recomputes the same address.
func (i *Interface) ResolveOffset(r netip.Prefix) error {
	off, ok := i.Offset()
	if !ok {
		if i.mode == AddressStatic {
			return nil
		}
		return fmt.Errorf("interface on %s has no offset", i.NetworkName)
	}
	if !r.IsValid() {
		return ErrRangeNotFinal
	}
	addr, err := UsableHost(r, off)
	if err != nil {
		return err
	}
	i.mode = AddressStatic
	i.addr = addr
	return nil
}

// Clone returns a copy of the interface.
func (i *Interface) Clone() *Interface {
	c := *i
	return &c
}

func (i *Interface) String() string {
	var a string
	switch i.mode {
	case AddressStatic:
		a = i.addr.String()
	case AddressDHCP:
		a = "dhcp"
	case AddressOffset:
		a = fmt.Sprintf("+%d", i.offset)
	default:
		a = "unset"
	}
	if i.MAC != "" {
		return fmt.Sprintf("%s:%s[%s]", i.NetworkName, a, i.MAC)
	}
	return fmt.Sprintf("%s:%s", i.NetworkName, a)
}

// NetworkLookup finds a network instance by name.
type NetworkLookup func(name string) (*NetworkInstance, bool)

// ResolveAddress returns the static address of an interface, resolving its
// offset against the referenced instance when needed.
func ResolveAddress(i *Interface, lookup NetworkLookup) (netip.Addr, error) {
	if i.NetworkName == External {
		return netip.Addr{}, ErrExternalNetwork
	}
	if i.HasOffset() {
		inst, ok := lookup(i.NetworkName)
		if !ok {
			return netip.Addr{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, i.NetworkName)
		}
		if err := i.ResolveOffset(inst.Range); err != nil {
			return netip.Addr{}, fmt.Errorf("resolve offset on %s: %w", i.NetworkName, err)
		}
	}
	addr, ok := i.Addr()
	if !ok {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrNoStaticAddress, i)
	}
	return addr, nil
}
