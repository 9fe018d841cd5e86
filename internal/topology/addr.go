package topology

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// UsableHost returns the nth usable host address of an IPv4 prefix.
// Usable hosts start at the first address after the network address and
// exclude the broadcast address, except for /31 and /32 where every address
// is usable. n = 0 is the first usable host.
func UsableHost(prefix netip.Prefix, n int) (netip.Addr, error) {
	if !prefix.IsValid() {
		return netip.Addr{}, ErrRangeNotFinal
	}
	if !prefix.Addr().Is4() {
		return netip.Addr{}, fmt.Errorf("only IPv4 ranges are supported, got %s", prefix)
	}
	if n < 0 {
		return netip.Addr{}, fmt.Errorf("%w: %d", ErrOffsetOutOfRange, n)
	}

	prefix = prefix.Masked()
	hostBits := 32 - prefix.Bits()
	size := uint64(1) << hostBits

	first, usable := uint64(1), size-2
	if hostBits <= 1 {
		first, usable = 0, size
	}
	if uint64(n) >= usable {
		return netip.Addr{}, fmt.Errorf("%w: %d in %s", ErrOffsetOutOfRange, n, prefix)
	}

	base := addrToUint(prefix.Addr())
	// #nosec G115
	return uintToAddr(uint32(uint64(base) + first + uint64(n))), nil
}

// LastUsableHost returns the highest usable host address of an IPv4 prefix.
func LastUsableHost(prefix netip.Prefix) (netip.Addr, error) {
	if !prefix.IsValid() {
		return netip.Addr{}, ErrRangeNotFinal
	}
	hostBits := 32 - prefix.Masked().Bits()
	usable := (1 << hostBits) - 2
	if hostBits <= 1 {
		usable = 1 << hostBits
	}
	return UsableHost(prefix, usable-1)
}

// Netmask returns the dotted-quad netmask of an IPv4 prefix.
func Netmask(prefix netip.Prefix) string {
	bits := prefix.Bits()
	if bits < 0 {
		return ""
	}
	// #nosec G115
	mask := ^uint32(0) << (32 - uint(bits))
	if bits == 0 {
		mask = 0
	}
	return uintToAddr(mask).String()
}

func addrToUint(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uintToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
