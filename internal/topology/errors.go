package topology

import "errors"

var (
	// ErrDuplicateHost is returned when a hostname is used twice in one network.
	ErrDuplicateHost = errors.New("duplicate hostname")

	// ErrRangeNotFinal is returned when an offset is resolved against a range
	// that has not been finalized.
	ErrRangeNotFinal = errors.New("network range not finalized")

	// ErrOffsetOutOfRange is returned when an offset exceeds the usable hosts of a range.
	ErrOffsetOutOfRange = errors.New("offset outside usable host range")

	// ErrExternalNetwork is returned when EXTERNAL is resolved as an instance.
	ErrExternalNetwork = errors.New("EXTERNAL does not name a network instance")

	// ErrUnknownNetwork is returned when an interface references a missing instance.
	ErrUnknownNetwork = errors.New("unknown network")

	// ErrNoStaticAddress is returned when a static address is required but the
	// interface is DHCP-addressed or unset.
	ErrNoStaticAddress = errors.New("interface has no static address")

	// ErrUnresolvedOctet is returned when an octet variable has no substitution.
	ErrUnresolvedOctet = errors.New("unresolved octet variable")

	// ErrReservedName is returned when an instance is named EXTERNAL.
	ErrReservedName = errors.New("reserved network name")
)
