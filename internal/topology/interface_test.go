package topology

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		token   string
		mode    AddressMode
		wantErr bool
	}{
		{token: "10.0.0.5", mode: AddressStatic},
		{token: "dhcp", mode: AddressDHCP},
		{token: "DHCP", mode: AddressDHCP},
		{token: "3", mode: AddressOffset},
		{token: "10.0.0", wantErr: true},
		{token: "-1", wantErr: true},
		{token: "fe80::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			t.Parallel()
			iface, err := ParseAddress("lan", tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mode, iface.Mode())
		})
	}
}

func TestInterface_ResolveOffset(t *testing.T) {
	t.Parallel()

	iface := NewOffsetInterface("lab", 1)
	assert.True(t, iface.HasOffset())
	_, ok := iface.Addr()
	assert.False(t, ok, "address must be unset before resolution")

	require.NoError(t, iface.ResolveOffset(netip.MustParsePrefix("10.0.5.0/24")))
	assert.False(t, iface.HasOffset())
	addr, ok := iface.Addr()
	require.True(t, ok)
	assert.Equal(t, "10.0.5.2", addr.String())

	// resolving twice yields the same address
	require.NoError(t, iface.ResolveOffset(netip.MustParsePrefix("10.0.5.0/24")))
	addr, _ = iface.Addr()
	assert.Equal(t, "10.0.5.2", addr.String())
}

func TestInterface_ResolveOffsetFollowsRange(t *testing.T) {
	t.Parallel()

	a := NewOffsetInterface("lab", 0)
	b := NewOffsetInterface("lab", 0)
	require.NoError(t, a.ResolveOffset(netip.MustParsePrefix("10.0.5.0/24")))
	require.NoError(t, b.ResolveOffset(netip.MustParsePrefix("10.0.9.0/24")))

	aa, _ := a.Addr()
	ba, _ := b.Addr()
	assert.Equal(t, "10.0.5.1", aa.String())
	assert.Equal(t, "10.0.9.1", ba.String())

	off, ok := a.Offset()
	assert.True(t, ok)
	assert.Equal(t, 0, off)
}

func TestInterface_ResolveOffsetRequiresFinalRange(t *testing.T) {
	t.Parallel()
	iface := NewOffsetInterface("lab", 1)
	err := iface.ResolveOffset(netip.Prefix{})
	assert.ErrorIs(t, err, ErrRangeNotFinal)
	assert.True(t, iface.HasOffset())
}

func TestResolveAddress(t *testing.T) {
	t.Parallel()

	inst := &NetworkInstance{Name: "corp", Range: netip.MustParsePrefix("10.1.0.0/24")}
	lookup := func(name string) (*NetworkInstance, bool) {
		if name == inst.Name {
			return inst, true
		}
		return nil, false
	}

	addr, err := ResolveAddress(NewOffsetInterface("corp", 0), lookup)
	require.NoError(t, err)
	assert.Equal(t, "10.1.0.1", addr.String())

	_, err = ResolveAddress(NewOffsetInterface(External, 0), lookup)
	assert.ErrorIs(t, err, ErrExternalNetwork)

	_, err = ResolveAddress(NewOffsetInterface("nowhere", 0), lookup)
	assert.ErrorIs(t, err, ErrUnknownNetwork)

	_, err = ResolveAddress(NewDHCPInterface("corp"), lookup)
	assert.ErrorIs(t, err, ErrNoStaticAddress)
}
