package topology

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsableHost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		prefix   string
		n        int
		expected string
		wantErr  error
	}{
		{name: "first usable", prefix: "10.0.5.0/24", n: 0, expected: "10.0.5.1"},
		{name: "second usable", prefix: "10.0.5.0/24", n: 1, expected: "10.0.5.2"},
		{name: "last usable", prefix: "10.0.5.0/24", n: 253, expected: "10.0.5.254"},
		{name: "broadcast excluded", prefix: "10.0.5.0/24", n: 254, wantErr: ErrOffsetOutOfRange},
		{name: "unmasked prefix", prefix: "10.0.5.77/24", n: 9, expected: "10.0.5.10"},
		{name: "slash 31 uses both", prefix: "10.0.0.0/31", n: 1, expected: "10.0.0.1"},
		{name: "slash 16 crosses octet", prefix: "172.16.0.0/16", n: 300, expected: "172.16.1.45"},
		{name: "negative", prefix: "10.0.5.0/24", n: -1, wantErr: ErrOffsetOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := UsableHost(netip.MustParsePrefix(tt.prefix), tt.n)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.String())
		})
	}
}

func TestUsableHost_RangeNotFinal(t *testing.T) {
	t.Parallel()
	_, err := UsableHost(netip.Prefix{}, 0)
	assert.ErrorIs(t, err, ErrRangeNotFinal)
}

func TestLastUsableHost(t *testing.T) {
	t.Parallel()
	got, err := LastUsableHost(netip.MustParsePrefix("192.168.10.0/28"))
	require.NoError(t, err)
	assert.Equal(t, "192.168.10.14", got.String())
}

func TestNetmask(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "255.255.255.0", Netmask(netip.MustParsePrefix("10.0.0.0/24")))
	assert.Equal(t, "255.255.240.0", Netmask(netip.MustParsePrefix("10.0.0.0/20")))
	assert.Equal(t, "0.0.0.0", Netmask(netip.MustParsePrefix("0.0.0.0/0")))
}
