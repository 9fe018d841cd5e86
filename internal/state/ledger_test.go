package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_AddIsIdempotent(t *testing.T) {
	t.Parallel()
	l := New(filepath.Join(t.TempDir(), "services.state"))

	require.NoError(t, l.Add("dc1"))
	require.NoError(t, l.SetVMID("dc1", 101))
	require.NoError(t, l.SetMAC("dc1", "aa:bb:cc:dd:ee:01"))
	require.NoError(t, l.Add("dc1"))

	assert.Equal(t, []string{"dc1"}, l.Names())
	rec, ok := l.Get("dc1")
	require.True(t, ok)
	assert.Equal(t, Record{Hostname: "dc1", VMID: 101, MAC: "aa:bb:cc:dd:ee:01"}, rec)
}

func TestLedger_SettersRequireRecord(t *testing.T) {
	t.Parallel()
	l := New(filepath.Join(t.TempDir(), "x.state"))

	assert.ErrorIs(t, l.SetVMID("ghost", 1), ErrNotFound)
	assert.ErrorIs(t, l.SetMAC("ghost", "aa"), ErrNotFound)
	assert.ErrorIs(t, l.SetIP("ghost", "10.0.0.1"), ErrNotFound)
	assert.Equal(t, 0, l.VMID("ghost"))
	assert.Empty(t, l.MAC("ghost"))
	assert.Empty(t, l.IP("ghost"))
}

func TestLedger_RejectsReservedCharacters(t *testing.T) {
	t.Parallel()
	l := New(filepath.Join(t.TempDir(), "x.state"))

	assert.ErrorIs(t, l.Add("bad|name"), ErrInvalidField)
	require.NoError(t, l.Add("ok"))
	assert.ErrorIs(t, l.SetMAC("ok", "aa\nbb"), ErrInvalidField)
	assert.ErrorIs(t, l.SetIP("ok", "10.0.0.1\r"), ErrInvalidField)
}

func TestLedger_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "router_bootstrap.state")

	l := New(path)
	require.NoError(t, l.Add("r1"))
	require.NoError(t, l.SetVMID("r1", 100))
	require.NoError(t, l.SetMAC("r1", "aa:bb:cc:dd:ee:ff"))
	require.NoError(t, l.SetIP("r1", "10.0.0.5"))
	require.NoError(t, l.Persist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "r1|100|aa:bb:cc:dd:ee:ff|10.0.0.5\n", string(data))

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, l.Records(), reloaded.Records())

	require.NoError(t, reloaded.SetMAC("r1", "11:22:33:44:55:66"))
	require.NoError(t, reloaded.Persist())

	again, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "11:22:33:44:55:66", again.MAC("r1"))
	assert.Equal(t, 100, again.VMID("r1"))
	assert.Equal(t, "10.0.0.5", again.IP("r1"))
}

func TestLedger_LoadToleratesBlankLinesAndMissingFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	missing, err := Open(filepath.Join(dir, "missing.state"))
	require.NoError(t, err)
	assert.Empty(t, missing.Names())
	assert.False(t, missing.Exists())

	path := filepath.Join(dir, "clients.state")
	require.NoError(t, os.WriteFile(path, []byte("a|1||\n\n   \nb|0||\n"), 0o600))
	l, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, l.Names())
	assert.Empty(t, l.AllMACs())
}

func TestLedger_LoadRejectsMalformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.state")
	require.NoError(t, os.WriteFile(path, []byte("a|1|mac\n"), 0o600))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), ":1:")
}

func TestLedger_AllMACsInOrder(t *testing.T) {
	t.Parallel()
	l := New(filepath.Join(t.TempDir(), "x.state"))
	for _, h := range []string{"a", "b", "c"} {
		require.NoError(t, l.Add(h))
	}
	require.NoError(t, l.SetMAC("c", "cc"))
	require.NoError(t, l.SetMAC("a", "aa"))

	assert.Equal(t, []string{"aa", "cc"}, l.AllMACs())
}

func TestLedger_Done(t *testing.T) {
	t.Parallel()
	l := New(filepath.Join(t.TempDir(), "services.state"))

	assert.False(t, l.IsDone())
	require.NoError(t, l.MarkDone())
	assert.True(t, l.IsDone())

	data, err := os.ReadFile(l.DonePath())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Done at "))
	assert.Equal(t, l.Path()+".done", l.DonePath())
}

func TestLedger_CloneIsIndependent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := New(filepath.Join(dir, "bootstrap.state"))
	require.NoError(t, src.Add("h1"))
	require.NoError(t, src.SetVMID("h1", 7))

	dst := src.Clone(filepath.Join(dir, "deploy.state"))
	require.NoError(t, dst.SetIP("h1", "10.0.0.9"))
	require.NoError(t, dst.Add("h2"))

	assert.Empty(t, src.IP("h1"))
	assert.Equal(t, []string{"h1"}, src.Names())
	assert.Equal(t, 7, dst.VMID("h1"))
	assert.False(t, dst.Exists(), "clone must not persist implicitly")
}
