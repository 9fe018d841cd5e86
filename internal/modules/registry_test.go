package modules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/dropship/internal/topology"
)

func TestBuiltin(t *testing.T) {
	t.Parallel()
	r := Builtin("/opt/dropship/modules")

	vyos, err := r.Get("networking.vyos")
	require.NoError(t, err)
	assert.Equal(t, topology.RoleRouter, vyos.Role)
	assert.Equal(t, ConnectionNetworkCLI, vyos.ConnectionMethod)
	assert.Equal(t, filepath.FromSlash("/opt/dropship/modules/networking/vyos"), vyos.Dir)

	dhcp, err := r.Get("services.ubuntu_dhcp")
	require.NoError(t, err)
	assert.Equal(t, topology.RoleDHCP, dhcp.Role)

	sysmon, err := r.Get("post.windows.config.sysmon")
	require.NoError(t, err)
	assert.NotNil(t, sysmon.Hook, "modules with fetch entries get a pre-post hook")

	local, err := r.Get("post.windows.config.localadmin")
	require.NoError(t, err)
	assert.Equal(t, []string{"username"}, local.RequiredVars)
	assert.Nil(t, local.Hook)

	for _, d := range r.List() {
		assert.NoError(t, d.validate(), d.Name)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	t.Parallel()
	_, err := NewRegistry().Get("nope")
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	err := r.Register(&Descriptor{Name: "x", Role: "wizard", Image: "i", ConnectionMethod: ConnectionSSH})
	assert.Error(t, err)

	err = r.Register(&Descriptor{Name: "x", Role: topology.RoleClient, ConnectionMethod: ConnectionSSH})
	assert.ErrorContains(t, err, "image is required")

	require.NoError(t, r.Register(&Descriptor{Name: "x", Role: topology.RoleClient, Image: "i", ConnectionMethod: ConnectionSSH}))
	role, err := r.Role("x")
	require.NoError(t, err)
	assert.Equal(t, topology.RoleClient, role)
}

func TestRegistry_LoadCatalog(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	modDir := filepath.Join(root, "clients", "debian12")
	require.NoError(t, os.MkdirAll(modDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, CatalogFile), []byte(`
description: Debian 12 client
image: client.linux.debian12
role: client
connection_method: ssh
os_type: debian
become_method: sudo
become_user: root
interface_names: [ens18, ens19]
task_files:
  deploy: site.yml
`), 0o600))

	r := Builtin(root)
	n, err := r.LoadCatalog(root)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err := r.Get("clients.debian12")
	require.NoError(t, err)
	assert.Equal(t, modDir, d.Dir)
	assert.Equal(t, "ens19", d.InterfaceName(1))
	assert.Equal(t, "eth2", d.InterfaceName(2))
	assert.Equal(t, filepath.Join(modDir, "site.yml"), d.TaskFile(TaskDeploy))
	assert.Equal(t, filepath.Join(modDir, "bootstrap.yml"), d.TaskFile(TaskBootstrap))
}

func TestRegistry_LoadCatalogRejectsInvalid(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bad"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad", CatalogFile), []byte("role: client\n"), 0o600))

	_, err := NewRegistry().LoadCatalog(root)
	assert.Error(t, err)
}
