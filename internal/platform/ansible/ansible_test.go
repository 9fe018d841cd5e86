package ansible

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/provisioning"
)

func sampleInventory() *provisioning.Inventory {
	return &provisioning.Inventory{Groups: []*provisioning.InventoryGroup{
		{
			Name:             "services_ubuntu_dhcp",
			Module:           "services.ubuntu_dhcp",
			OSType:           "debian",
			ConnectionMethod: modules.ConnectionSSH,
			Credentials:      provisioning.Credentials{Username: "admin", Password: "pw", BecomeMethod: "sudo", BecomeUser: "root"},
			Hosts: []provisioning.InventoryHost{
				{Name: "dhcp1", ConnectAddress: "192.168.122.10", Vars: map[string]any{"hostname": "dhcp1"}},
			},
			GlobalVars: map[string]any{"domain": "corp1.lab"},
			TaskFiles:  map[modules.TaskSet][]string{modules.TaskBootstrap: {"/out/mod_services_ubuntu_dhcp/bootstrap.yml"}},
		},
		{
			Name:             "networking_vyos",
			Module:           "networking.vyos",
			OSType:           "vyos",
			ConnectionMethod: modules.ConnectionNetworkCLI,
			Credentials:      provisioning.Credentials{Username: "vyos", Password: "vyos"},
			Hosts: []provisioning.InventoryHost{
				{Name: "gw1", ConnectAddress: "10.7.5.1"},
			},
			TaskFiles: map[modules.TaskSet][]string{modules.TaskReboot: {"/out/mod_networking_vyos/reboot.yml"}},
		},
		{
			Name:             "clients_windows10_1909",
			Module:           "clients.windows10_1909",
			OSType:           "windows",
			ConnectionMethod: modules.ConnectionWinRM,
			Hosts:            []provisioning.InventoryHost{{Name: "ws2", ConnectAddress: "10.7.5.21"}},
			TaskFiles:        map[modules.TaskSet][]string{modules.TaskBootstrap: {"/out/mod_clients_windows10_1909/bootstrap.yml"}},
		},
	}}
}

func TestRenderInventory(t *testing.T) {
	t.Parallel()

	out, err := RenderInventory(sampleInventory())
	require.NoError(t, err)

	var parsed inventoryFile
	require.NoError(t, yaml.Unmarshal(out, &parsed))
	require.Len(t, parsed.All.Children, 3)

	dhcp := parsed.All.Children["services_ubuntu_dhcp"]
	assert.Equal(t, map[string]any{"hostname": "dhcp1", "ansible_host": "192.168.122.10"}, dhcp.Hosts["dhcp1"])
	assert.Equal(t, "ssh", dhcp.Vars["ansible_connection"])
	assert.Equal(t, "admin", dhcp.Vars["ansible_user"])
	assert.Equal(t, true, dhcp.Vars["ansible_become"])
	assert.Equal(t, "sudo", dhcp.Vars["ansible_become_method"])
	assert.Equal(t, "root", dhcp.Vars["ansible_become_user"])
	assert.Equal(t, "corp1.lab", dhcp.Vars["domain"])

	vyos := parsed.All.Children["networking_vyos"]
	assert.Equal(t, "network_cli", vyos.Vars["ansible_connection"])
	assert.Equal(t, "vyos", vyos.Vars["ansible_network_os"])
	assert.NotContains(t, vyos.Vars, "ansible_become")

	win := parsed.All.Children["clients_windows10_1909"]
	assert.Equal(t, "ignore", win.Vars["ansible_winrm_server_cert_validation"])
	assert.NotContains(t, win.Vars, "ansible_user")
}

func TestRenderInventory_DoesNotMutateHostVars(t *testing.T) {
	t.Parallel()
	inv := sampleInventory()

	_, err := RenderInventory(inv)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"hostname": "dhcp1"}, inv.Groups[0].Hosts[0].Vars)
	assert.Equal(t, map[string]any{"domain": "corp1.lab"}, inv.Groups[0].GlobalVars)
}

func TestRenderPlaybook(t *testing.T) {
	t.Parallel()

	out, err := RenderPlaybook(sampleInventory(), modules.TaskBootstrap)
	require.NoError(t, err)

	var plays []play
	require.NoError(t, yaml.Unmarshal(out, &plays))
	require.Len(t, plays, 2)
	assert.Equal(t, "services_ubuntu_dhcp", plays[0].Hosts)
	assert.Equal(t, "services.ubuntu_dhcp bootstrap", plays[0].Name)
	assert.False(t, plays[0].GatherFacts)
	assert.Equal(t, []map[string]any{{"ansible.builtin.import_tasks": "/out/mod_services_ubuntu_dhcp/bootstrap.yml"}}, plays[0].Tasks)
	assert.Equal(t, "clients_windows10_1909", plays[1].Hosts)

	_, err = RenderPlaybook(sampleInventory(), modules.TaskPost)
	assert.Error(t, err)
}

// fakeAnsible writes a script that records its arguments and exits with code.
func fakeAnsible(t *testing.T, code string) (binary, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	binary = filepath.Join(dir, "ansible-playbook")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\necho \"host key checking: $ANSIBLE_HOST_KEY_CHECKING\"\nexit " + code + "\n"
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o700))
	return binary, argsFile
}

func TestPusher_Apply(t *testing.T) {
	t.Parallel()
	binary, argsFile := fakeAnsible(t, "0")
	var output bytes.Buffer
	p := NewPusher(config.AnsibleConfig{Binary: binary, ExtraArgs: []string{"-v"}}, &output)
	req := provisioning.PushRequest{
		Name:      "corp1_services_bootstrap",
		Inventory: sampleInventory(),
		TaskSet:   modules.TaskBootstrap,
		WorkDir:   filepath.Join(t.TempDir(), "corp1", "bootstrap"),
	}

	code, err := p.Apply(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 0, code)

	inv, book := Files(req)
	assert.Equal(t, "corp1_services_bootstrap_inventory.yml", filepath.Base(inv))
	assert.Equal(t, "corp1_services_bootstrap_bootstrap_playbook.yml", filepath.Base(book))
	assert.FileExists(t, inv)
	assert.FileExists(t, book)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-i "+inv+" -v "+book, strings.TrimSpace(string(args)))
	assert.Contains(t, output.String(), "host key checking: False")
}

func TestPusher_ApplyReportsExitCode(t *testing.T) {
	t.Parallel()
	binary, _ := fakeAnsible(t, "4")
	p := &Pusher{Binary: binary}

	code, err := p.Apply(context.Background(), provisioning.PushRequest{
		Name: "routers", Inventory: sampleInventory(), TaskSet: modules.TaskReboot, WorkDir: t.TempDir(),
	})

	require.NoError(t, err)
	assert.Equal(t, 4, code)
}

func TestPusher_ApplyMissingBinary(t *testing.T) {
	t.Parallel()
	p := &Pusher{Binary: filepath.Join(t.TempDir(), "missing")}

	_, err := p.Apply(context.Background(), provisioning.PushRequest{
		Name: "routers", Inventory: sampleInventory(), TaskSet: modules.TaskReboot, WorkDir: t.TempDir(),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "run ")
}
