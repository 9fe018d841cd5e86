package provisioning_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/provisioning"
	"github.com/imamik/dropship/internal/state"
	dstesting "github.com/imamik/dropship/internal/testing"
	"github.com/imamik/dropship/internal/topology"
)

type recordingHook struct {
	dirs []string
}

func (h *recordingHook) BeforePost(_ context.Context, _ *modules.Descriptor, dir string) error {
	h.dirs = append(h.dirs, dir)
	return nil
}

func deployAll(t *testing.T, lab *dstesting.Lab, inst *topology.NetworkInstance) {
	t.Helper()
	lab.Pusher.Leases = map[string]string{dstesting.MACFor(102, 0): "10.7.5.100"}
	bootstrapAll(t, lab, inst)
	ctx := lab.Context(t)
	require.NoError(t, provisioning.DeployGroup(ctx, inst, topology.GroupServices))
	require.NoError(t, provisioning.DeployGroup(ctx, inst, topology.GroupClients))
}

func TestValidatePost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target topology.PostTarget
		ok     bool
	}{
		{"valid", topology.PostTarget{Hostname: "ws2", Module: "post.windows.config.localadmin", Vars: map[string]string{"username": "x"}}, true},
		{"no vars needed", topology.PostTarget{Hostname: "ws2", Module: "post.windows.config.rsat"}, true},
		{"missing var", topology.PostTarget{Hostname: "ws2", Module: "post.windows.config.localadmin"}, false},
		{"unknown host", topology.PostTarget{Hostname: "ws9", Module: "post.windows.config.rsat"}, false},
		{"unknown module", topology.PostTarget{Hostname: "ws2", Module: "post.nope"}, false},
		{"not a post module", topology.PostTarget{Hostname: "ws2", Module: "clients.rocky8"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lab := dstesting.NewLab(t)
			lab.Corp.PostTargets = []topology.PostTarget{tt.target}
			inst := lab.Instance(t, "corp1", "vmbr10", "7")

			err := provisioning.ValidatePost(lab.Registry, inst)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, provisioning.ErrConfiguration)
		})
	}
}

func TestRunPost(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	hook := &recordingHook{}
	d, err := lab.Registry.Get("post.windows.config.localadmin")
	require.NoError(t, err)
	d.Hook = hook
	inst := lab.Instance(t, "corp1", "vmbr10", "7")
	deployAll(t, lab, inst)

	require.NoError(t, provisioning.RunPost(lab.Context(t), inst))

	push, ok := lab.Pusher.Find("corp1_post/post")
	require.True(t, ok)
	alias := "post_windows_config_localadmin_ws2"
	assert.Equal(t, map[string]string{alias: "10.7.5.21"}, push.Hosts)
	assert.Equal(t, "labadmin", push.Vars[alias]["username"])
	assert.Equal(t, "ws2", push.Vars[alias]["hostname"])

	group, ok := push.Inventory.Group("post.windows.config.localadmin")
	require.True(t, ok)
	assert.Equal(t, "winrm", group.ConnectionMethod)
	assert.Equal(t, "runas", group.Credentials.BecomeMethod)

	assert.Equal(t, []string{filepath.Join(lab.Config.OutputDir, "mod_post_windows_config_localadmin")}, hook.dirs)

	ledger, err := state.Open(filepath.Join(lab.Config.OutputDir, "corp1", "post", "post.state"))
	require.NoError(t, err)
	assert.True(t, ledger.IsDone())
	assert.Equal(t, []string{"dhcp1", "dc1", "ws1", "ws2"}, ledger.Names())
	assert.Equal(t, "10.7.5.100", ledger.IP("ws1"))
}

func TestRunPost_RequiresDeploy(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	inst := lab.Instance(t, "corp1", "vmbr10", "7")
	bootstrapAll(t, lab, inst)

	err := provisioning.RunPost(lab.Context(t), inst)

	require.ErrorIs(t, err, provisioning.ErrPhaseOrder)
}

func TestRunPost_InvalidTargetBeforeSideEffects(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	lab.Corp.PostTargets[0].Vars = nil
	inst := lab.Instance(t, "corp1", "vmbr10", "7")

	err := provisioning.RunPost(lab.Context(t), inst)

	require.ErrorIs(t, err, provisioning.ErrConfiguration)
	assert.Empty(t, lab.Pusher.Pushes)
	assert.NoDirExists(t, filepath.Join(lab.Config.OutputDir, "corp1", "post"))
}

func TestPhases_RunFullInstance(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	lab.Pusher.Leases = map[string]string{dstesting.MACFor(102, 0): "10.7.5.100"}
	inst := lab.Instance(t, "corp1", "vmbr10", "7")
	instances := []*topology.NetworkInstance{inst}

	err := provisioning.RunPhases(lab.Context(t), []provisioning.Phase{
		&provisioning.RouterPhase{},
		&provisioning.BootstrapPhase{Instances: instances},
		&provisioning.DeployPhase{Instances: instances},
		&provisioning.PostPhase{Instances: instances},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"corp1_services_bootstrap/bootstrap",
		"corp1_services_bootstrap/reboot",
		"corp1_clients_bootstrap/bootstrap",
		"corp1_clients_bootstrap/reboot",
		"corp1_services_deploy/deploy",
		"corp1_dhcp_collect/dhcp-collect",
		"corp1_clients_deploy/deploy",
		"corp1_post/post",
	}, lab.Pusher.Keys())
}

func TestPhases_ParallelInstances(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	lab.Corp.Hosts = lab.Corp.Hosts[:2]
	lab.Corp.PostTargets = nil
	a := lab.Instance(t, "corp1", "vmbr10", "7")
	b := lab.Instance(t, "corp2", "vmbr20", "8")

	err := provisioning.RunPhases(lab.Context(t), []provisioning.Phase{
		&provisioning.BootstrapPhase{Instances: []*topology.NetworkInstance{a, b}, Parallel: true},
		&provisioning.DeployPhase{Instances: []*topology.NetworkInstance{a, b}, Parallel: true},
	})
	require.NoError(t, err)

	assert.Len(t, lab.Provider.CallsWithPrefix("clone"), 4)
	_, ok := lab.Pusher.Find("corp1_services_deploy/deploy")
	assert.True(t, ok)
	_, ok = lab.Pusher.Find("corp2_services_deploy/deploy")
	assert.True(t, ok)
}
