package provisioning_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/dropship/internal/addressing"
	"github.com/imamik/dropship/internal/provisioning"
	"github.com/imamik/dropship/internal/state"
	dstesting "github.com/imamik/dropship/internal/testing"
	"github.com/imamik/dropship/internal/topology"
)

func deployLedger(lab *dstesting.Lab, inst, group string) string {
	return filepath.Join(lab.Config.OutputDir, inst, "deploy", group+".state")
}

// bootstrapAll bootstraps both groups of inst; services get vmids 100 and
// 101, clients ws1=102 and ws2=103.
func bootstrapAll(t *testing.T, lab *dstesting.Lab, inst *topology.NetworkInstance) {
	t.Helper()
	ctx := lab.Context(t)
	require.NoError(t, provisioning.BootstrapGroup(ctx, inst, topology.GroupServices))
	require.NoError(t, provisioning.BootstrapGroup(ctx, inst, topology.GroupClients))
}

func TestDeployGroup_RequiresBootstrap(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	inst := lab.Instance(t, "corp1", "vmbr10", "7")

	err := provisioning.DeployGroup(lab.Context(t), inst, topology.GroupServices)

	require.ErrorIs(t, err, provisioning.ErrPhaseOrder)
	assert.Empty(t, lab.Pusher.Pushes)
}

func TestDeployGroup_StaticHostsUseFinalAddress(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	inst := lab.Instance(t, "corp1", "vmbr10", "7")
	bootstrapAll(t, lab, inst)

	require.NoError(t, provisioning.DeployGroup(lab.Context(t), inst, topology.GroupServices))

	push, ok := lab.Pusher.Find("corp1_services_deploy/deploy")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"dhcp1": "10.7.5.3", "dc1": "10.7.5.10"}, push.Hosts)
	assert.Equal(t, "10.7.5.10", push.Vars["dc1"]["ip"])

	group, _ := push.Inventory.Group("domain.ubuntu_dc_20_04")
	assert.Equal(t, "10.7.5.10", group.GlobalVars["dns_server"])

	ledger, err := state.Open(deployLedger(lab, "corp1", "services"))
	require.NoError(t, err)
	assert.True(t, ledger.IsDone())
	assert.Equal(t, "10.7.5.3", ledger.IP("dhcp1"))
	assert.Equal(t, 100, ledger.VMID("dhcp1"))
	assert.Equal(t, dstesting.MACFor(101, 0), ledger.MAC("dc1"))
}

func TestDeployGroup_HarvestsDHCPClients(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	lab.Pusher.Leases = map[string]string{dstesting.MACFor(102, 0): "10.7.5.100"}
	inst := lab.Instance(t, "corp1", "vmbr10", "7")
	bootstrapAll(t, lab, inst)
	require.NoError(t, provisioning.DeployGroup(lab.Context(t), inst, topology.GroupServices))

	require.NoError(t, provisioning.DeployGroup(lab.Context(t), inst, topology.GroupClients))

	collect, ok := lab.Pusher.Find("corp1_dhcp_collect/dhcp-collect")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"dhcp1": "10.7.5.3"}, collect.Hosts)
	assert.Equal(t, filepath.Join(collect.WorkDir, provisioning.DHCPTableFile), collect.Vars["dhcp1"]["dhcp_table_path"])

	push, ok := lab.Pusher.Find("corp1_clients_deploy/deploy")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"ws1": "10.7.5.100", "ws2": "10.7.5.21"}, push.Hosts)
	assert.Equal(t, true, push.Vars["ws1"]["target_dhcp"])

	ledger, err := state.Open(deployLedger(lab, "corp1", "clients"))
	require.NoError(t, err)
	assert.True(t, ledger.IsDone())
	assert.Equal(t, "10.7.5.100", ledger.IP("ws1"))
	assert.Equal(t, "10.7.5.21", ledger.IP("ws2"))
}

func TestDeployGroup_HarvestWithoutTimeouts(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	lab.Pusher.Leases = map[string]string{dstesting.MACFor(102, 0): "10.7.5.100"}
	inst := lab.Instance(t, "corp1", "vmbr10", "7")
	bootstrapAll(t, lab, inst)
	require.NoError(t, provisioning.DeployGroup(lab.Context(t), inst, topology.GroupServices))

	ctx := lab.Context(t)
	ctx.Timeouts = nil
	require.NoError(t, provisioning.DeployGroup(ctx, inst, topology.GroupClients))

	ledger, err := state.Open(deployLedger(lab, "corp1", "clients"))
	require.NoError(t, err)
	assert.Equal(t, "10.7.5.100", ledger.IP("ws1"))
}

func TestDeployGroup_HarvestRetriesUntilLeased(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	lab.Pusher.LeaseFunc = func(attempt int) map[string]string {
		if attempt < 2 {
			return nil
		}
		return map[string]string{strings.ToUpper(dstesting.MACFor(102, 0)): "10.7.5.101"}
	}
	inst := lab.Instance(t, "corp1", "vmbr10", "7")
	bootstrapAll(t, lab, inst)

	require.NoError(t, provisioning.DeployGroup(lab.Context(t), inst, topology.GroupClients))

	collects := 0
	for _, k := range lab.Pusher.Keys() {
		if k == "corp1_dhcp_collect/dhcp-collect" {
			collects++
		}
	}
	assert.Equal(t, 2, collects)
	push, _ := lab.Pusher.Find("corp1_clients_deploy/deploy")
	assert.Equal(t, "10.7.5.101", push.Hosts["ws1"])
}

func TestDeployGroup_HarvestExhausted(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	inst := lab.Instance(t, "corp1", "vmbr10", "7")
	bootstrapAll(t, lab, inst)

	err := provisioning.DeployGroup(lab.Context(t), inst, topology.GroupClients)

	require.ErrorIs(t, err, addressing.ErrTimeout)
	var te *addressing.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "dhcp harvest", te.Op)
	assert.Equal(t, 3, te.Attempts)
	require.Len(t, te.Pending, 1)
	assert.Contains(t, te.Pending[0], "ws1")

	_, deployed := lab.Pusher.Find("corp1_clients_deploy/deploy")
	assert.False(t, deployed)
	assert.NoFileExists(t, deployLedger(lab, "corp1", "clients")+".done")
}

func TestDeployGroup_NoDHCPServer(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	lab.Corp.Hosts = lab.Corp.Hosts[1:]
	inst := lab.Instance(t, "corp1", "vmbr10", "7")
	ctx := lab.Context(t)
	require.NoError(t, provisioning.BootstrapGroup(ctx, inst, topology.GroupClients))

	err := provisioning.DeployGroup(ctx, inst, topology.GroupClients)

	require.ErrorIs(t, err, provisioning.ErrNoDHCPServer)
	var pe *provisioning.PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, provisioning.PhaseDeploy, pe.Phase)
	assert.Equal(t, topology.GroupClients, pe.Group)
}

func TestDeployGroup_DoneIsNoop(t *testing.T) {
	t.Parallel()
	lab := dstesting.NewLab(t)
	inst := lab.Instance(t, "corp1", "vmbr10", "7")
	bootstrapAll(t, lab, inst)
	require.NoError(t, provisioning.DeployGroup(lab.Context(t), inst, topology.GroupServices))
	pushes := len(lab.Pusher.Pushes)

	again := lab.Instance(t, "corp1", "vmbr10", "7")
	require.NoError(t, provisioning.DeployGroup(lab.Context(t), again, topology.GroupServices))

	assert.Len(t, lab.Pusher.Pushes, pushes)
	dc, _ := again.Host("dc1")
	assert.Equal(t, "10.7.5.10", dc.ConnectIP)
}
