package provisioning

import (
	"context"

	"github.com/imamik/dropship/internal/modules"
)

// NIC is a virtual network card as reported by the hypervisor.
type NIC struct {
	MAC      string
	SwitchID string
}

// Provider is the hypervisor capability.
type Provider interface {
	// CloneVM clones a template and returns the new VM id.
	CloneVM(ctx context.Context, imageRef, displayName string) (int, error)

	// StartVM powers a VM on.
	StartVM(ctx context.Context, vmid int) error

	// SetInterface attaches NIC index of a VM to a switch.
	SetInterface(ctx context.Context, vmid, index int, switchID string) error

	// GetInterface reports NIC index of a VM.
	GetInterface(ctx context.Context, vmid, index int) (NIC, error)

	// SnapshotVM snapshots a VM under label.
	SnapshotVM(ctx context.Context, vmid int, label string) error

	// WaitForOutstandingTasks blocks until no hypervisor task started by this
	// client is still running.
	WaitForOutstandingTasks(ctx context.Context) error

	// CreateSwitch ensures a switch exists. It is idempotent.
	CreateSwitch(ctx context.Context, switchID string) error
}

// PushRequest is one invocation of the configuration tool.
type PushRequest struct {
	// Name identifies the push; it names generated artifacts.
	Name      string
	Inventory *Inventory
	TaskSet   modules.TaskSet

	// WorkDir receives generated artifacts and any files the tasks collect.
	WorkDir string
}

// ConfigPusher is the configuration tool capability. A non-zero exit code
// with a nil error means the tool ran and reported failure.
type ConfigPusher interface {
	Apply(ctx context.Context, req PushRequest) (exitCode int, err error)
}

// AddressResolver maps MACs to IP addresses. It is satisfied by
// *addressing.Resolver.
type AddressResolver interface {
	Resolve(ctx context.Context, macs []string) (map[string]string, error)
}

// Phase defines the interface for a provisioning phase.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision executes the provisioning logic for this phase.
	Provision(ctx *Context) error
}
