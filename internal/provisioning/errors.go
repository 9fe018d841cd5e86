package provisioning

import (
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/topology"
)

var (
	// ErrConfiguration marks errors detected before any side effect.
	ErrConfiguration = errors.New("configuration error")

	// ErrIncompleteLedger is returned when an unfinished ledger lacks a vmid
	// or MAC. The VMs it names need operator cleanup; they are never re-cloned.
	ErrIncompleteLedger = errors.New("incomplete ledger")

	// ErrPhaseOrder is returned when a phase runs before its predecessor is done.
	ErrPhaseOrder = errors.New("previous phase not complete")

	// ErrNoDHCPServer is returned when DHCP hosts exist but no dhcp-role host does.
	ErrNoDHCPServer = errors.New("no dhcp server in instance")
)

// ProviderError wraps a failed hypervisor call.
type ProviderError struct {
	Op   string
	VMID int
	Host string
	Err  error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("provider ")
	b.WriteString(e.Op)
	if e.Host != "" {
		fmt.Fprintf(&b, " host=%s", e.Host)
	}
	if e.VMID != 0 {
		fmt.Fprintf(&b, " vmid=%d", e.VMID)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ConfigPushError reports a failed configuration push.
type ConfigPushError struct {
	Name     string
	TaskSet  modules.TaskSet
	ExitCode int
	Err      error
}

func (e *ConfigPushError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config push %s (%s): %v", e.Name, e.TaskSet, e.Err)
	}
	return fmt.Sprintf("config push %s (%s) exited with code %d", e.Name, e.TaskSet, e.ExitCode)
}

func (e *ConfigPushError) Unwrap() error { return e.Err }

// PhaseError names where a run stopped.
type PhaseError struct {
	Phase    string
	Instance string
	Group    topology.Group
	Host     string
	Err      error
}

func (e *PhaseError) Error() string {
	parts := []string{"phase " + e.Phase}
	if e.Instance != "" {
		parts = append(parts, "instance "+e.Instance)
	}
	if e.Group != "" {
		parts = append(parts, "group "+string(e.Group))
	}
	if e.Host != "" {
		parts = append(parts, "host "+e.Host)
	}
	return fmt.Sprintf("%s: %v", strings.Join(parts, ", "), e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// configErr returns an error matching ErrConfiguration.
func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// hostOf extracts the host name carried by err, if any.
func hostOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Host
	}
	return ""
}
