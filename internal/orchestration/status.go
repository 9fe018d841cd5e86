package orchestration

import (
	"fmt"
	"path/filepath"

	"github.com/imamik/dropship/internal/state"
	"github.com/imamik/dropship/internal/topology"
	"github.com/imamik/dropship/internal/util/naming"
)

// Ledger progress values reported by Status.
const (
	LedgerPending    = "pending"
	LedgerInProgress = "in progress"
	LedgerDone       = "done"
)

// LedgerStatus is the persisted progress of one ledger.
type LedgerStatus struct {
	Instance string
	Stage    string
	Group    string
	Path     string
	Hosts    int
	State    string
}

// Status reads every ledger a build of the registered instances would
// write. It has no side effects and does not take the run lock.
func (b *Builder) Status() ([]LedgerStatus, error) {
	var out []LedgerStatus
	add := func(instance, stage, group, path string) error {
		l, err := state.Open(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		s := LedgerStatus{Instance: instance, Stage: stage, Group: group, Path: path, Hosts: len(l.Names()), State: LedgerPending}
		switch {
		case l.IsDone():
			s.State = LedgerDone
		case l.Exists():
			s.State = LedgerInProgress
		}
		out = append(out, s)
		return nil
	}

	root := b.config.OutputDir
	if len(b.Routers()) > 0 {
		if err := add("", "routers", "", filepath.Join(root, naming.RouterDir, naming.RouterLedger)); err != nil {
			return nil, err
		}
	}
	for _, inst := range b.instances {
		for _, stage := range []string{naming.BootstrapDir, naming.DeployDir} {
			for _, g := range []topology.Group{topology.GroupServices, topology.GroupClients} {
				if err := add(inst.Name, stage, string(g), filepath.Join(root, inst.Name, stage, naming.GroupLedger(string(g)))); err != nil {
					return nil, err
				}
			}
		}
		if err := add(inst.Name, naming.PostDir, "", filepath.Join(root, inst.Name, naming.PostDir, naming.PostLedger)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
