package handlers

import (
	"context"

	"github.com/imamik/dropship/internal/ui/tui"
)

// Status prints the persisted ledger progress of every instance.
func Status(_ context.Context, opts TopologyOptions) error {
	ws, err := loadWorkspace(opts)
	if err != nil {
		return err
	}
	b, err := ws.newBuilder(nil, nil, nil, orchestrationQuiet()...)
	if err != nil {
		return err
	}
	rows, err := b.Status()
	if err != nil {
		return err
	}
	printf("%s", tui.RenderStatus(rows))
	return nil
}
