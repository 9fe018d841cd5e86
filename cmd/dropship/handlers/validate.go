package handlers

import (
	"context"

	"github.com/imamik/dropship/internal/orchestration"
	"github.com/imamik/dropship/internal/provisioning"
)

// Validate parses every input and runs the builder pre-flight checks. No
// provider is contacted.
func Validate(_ context.Context, opts TopologyOptions) error {
	ws, err := loadWorkspace(opts)
	if err != nil {
		return err
	}

	b, err := ws.newBuilder(nil, nil, nil, orchestrationQuiet()...)
	if err != nil {
		return err
	}
	if err := b.Preflight(); err != nil {
		return err
	}

	for _, tool := range checkTools(ws.config).Missing {
		printf("warning: %s not found: %s\n", tool.Name, tool.Description)
	}

	hosts := 0
	for _, inst := range ws.topology.Instances {
		hosts += len(inst.Hosts())
	}
	printf("OK: %d definitions, %d instances, %d hosts, %d routers\n",
		len(ws.topology.Definitions), len(ws.topology.Instances), hosts, len(b.Routers()))
	return nil
}

// orchestrationQuiet configures a builder used for inspection only.
func orchestrationQuiet() []orchestration.Option {
	return []orchestration.Option{orchestration.WithObserver(quietObserver{})}
}

// quietObserver discards everything.
type quietObserver struct{}

func (quietObserver) Printf(string, ...any)                                {}
func (quietObserver) Event(provisioning.Event)                             {}
func (quietObserver) Progress(string, int, int)                            {}
func (q quietObserver) WithFields(map[string]string) provisioning.Observer { return q }
