package journal

import (
	"context"
	"log"
	"maps"
	"sync"

	"github.com/imamik/dropship/internal/provisioning"
)

// Observer writes provisioning events to a Journal under one run ID.
// Write failures are logged once and otherwise ignored.
type Observer struct {
	j      *Journal
	runID  string
	fields map[string]string
	warned *sync.Once
}

// NewObserver returns an Observer recording into run runID.
func NewObserver(j *Journal, runID string) *Observer {
	return &Observer{j: j, runID: runID, warned: &sync.Once{}}
}

// Printf implements provisioning.Logger.
func (o *Observer) Printf(string, ...any) {}

// Event implements provisioning.Observer.
func (o *Observer) Event(event provisioning.Event) {
	merged := maps.Clone(o.fields)
	if merged == nil {
		merged = map[string]string{}
	}
	maps.Copy(merged, event.Fields)
	event.Fields = merged

	if err := o.j.Record(context.Background(), o.runID, event); err != nil {
		o.warned.Do(func() { log.Printf("journal: %v (further errors suppressed)", err) })
	}
}

// Progress implements provisioning.Observer.
func (o *Observer) Progress(string, int, int) {}

// WithFields implements provisioning.Observer.
func (o *Observer) WithFields(fields map[string]string) provisioning.Observer {
	merged := make(map[string]string, len(o.fields)+len(fields))
	maps.Copy(merged, o.fields)
	maps.Copy(merged, fields)
	return &Observer{j: o.j, runID: o.runID, fields: merged, warned: o.warned}
}
