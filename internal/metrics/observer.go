package metrics

import (
	"maps"

	"github.com/imamik/dropship/internal/provisioning"
)

// Observer feeds provisioning events into Metrics. Printf output is
// discarded.
type Observer struct {
	m      *Metrics
	fields map[string]string
}

// NewObserver returns an Observer recording into m.
func NewObserver(m *Metrics) *Observer {
	return &Observer{m: m}
}

// Printf implements provisioning.Logger.
func (o *Observer) Printf(string, ...any) {}

// Event implements provisioning.Observer.
func (o *Observer) Event(event provisioning.Event) {
	if event.Fields == nil {
		event.Fields = map[string]string{}
	}
	for k, v := range o.fields {
		if _, ok := event.Fields[k]; !ok {
			event.Fields[k] = v
		}
	}
	o.m.record(event)
}

// Progress implements provisioning.Observer.
func (o *Observer) Progress(phase string, current, total int) {
	o.m.recordProgress(phase, current, total)
}

// WithFields implements provisioning.Observer.
func (o *Observer) WithFields(fields map[string]string) provisioning.Observer {
	merged := make(map[string]string, len(o.fields)+len(fields))
	maps.Copy(merged, o.fields)
	maps.Copy(merged, fields)
	return &Observer{m: o.m, fields: merged}
}
