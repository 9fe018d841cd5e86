package provisioning

import (
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"time"
)

// Logger is the printf-style logging surface.
type Logger interface {
	Printf(format string, v ...any)
}

// Observer defines the interface for structured observability during provisioning.
type Observer interface {
	Logger

	// Event emits a structured event
	Event(event Event)

	// Progress reports progress for a phase
	Progress(phase string, current, total int)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Phase name (e.g., "routers", "bootstrap")
	Message   string            // Human-readable message
	Resource  string            // Resource name/ID if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	// EventPhaseStarted indicates a provisioning phase has started.
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseCompleted indicates a provisioning phase completed successfully.
	EventPhaseCompleted EventType = "phase.completed"
	// EventPhaseFailed indicates a provisioning phase failed.
	EventPhaseFailed EventType = "phase.failed"
	// EventPhaseSkipped indicates a phase whose ledger is already done.
	EventPhaseSkipped EventType = "phase.skipped"

	// EventGroupState indicates a host group entered a new state.
	EventGroupState EventType = "group.state"

	// EventResourceCreated indicates a resource was created successfully.
	EventResourceCreated EventType = "resource.created"

	// EventVMCloned indicates a VM was cloned from its template.
	EventVMCloned EventType = "vm.cloned"
	// EventVMAttached indicates a VM NIC was attached to a switch.
	EventVMAttached EventType = "vm.attached"
	// EventVMStarted indicates a VM was powered on.
	EventVMStarted EventType = "vm.started"
	// EventVMSnapshot indicates a VM snapshot was taken.
	EventVMSnapshot EventType = "vm.snapshot"

	// EventAddressResolved indicates a host received its address.
	EventAddressResolved EventType = "address.resolved"

	// EventPushStarted indicates a configuration push started.
	EventPushStarted EventType = "push.started"
	// EventPushCompleted indicates a configuration push succeeded.
	EventPushCompleted EventType = "push.completed"
	// EventPushFailed indicates a configuration push failed.
	EventPushFailed EventType = "push.failed"

	// EventValidationError indicates a validation error.
	EventValidationError EventType = "validation.error"

	// EventProgress indicates progress in a long-running operation.
	EventProgress EventType = "progress"
)

// ConsoleObserver implements Observer using standard log package.
type ConsoleObserver struct {
	contextFields map[string]string
}

// NewConsoleObserver creates a new console-based observer.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{
		contextFields: make(map[string]string),
	}
}

// Printf implements Logger.
func (o *ConsoleObserver) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// Event implements Observer interface.
func (o *ConsoleObserver) Event(event Event) {
	event = mergeContext(event, o.contextFields)
	log.Print(formatEvent(event))
}

// Progress implements Observer interface.
func (o *ConsoleObserver) Progress(phase string, current, total int) {
	if total == 0 {
		log.Printf("[%s] Progress: %d/%d", phase, current, total)
		return
	}
	percentage := (current * 100) / total
	log.Printf("[%s] Progress: %d/%d (%d%%)", phase, current, total, percentage)
}

// WithFields implements Observer interface.
func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	return &ConsoleObserver{contextFields: mergeFields(o.contextFields, fields)}
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

// NewMultiObserver drops nil observers.
func NewMultiObserver(observers ...Observer) MultiObserver {
	out := make(MultiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// Printf implements Logger.
func (m MultiObserver) Printf(format string, v ...any) {
	for _, o := range m {
		o.Printf(format, v...)
	}
}

// Event implements Observer.
func (m MultiObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, o := range m {
		e := event
		e.Fields = maps.Clone(event.Fields)
		o.Event(e)
	}
}

// Progress implements Observer.
func (m MultiObserver) Progress(phase string, current, total int) {
	for _, o := range m {
		o.Progress(phase, current, total)
	}
}

// WithFields implements Observer.
func (m MultiObserver) WithFields(fields map[string]string) Observer {
	out := make(MultiObserver, len(m))
	for i, o := range m {
		out[i] = o.WithFields(fields)
	}
	return out
}

func mergeFields(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}

// mergeContext stamps the event and adds context fields not already set.
func mergeContext(event Event, ctxFields map[string]string) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Fields == nil {
		event.Fields = make(map[string]string)
	}
	for k, v := range ctxFields {
		if _, exists := event.Fields[k]; !exists {
			event.Fields[k] = v
		}
	}
	return event
}

// formatEvent formats an event for console output.
func formatEvent(event Event) string {
	var parts []string

	parts = append(parts, string(event.Type))

	if event.Phase != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Phase))
	}

	if event.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", event.Resource))
	}

	parts = append(parts, event.Message)

	if len(event.Fields) > 0 {
		keys := slices.Sorted(maps.Keys(event.Fields))
		fieldParts := make([]string, 0, len(keys))
		for _, k := range keys {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, event.Fields[k]))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}

	return strings.Join(parts, " ")
}

// Helper functions for common events

// LogPhaseStart logs a phase start event.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{
		Type:    EventPhaseStarted,
		Phase:   phase,
		Message: "starting",
	})
}

// LogPhaseComplete logs a phase completion event.
func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
		Fields:  map[string]string{"duration_ms": fmt.Sprint(duration.Milliseconds())},
	})
}

// LogPhaseFailed logs a phase failure event.
func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{
		Type:    EventPhaseFailed,
		Phase:   phase,
		Message: fmt.Sprintf("failed: %v", err),
	})
}

// LogPhaseSkipped logs a phase whose ledger is already done.
func LogPhaseSkipped(observer Observer, phase, ledger string) {
	observer.Event(Event{
		Type:     EventPhaseSkipped,
		Phase:    phase,
		Resource: ledger,
		Message:  "already completed",
	})
}

// LogGroupState logs a group state transition.
func LogGroupState(observer Observer, phase string, s GroupState) {
	observer.Event(Event{
		Type:    EventGroupState,
		Phase:   phase,
		Message: s.String(),
		Fields:  map[string]string{"state": s.String()},
	})
}

// LogResourceCreated logs a successful resource creation event.
func LogResourceCreated(observer Observer, phase, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceCreated,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s ready", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogVM logs a VM lifecycle event.
func LogVM(observer Observer, eventType EventType, phase, host string, vmid int, msg string) {
	observer.Event(Event{
		Type:     eventType,
		Phase:    phase,
		Resource: host,
		Message:  msg,
		Fields:   map[string]string{"vmid": fmt.Sprint(vmid)},
	})
}

// LogAddressResolved logs a host receiving its address.
func LogAddressResolved(observer Observer, phase, host, mac, ip string) {
	observer.Event(Event{
		Type:     EventAddressResolved,
		Phase:    phase,
		Resource: host,
		Message:  ip,
		Fields:   map[string]string{"mac": mac, "ip": ip},
	})
}
