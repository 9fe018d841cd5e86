package tui

import (
	"context"
	"fmt"
	"maps"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/dropship/internal/provisioning"
)

// Observer forwards provisioning events to a running program.
type Observer struct {
	send   func(tea.Msg)
	fields map[string]string
}

// NewObserver returns an Observer delivering messages through send.
func NewObserver(send func(tea.Msg)) *Observer {
	return &Observer{send: send}
}

// Printf implements provisioning.Logger. Free-form lines are not shown.
func (o *Observer) Printf(string, ...any) {}

// Event implements provisioning.Observer.
func (o *Observer) Event(event provisioning.Event) {
	merged := maps.Clone(o.fields)
	if merged == nil {
		merged = map[string]string{}
	}
	maps.Copy(merged, event.Fields)
	event.Fields = merged
	o.send(EventMsg{Event: event})
}

// Progress implements provisioning.Observer.
func (o *Observer) Progress(phase string, current, total int) {
	o.send(ProgressMsg{Phase: phase, Current: current, Total: total})
}

// WithFields implements provisioning.Observer.
func (o *Observer) WithFields(fields map[string]string) provisioning.Observer {
	merged := make(map[string]string, len(o.fields)+len(fields))
	maps.Copy(merged, o.fields)
	maps.Copy(merged, fields)
	return &Observer{send: o.send, fields: merged}
}

// RunBuildTUI runs build under a Bubble Tea view. build receives an
// Observer wired to the view and runs in the background; its error is
// returned once the program exits.
func RunBuildTUI(ctx context.Context, title string, phases []string, build func(ctx context.Context, obs provisioning.Observer) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewBuildModel(title, phases)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	result := make(chan error, 1)
	go func() {
		err := build(ctx, NewObserver(p.Send))
		result <- err
		if err != nil {
			p.Send(ErrMsg{Err: err})
			return
		}
		p.Send(DoneMsg{})
	}()

	finalModel, err := p.Run()
	// quitting the view cancels the build
	cancel()
	buildErr := <-result
	if buildErr != nil {
		return buildErr
	}
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	if fm, ok := finalModel.(Model); ok && fm.Err != nil {
		return fm.Err
	}
	return nil
}
