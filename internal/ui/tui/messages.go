// Package tui renders build progress in the terminal: a Bubble Tea view of
// a running build and lipgloss tables for ledger status and run history.
package tui

import "github.com/imamik/dropship/internal/provisioning"

// EventMsg carries a provisioning event.
type EventMsg struct {
	Event provisioning.Event
}

// ProgressMsg reports host progress within a phase.
type ProgressMsg struct {
	Phase   string
	Current int
	Total   int
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg carries an error.
type ErrMsg struct{ Err error }

// DoneMsg signals that the build is complete.
type DoneMsg struct{}
