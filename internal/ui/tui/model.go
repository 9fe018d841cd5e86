package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/dropship/internal/provisioning"
)

// maxLogLines bounds the recent activity list.
const maxLogLines = 8

// PhaseRow is one build phase for display.
type PhaseRow struct {
	Name    string
	Done    bool
	Active  bool
	Skipped bool
	Err     error
}

// Model is the Bubble Tea model of a running build.
type Model struct {
	Title  string
	Phases []PhaseRow

	// Host progress of the active phase
	Current int
	Total   int

	Log       []string
	StartTime time.Time

	SpinnerFrame int

	Width  int
	Height int
	Err    error
	Done   bool
}

// NewBuildModel creates a model for the given phase names in run order.
func NewBuildModel(title string, phases []string) Model {
	rows := make([]PhaseRow, len(phases))
	for i, p := range phases {
		rows[i] = PhaseRow{Name: p}
	}
	return Model{Title: title, Phases: rows, StartTime: time.Now()}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case EventMsg:
		m.applyEvent(msg.Event)

	case ProgressMsg:
		m.Current, m.Total = msg.Current, msg.Total

	case TickMsg:
		m.SpinnerFrame++
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		m.Done = true
		for i := range m.Phases {
			if !m.Phases[i].Skipped {
				m.Phases[i].Done = true
			}
			m.Phases[i].Active = false
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) applyEvent(e provisioning.Event) {
	name := phaseName(e.Phase)
	switch e.Type {
	case provisioning.EventPhaseStarted:
		m.setPhase(name, func(r *PhaseRow) { r.Active = true })
		m.Current, m.Total = 0, 0
		return
	case provisioning.EventPhaseCompleted:
		m.setPhase(name, func(r *PhaseRow) { r.Active, r.Done = false, true })
		return
	case provisioning.EventPhaseFailed:
		m.setPhase(name, func(r *PhaseRow) { r.Active, r.Err = false, fmt.Errorf("%s", e.Message) })
	}
	m.appendLog(formatLogLine(e))
}

// setPhase applies fn to the named row and marks earlier rows done.
func (m *Model) setPhase(name string, fn func(*PhaseRow)) {
	idx := -1
	for i := range m.Phases {
		if m.Phases[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for i := 0; i < idx; i++ {
		if !m.Phases[i].Done && !m.Phases[i].Active && m.Phases[i].Err == nil {
			m.Phases[i].Skipped = true
		}
		m.Phases[i].Active = false
	}
	fn(&m.Phases[idx])
}

func (m *Model) appendLog(line string) {
	if line == "" {
		return
	}
	m.Log = append(m.Log, line)
	if len(m.Log) > maxLogLines {
		m.Log = m.Log[len(m.Log)-maxLogLines:]
	}
}

// phaseName strips the "(i/n)" position suffix of pipeline phase names.
func phaseName(phase string) string {
	name, _, _ := strings.Cut(phase, " ")
	return name
}

func formatLogLine(e provisioning.Event) string {
	var b strings.Builder
	if e.Phase != "" {
		fmt.Fprintf(&b, "[%s] ", phaseName(e.Phase))
	}
	if inst := e.Fields["instance"]; inst != "" {
		b.WriteString(inst)
		if g := e.Fields["group"]; g != "" {
			b.WriteString("/" + g)
		}
		b.WriteString(" ")
	}
	if e.Resource != "" {
		b.WriteString(e.Resource + ": ")
	}
	b.WriteString(e.Message)
	return strings.TrimSpace(b.String())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
