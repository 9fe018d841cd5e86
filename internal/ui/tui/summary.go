package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/dropship/internal/journal"
	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/orchestration"
	"github.com/imamik/dropship/internal/provisioning"
)

// RenderStatus renders ledger progress as a table.
func RenderStatus(rows []orchestration.LedgerStatus) string {
	if len(rows) == 0 {
		return dimStyle.Render("no instances defined") + "\n"
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		inst := r.Instance
		if inst == "" {
			inst = "-"
		}
		group := r.Group
		if group == "" {
			group = "-"
		}
		table = append(table, []string{inst, r.Stage, group, fmt.Sprint(r.Hosts), ledgerState(r.State)})
	}
	return renderTable([]string{"INSTANCE", "STAGE", "GROUP", "HOSTS", "STATE"}, table)
}

// RenderModules renders the module registry.
func RenderModules(mods []*modules.Descriptor) string {
	table := make([][]string, 0, len(mods))
	for _, d := range mods {
		table = append(table, []string{d.Name, string(d.Role), d.OSType, d.ConnectionMethod, d.Description})
	}
	return renderTable([]string{"MODULE", "ROLE", "OS", "CONNECTION", "DESCRIPTION"}, table)
}

// RenderHistory renders journal runs as a table.
func RenderHistory(runs []journal.Run) string {
	if len(runs) == 0 {
		return dimStyle.Render("no runs recorded") + "\n"
	}
	table := make([][]string, 0, len(runs))
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = formatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		table = append(table, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			runStatus(r.Status),
			fmt.Sprint(r.Events),
			r.Error,
		})
	}
	return renderTable([]string{"RUN", "STARTED", "DURATION", "STATUS", "EVENTS", "ERROR"}, table)
}

// RenderEvents renders the events of one run.
func RenderEvents(entries []journal.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		icon := sf(dimStyle)("  ")
		switch e.Type {
		case "phase.failed", "push.failed", "validation.error":
			icon = sf(failedStyle)("!!")
		case "phase.completed", "push.completed":
			icon = sf(readyStyle)("ok")
		}
		line := formatLogLine(toEvent(e))
		fmt.Fprintf(&b, "%s %s %s %s\n", dimStyle.Render(e.Timestamp.Local().Format(time.TimeOnly)), icon, activeStyle.Render(e.Type), line)
	}
	return b.String()
}

func toEvent(e journal.Entry) provisioning.Event {
	return provisioning.Event{
		Type:      provisioning.EventType(e.Type),
		Phase:     e.Phase,
		Message:   e.Message,
		Resource:  e.Resource,
		Timestamp: e.Timestamp,
		Fields:    e.Fields,
	}
}

func ledgerState(s string) string {
	switch s {
	case orchestration.LedgerDone:
		return readyStyle.Render(s)
	case orchestration.LedgerInProgress:
		return warningStyle.Render(s)
	default:
		return dimStyle.Render(s)
	}
}

func runStatus(s string) string {
	switch s {
	case journal.StatusSucceeded:
		return readyStyle.Render(s)
	case journal.StatusFailed:
		return failedStyle.Render(s)
	default:
		return warningStyle.Render(s)
	}
}

// renderTable pads every column to its widest cell.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	line := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = style.Width(widths[i] + 2).Render(c)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " "))
		b.WriteString("\n")
	}
	line(headers, headerCellStyle)
	for _, row := range rows {
		line(row, cellStyle)
	}
	return b.String()
}
