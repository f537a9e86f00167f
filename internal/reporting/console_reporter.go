package reporting

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"roboctl/pkg/logging"
)

// ConsoleReporter logs every service state change of a run via pkg/logging.
type ConsoleReporter struct {
	stateStore StateStore
}

// NewConsoleReporterWithStateStore creates a new ConsoleReporter with a specific state store
func NewConsoleReporterWithStateStore(stateStore StateStore) *ConsoleReporter {
	if stateStore == nil {
		stateStore = NewStateStore()
	}
	return &ConsoleReporter{stateStore: stateStore}
}

// Run logs state changes until ctx is done.
func (c *ConsoleReporter) Run(ctx context.Context) {
	sub := c.stateStore.Subscribe("")
	defer c.stateStore.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.Channel:
			if !ok {
				return
			}
			c.Report(change)
		}
	}
}

// Report logs a single state change
func (c *ConsoleReporter) Report(change StateChangeEvent) {
	snap := change.Snapshot
	subsystem := "Service-" + change.Name

	logMessage := "State: " + string(change.NewState)
	if snap.PID > 0 {
		logMessage += fmt.Sprintf(", PID: %d", snap.PID)
	}
	if change.NewState == StateStarting && snap.Trigger != "" {
		logMessage += ", Trigger: " + snap.Trigger
	}
	if change.NewState == StateExited {
		logMessage += fmt.Sprintf(", Status: %d", snap.ExitStatus)
	}

	switch {
	case snap.ErrorDetail != nil && change.NewState == StateExited:
		logging.Error(subsystem, snap.ErrorDetail, "%s", logMessage)
	case change.NewState == StateStarting:
		logging.Debug(subsystem, "%s", logMessage)
	default:
		logging.Info(subsystem, "%s", logMessage)
	}
}

// GetStateStore returns the underlying state store
func (c *ConsoleReporter) GetStateStore() StateStore {
	return c.stateStore
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	stateStyles = map[ServiceState]lipgloss.Style{
		StateNotStarted: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		StateStarting:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		StateRunning:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		StateExited:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
	runStyles = map[RunState]lipgloss.Style{
		RunSteady:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		RunDegraded: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		RunAborted:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
)

const (
	nameColumnWidth   = 32
	stateColumnWidth  = 11
	detailColumnWidth = 48
)

// Cell pads or truncates s to exactly width terminal cells.
func Cell(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		return runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

// Detail summarizes a row for the last column of the status table.
func Detail(snap ServiceStateSnapshot) string {
	switch snap.State {
	case StateExited:
		d := fmt.Sprintf("status %d", snap.ExitStatus)
		if snap.ErrorDetail != nil {
			d += ": " + snap.ErrorDetail.Error()
		}
		return d
	case StateRunning:
		if snap.PID > 0 {
			return fmt.Sprintf("pid %d", snap.PID)
		}
	case StateStarting:
		return snap.Trigger
	}
	return ""
}

// FormatTable renders the status table. Colours are applied when styled is true.
func FormatTable(rows []ServiceStateSnapshot, run RunState, reason string, styled bool) string {
	var b strings.Builder

	header := Cell("SERVICE", nameColumnWidth) + " " + Cell("STATE", stateColumnWidth) + " " + "DETAIL"
	if styled {
		header = headerStyle.Render(header)
	}
	b.WriteString(header + "\n")

	for _, r := range rows {
		state := Cell(string(r.State), stateColumnWidth)
		if styled {
			state = stateStyles[r.State].Render(state)
		}
		b.WriteString(Cell(r.Name, nameColumnWidth) + " " + state + " " + runewidth.Truncate(Detail(r), detailColumnWidth, "…") + "\n")
	}

	summary := "Run: " + string(run)
	if reason != "" {
		summary += " (" + reason + ")"
	}
	if styled {
		if st, ok := runStyles[run]; ok {
			summary = st.Render(summary)
		}
	}
	b.WriteString(summary + "\n")
	return b.String()
}
