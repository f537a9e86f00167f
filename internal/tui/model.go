package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"roboctl/internal/reporting"
	"roboctl/pkg/logging"
)

// Run is the part of an orchestration run the view reads and controls.
type Run interface {
	ID() string
	State() (reporting.RunState, string)
	Table() []reporting.ServiceStateSnapshot
	Cancel()
	Done() <-chan struct{}
}

// copyToClipboard is a var so tests do not touch the real clipboard.
var copyToClipboard = clipboard.WriteAll

type serviceChangedMsg struct {
	change reporting.StateChangeEvent
}

type logEntryMsg struct {
	entry logging.LogEntry
}

type runDoneMsg struct{}

// Model is the Bubble Tea model of the status view.
type Model struct {
	run     Run
	changes <-chan reporting.StateChangeEvent
	logs    <-chan logging.LogEntry

	spinner spinner.Model
	rows    []reporting.ServiceStateSnapshot
	state   reporting.RunState
	reason  string

	activity []string
	showLog  bool
	status   string

	width  int
	height int

	cancelling bool
	finished   bool
	quitting   bool
}

// NewModel creates the view. changes and logs may be nil.
func NewModel(run Run, changes <-chan reporting.StateChangeEvent, logs <-chan logging.LogEntry) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := Model{
		run:     run,
		changes: changes,
		logs:    logs,
		spinner: s,
		showLog: true,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForChange(m.changes),
		waitForLog(m.logs),
		waitForDone(m.run.Done()),
	)
}

func waitForChange(ch <-chan reporting.StateChangeEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		change, ok := <-ch
		if !ok {
			return nil
		}
		return serviceChangedMsg{change: change}
	}
}

func waitForLog(ch <-chan logging.LogEntry) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return nil
		}
		return logEntryMsg{entry: entry}
	}
}

func waitForDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return runDoneMsg{}
	}
}

func (m *Model) refresh() {
	m.rows = m.run.Table()
	m.state, m.reason = m.run.State()
}

func (m *Model) appendActivity(line string) {
	m.activity = append(m.activity, line)
	if len(m.activity) > maxActivityLines {
		m.activity = m.activity[len(m.activity)-maxActivityLines:]
	}
}

func formatLogEntry(e logging.LogEntry) string {
	line := fmt.Sprintf("%s %-5s [%s] %s", e.Timestamp.Format("15:04:05"), e.Level, e.Subsystem, e.Message)
	if e.Err != nil {
		line += ": " + e.Err.Error()
	}
	return logLevelStyles[e.Level].Render(line)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case serviceChangedMsg:
		m.refresh()
		return m, waitForChange(m.changes)

	case logEntryMsg:
		m.appendActivity(formatLogEntry(msg.entry))
		return m, waitForLog(m.logs)

	case runDoneMsg:
		m.finished = true
		m.refresh()
		if m.cancelling {
			m.quitting = true
			return m, tea.Quit
		}
		m.status = "Run finished, press q to exit"
		return m, nil

	case spinner.TickMsg:
		m.refresh()
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.finished || m.cancelling {
			m.quitting = true
			return m, tea.Quit
		}
		m.cancelling = true
		m.status = "Cancelling run, stopping services..."
		logging.Info("TUI", "Cancellation requested for run %s", m.run.ID())
		m.run.Cancel()
		return m, nil

	case "l":
		m.showLog = !m.showLog
		return m, nil

	case "y":
		table := reporting.FormatTable(m.rows, m.state, m.reason, false)
		if err := copyToClipboard(table); err != nil {
			logging.Error("TUI", err, "Failed to copy status table")
			m.status = "Copy failed"
			return m, nil
		}
		m.status = "Status table copied to clipboard"
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader() + "\n\n")
	b.WriteString(reporting.FormatTable(m.rows, m.state, m.reason, true))

	if m.showLog {
		b.WriteString(m.renderLog())
	}
	if m.status != "" {
		b.WriteString("\n" + statusStyle.Render(m.status))
	}
	b.WriteString(helpStyle.Render(m.helpLine()) + "\n")
	return b.String()
}

func (m Model) renderHeader() string {
	header := headerStyle.Render("roboctl run " + m.run.ID())

	state := string(m.state)
	if st, ok := runStateStyles[m.state]; ok {
		state = st.Render(state)
	}
	indicator := runStateIcon(m.state)
	if !m.state.Settled() && !m.finished {
		indicator = m.spinner.View()
	}
	return header + " " + indicator + " " + state
}

func (m Model) logLines() int {
	if m.height == 0 {
		return defaultLogLines
	}
	// header, blank line, table header, rows, run summary, log title, help
	used := 6 + len(m.rows)
	if m.status != "" {
		used++
	}
	if free := m.height - used; free > minLogLines {
		return free
	}
	return minLogLines
}

func (m Model) renderLog() string {
	var b strings.Builder
	b.WriteString(logTitleStyle.Render(IconScroll+" Activity") + "\n")

	lines := m.activity
	if n := m.logLines(); len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, line := range lines {
		if m.width > 0 {
			line = truncateStyled(line, m.width)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func truncateStyled(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}

func (m Model) helpLine() string {
	switch {
	case m.finished:
		return "q quit • l toggle log • y copy table"
	case m.cancelling:
		return "q force quit"
	}
	return "q cancel run • l toggle log • y copy table"
}

// RunProgram shows the status view until the operator quits, or until the
// run finishes after a cancellation.
func RunProgram(ctx context.Context, run Run, store reporting.StateStore, logs <-chan logging.LogEntry) error {
	var changes <-chan reporting.StateChangeEvent
	if store != nil {
		sub := store.Subscribe("")
		defer store.Unsubscribe(sub)
		changes = sub.Channel
	}

	p := tea.NewProgram(NewModel(run, changes, logs), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running status view: %w", err)
	}
	return nil
}
