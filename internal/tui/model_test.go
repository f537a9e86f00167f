package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roboctl/internal/reporting"
	"roboctl/pkg/logging"
)

type mockRun struct {
	state     reporting.RunState
	reason    string
	rows      []reporting.ServiceStateSnapshot
	done      chan struct{}
	cancelled int
}

func newMockRun() *mockRun {
	return &mockRun{
		state: reporting.RunLaunching,
		rows: []reporting.ServiceStateSnapshot{
			{Name: "gazebo", State: reporting.StateRunning, PID: 4242},
			{Name: "spawn_entity", State: reporting.StateStarting, Trigger: "root"},
			{Name: "ur_controller", State: reporting.StateNotStarted},
		},
		done: make(chan struct{}),
	}
}

func (m *mockRun) ID() string                              { return "run-7" }
func (m *mockRun) State() (reporting.RunState, string)     { return m.state, m.reason }
func (m *mockRun) Table() []reporting.ServiceStateSnapshot { return m.rows }
func (m *mockRun) Cancel()                                 { m.cancelled++ }
func (m *mockRun) Done() <-chan struct{}                   { return m.done }

func key(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestView_ShowsTableAndState(t *testing.T) {
	m := NewModel(newMockRun(), nil, nil)
	view := m.View()

	assert.Contains(t, view, "roboctl run run-7")
	assert.Contains(t, view, "Launching")
	assert.Contains(t, view, "gazebo")
	assert.Contains(t, view, "pid 4242")
	assert.Contains(t, view, "ur_controller")
	assert.Contains(t, view, "q cancel run")
}

func TestUpdate_ServiceChangeRefreshesTable(t *testing.T) {
	run := newMockRun()
	changes := make(chan reporting.StateChangeEvent, 1)
	m := NewModel(run, changes, nil)

	run.rows[2].State = reporting.StateStarting
	run.rows[2].Trigger = "on-exit(spawn_entity)"
	m, cmd := update(t, m, serviceChangedMsg{change: reporting.StateChangeEvent{Name: "ur_controller"}})

	assert.NotNil(t, cmd, "keeps listening for changes")
	assert.Contains(t, m.View(), "on-exit(spawn_entity)")

	changes <- reporting.StateChangeEvent{Name: "gazebo"}
	msg := cmd()
	assert.Equal(t, "gazebo", msg.(serviceChangedMsg).change.Name)
}

func TestUpdate_SpinnerTickPicksUpRunState(t *testing.T) {
	run := newMockRun()
	m := NewModel(run, nil, nil)

	run.state = reporting.RunDegraded
	run.reason = "failed to start move: no such package"
	m, cmd := update(t, m, spinner.TickMsg{})
	assert.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, IconWarning)
	assert.Contains(t, view, "Degraded")
	assert.Contains(t, view, "no such package")
}

func TestUpdate_LogEntries(t *testing.T) {
	logs := make(chan logging.LogEntry, 1)
	m := NewModel(newMockRun(), nil, logs)

	m, cmd := update(t, m, logEntryMsg{entry: logging.LogEntry{
		Timestamp: time.Date(2024, 5, 1, 10, 11, 12, 0, time.UTC),
		Level:     logging.LevelError,
		Subsystem: "Launcher",
		Message:   "move exited",
		Err:       errors.New("status 1"),
	}})
	assert.NotNil(t, cmd)
	require.Len(t, m.activity, 1)
	assert.Contains(t, m.View(), "10:11:12 ERROR [Launcher] move exited: status 1")

	m, _ = update(t, m, key("l"))
	assert.NotContains(t, m.View(), "move exited")
}

func TestUpdate_ActivityIsCapped(t *testing.T) {
	m := NewModel(newMockRun(), nil, nil)
	for i := 0; i < maxActivityLines+20; i++ {
		m, _ = update(t, m, logEntryMsg{entry: logging.LogEntry{Message: "line"}})
	}
	assert.Len(t, m.activity, maxActivityLines)
}

func TestUpdate_LogHeightFollowsWindow(t *testing.T) {
	m := NewModel(newMockRun(), nil, nil)
	for i := 0; i < 40; i++ {
		m, _ = update(t, m, logEntryMsg{entry: logging.LogEntry{Message: "entry"}})
	}
	assert.Equal(t, defaultLogLines, strings.Count(m.View(), "[] entry"))

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 20})
	assert.Equal(t, 20-6-3, strings.Count(m.View(), "[] entry"))
}

func TestKeys_CancelThenQuitWhenDone(t *testing.T) {
	run := newMockRun()
	m := NewModel(run, nil, nil)

	m, cmd := update(t, m, key("q"))
	assert.False(t, isQuit(cmd))
	assert.Equal(t, 1, run.cancelled)
	assert.Contains(t, m.View(), "Cancelling run")

	run.state = reporting.RunAborted
	m, cmd = update(t, m, runDoneMsg{})
	assert.True(t, isQuit(cmd))
	assert.Empty(t, m.View())
	assert.Equal(t, 1, run.cancelled)
}

func TestKeys_SecondCancelForcesQuit(t *testing.T) {
	run := newMockRun()
	m := NewModel(run, nil, nil)

	m, _ = update(t, m, key("ctrl+c"))
	_, cmd := update(t, m, key("ctrl+c"))
	assert.True(t, isQuit(cmd))
	assert.Equal(t, 1, run.cancelled)
}

func TestUpdate_RunFinishedWithoutCancel(t *testing.T) {
	run := newMockRun()
	m := NewModel(run, nil, nil)

	run.state = reporting.RunSteady
	m, cmd := update(t, m, runDoneMsg{})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "press q to exit")
	assert.Contains(t, m.View(), IconCheck)

	_, cmd = update(t, m, key("q"))
	assert.True(t, isQuit(cmd))
	assert.Equal(t, 0, run.cancelled)
}

func TestKeys_CopyTable(t *testing.T) {
	var copied string
	orig := copyToClipboard
	copyToClipboard = func(s string) error {
		copied = s
		return nil
	}
	defer func() { copyToClipboard = orig }()

	m := NewModel(newMockRun(), nil, nil)
	m, _ = update(t, m, key("y"))
	assert.Contains(t, copied, "SERVICE")
	assert.Contains(t, copied, "spawn_entity")
	assert.Contains(t, m.View(), "copied to clipboard")

	copyToClipboard = func(string) error { return errors.New("no clipboard") }
	m, _ = update(t, m, key("y"))
	assert.Contains(t, m.View(), "Copy failed")
}

func TestWaitForDone(t *testing.T) {
	done := make(chan struct{})
	close(done)
	assert.Equal(t, runDoneMsg{}, waitForDone(done)())
}
