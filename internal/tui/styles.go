package tui

import (
	"github.com/charmbracelet/lipgloss"

	"roboctl/internal/reporting"
	"roboctl/pkg/logging"
)

const (
	// maxActivityLines caps the in-memory activity log.
	maxActivityLines = 500
	// defaultLogLines is the log height before the first WindowSizeMsg.
	defaultLogLines = 8
	// minLogLines is the smallest log section worth drawing.
	minLogLines = 3
)

const (
	IconCheck   = "✔"
	IconWarning = "⚠"
	IconStop    = "⏹"
	IconScroll  = "📜"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}).
			Background(lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#303030"}).
			Padding(0, 1)

	runStateStyles = map[reporting.RunState]lipgloss.Style{
		reporting.RunBuilding:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		reporting.RunLaunching: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		reporting.RunSteady:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		reporting.RunDegraded:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		reporting.RunAborted:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}

	logTitleStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)

	logLevelStyles = map[logging.LogLevel]lipgloss.Style{
		logging.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		logging.LevelInfo:  lipgloss.NewStyle(),
		logging.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		logging.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}

	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

func runStateIcon(state reporting.RunState) string {
	switch state {
	case reporting.RunSteady:
		return IconCheck
	case reporting.RunDegraded:
		return IconWarning
	case reporting.RunAborted:
		return IconStop
	}
	return ""
}
