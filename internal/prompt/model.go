package prompt

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"roboctl/internal/variant"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#005F87", Dark: "#5FAFFF"})
	optionStyle = lipgloss.NewStyle().PaddingLeft(2)
	indexStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

// Model asks for one value per axis, in order. An answer that is not a member
// of the axis is rejected and the same axis is asked again.
type Model struct {
	axes    []variant.Axis
	current int
	input   textinput.Model
	answers map[variant.Axis]string
	lastErr error
	aborted bool
}

// NewModel creates a prompt for axes. notice is shown above the first
// question, typically the error that made prompting necessary.
func NewModel(axes []variant.Axis, notice error) Model {
	ti := textinput.New()
	ti.Placeholder = "name or number"
	ti.CharLimit = 32
	ti.Width = 24
	ti.Prompt = "> "
	ti.Focus()

	return Model{
		axes:    axes,
		input:   ti,
		answers: make(map[variant.Axis]string, len(axes)),
		lastErr: notice,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if len(m.axes) == 0 {
		return tea.Quit
	}
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || m.Done() {
		return m, nil
	}

	switch keyMsg.String() {
	case "ctrl+c", "esc":
		m.aborted = true
		m.input.Blur()
		return m, tea.Quit

	case "enter":
		axis := m.axes[m.current]
		value, err := variant.ParseChoice(axis, m.input.Value())
		m.input.Reset()
		if err != nil {
			m.lastErr = err
			return m, nil
		}
		m.answers[axis] = value
		m.lastErr = nil
		m.current++
		if m.Done() {
			m.input.Blur()
			return m, tea.Quit
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(keyMsg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.Done() || m.aborted {
		return ""
	}
	axis := m.axes[m.current]

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s (%d/%d)", axis.Title(), m.current+1, len(m.axes))))
	b.WriteString("\n")
	for _, opt := range variant.Options(axis) {
		line := indexStyle.Render(fmt.Sprintf("%d)", opt.Index)) + " " + opt.Value + "  " + labelStyle.Render(opt.Label)
		b.WriteString(optionStyle.Render(line) + "\n")
	}
	if m.lastErr != nil {
		b.WriteString(errorStyle.Render("✗ "+m.lastErr.Error()) + "\n")
	}
	b.WriteString(m.input.View() + "\n")
	b.WriteString(helpStyle.Render("Enter to confirm, Esc to cancel") + "\n")
	return b.String()
}

// Done reports whether every axis has an accepted answer.
func (m Model) Done() bool {
	return m.current >= len(m.axes)
}

// Aborted reports whether the operator cancelled the prompt.
func (m Model) Aborted() bool {
	return m.aborted
}

// Answers returns the accepted values so far.
func (m Model) Answers() map[variant.Axis]string {
	out := make(map[variant.Axis]string, len(m.answers))
	for k, v := range m.answers {
		out[k] = v
	}
	return out
}

// Err returns the rejection shown for the current question, if any.
func (m Model) Err() error {
	return m.lastErr
}
