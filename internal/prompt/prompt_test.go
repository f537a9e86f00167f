package prompt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roboctl/internal/variant"
)

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func press(t *testing.T, m Model, key tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: key})
	return next.(Model), cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModel_AcceptsNamesAndMenuNumbers(t *testing.T) {
	m := NewModel(variant.Axes, nil)
	assert.Contains(t, m.View(), "Cell layout (1/2)")
	assert.Contains(t, m.View(), "robot on cylindric stand")

	m = typeText(t, m, "stand")
	m, cmd := press(t, m, tea.KeyEnter)
	assert.False(t, isQuit(cmd))
	assert.False(t, m.Done())
	assert.Contains(t, m.View(), "End-effector (2/2)")

	m = typeText(t, m, "2")
	m, cmd = press(t, m, tea.KeyEnter)
	assert.True(t, isQuit(cmd))
	assert.True(t, m.Done())
	assert.Equal(t, map[variant.Axis]string{
		variant.AxisCellLayout:  "stand",
		variant.AxisEndEffector: "gripper",
	}, m.Answers())
}

func TestModel_InvalidAnswerAsksAgain(t *testing.T) {
	m := NewModel([]variant.Axis{variant.AxisCellLayout}, nil)

	m = typeText(t, m, "garage")
	m, cmd := press(t, m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.False(t, m.Done())

	var invalid *variant.InvalidChoiceError
	require.True(t, errors.As(m.Err(), &invalid))
	assert.Equal(t, "garage", invalid.Value)
	assert.Contains(t, m.View(), `invalid value "garage"`)
	assert.Contains(t, m.View(), "Cell layout (1/1)")

	m = typeText(t, m, "4")
	m, _ = press(t, m, tea.KeyEnter)
	assert.False(t, m.Done(), "menu numbers outside the axis are rejected")

	m = typeText(t, m, "3")
	m, cmd = press(t, m, tea.KeyEnter)
	assert.True(t, m.Done())
	assert.True(t, isQuit(cmd))
	assert.NoError(t, m.Err())
	assert.Equal(t, "lab", m.Answers()[variant.AxisCellLayout])
}

func TestModel_EscAborts(t *testing.T) {
	m := NewModel(variant.Axes, nil)
	m, cmd := press(t, m, tea.KeyEsc)
	assert.True(t, m.Aborted())
	assert.True(t, isQuit(cmd))
	assert.Empty(t, m.View())
}

func TestPending(t *testing.T) {
	assert.Equal(t, variant.Axes, Pending(nil))
	assert.Equal(t, []variant.Axis{variant.AxisEndEffector}, Pending(map[variant.Axis]string{
		variant.AxisCellLayout:  "alone",
		variant.AxisEndEffector: "suction",
	}))
	assert.Empty(t, Pending(map[variant.Axis]string{
		variant.AxisCellLayout:  "1",
		variant.AxisEndEffector: "none",
	}))
}

func withTerminal(t *testing.T, tty bool, run func(ctx context.Context, m Model, in io.Reader, out io.Writer) (Model, error)) {
	t.Helper()
	origTerm, origRun := isTerminal, runProgram
	isTerminal = func(*os.File) bool { return tty }
	if run != nil {
		runProgram = run
	}
	t.Cleanup(func() {
		isTerminal, runProgram = origTerm, origRun
	})
}

func TestPrompter_CompleteInputSkipsPrompt(t *testing.T) {
	withTerminal(t, true, func(context.Context, Model, io.Reader, io.Writer) (Model, error) {
		t.Fatal("prompt must not run")
		return Model{}, nil
	})

	p := &Prompter{Out: &bytes.Buffer{}}
	sel, err := p.Resolve(context.Background(), map[variant.Axis]string{
		variant.AxisCellLayout:  "stand",
		variant.AxisEndEffector: "gripper",
	})
	require.NoError(t, err)
	assert.Equal(t, "stand/gripper", sel.Key())
}

func TestPrompter_NonInteractiveFailsFast(t *testing.T) {
	withTerminal(t, false, nil)

	p := &Prompter{Out: &bytes.Buffer{}}
	_, err := p.Resolve(context.Background(), map[variant.Axis]string{
		variant.AxisCellLayout: "stand",
	})

	var invalid *variant.InvalidChoiceError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, variant.AxisEndEffector, invalid.Axis)
}

func TestPrompter_AsksOnlyForPendingAxes(t *testing.T) {
	var asked []variant.Axis
	var notice error
	withTerminal(t, true, func(_ context.Context, m Model, _ io.Reader, _ io.Writer) (Model, error) {
		asked = m.axes
		notice = m.Err()
		m = typeText(t, m, "1")
		m, _ = press(t, m, tea.KeyEnter)
		return m, nil
	})

	p := &Prompter{Out: &bytes.Buffer{}}
	sel, err := p.Resolve(context.Background(), map[variant.Axis]string{
		variant.AxisCellLayout:  "bogus",
		variant.AxisEndEffector: "gripper",
	})
	require.NoError(t, err)
	assert.Equal(t, []variant.Axis{variant.AxisCellLayout}, asked)
	assert.Error(t, notice)
	assert.Equal(t, "alone/gripper", sel.Key())
}

func TestPrompter_Aborted(t *testing.T) {
	withTerminal(t, true, func(_ context.Context, m Model, _ io.Reader, _ io.Writer) (Model, error) {
		m, _ = press(t, m, tea.KeyCtrlC)
		return m, nil
	})

	p := &Prompter{Out: &bytes.Buffer{}}
	_, err := p.Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAborted)
}

func TestPrompter_UnknownAxisIsNotPrompted(t *testing.T) {
	withTerminal(t, true, func(context.Context, Model, io.Reader, io.Writer) (Model, error) {
		t.Fatal("prompt must not run")
		return Model{}, nil
	})

	p := &Prompter{Out: &bytes.Buffer{}}
	_, err := p.Resolve(context.Background(), map[variant.Axis]string{
		variant.AxisCellLayout:  "alone",
		variant.AxisEndEffector: "none",
		"colour":                "red",
	})
	var invalid *variant.InvalidChoiceError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, variant.Axis("colour"), invalid.Axis)
}
