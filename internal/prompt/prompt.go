package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"roboctl/internal/variant"
	"roboctl/pkg/logging"
)

// ErrAborted is returned when the operator cancels the prompt.
var ErrAborted = errors.New("selection cancelled by operator")

// isTerminal is a var so tests can pretend stdin is a terminal.
var isTerminal = func(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// runProgram is a var so tests can replace the interactive program.
var runProgram = func(ctx context.Context, m Model, in io.Reader, out io.Writer) (Model, error) {
	p := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return m, err
	}
	fm, ok := final.(Model)
	if !ok {
		return m, fmt.Errorf("unexpected prompt model %T", final)
	}
	return fm, nil
}

// Pending lists, in resolution order, the axes whose raw value is missing or
// not a member of the axis.
func Pending(raw map[variant.Axis]string) []variant.Axis {
	var out []variant.Axis
	for _, axis := range variant.Axes {
		if _, err := variant.ParseChoice(axis, raw[axis]); err != nil {
			out = append(out, axis)
		}
	}
	return out
}

// Prompter resolves operator choices, asking on the terminal for every value
// that is missing or invalid.
type Prompter struct {
	In  *os.File
	Out io.Writer
}

// NewPrompter creates a prompter on the process' standard streams.
func NewPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stderr}
}

// Interactive reports whether the prompter can ask the operator.
func (p *Prompter) Interactive() bool {
	return isTerminal(p.In)
}

// Resolve turns raw values into a selection. Invalid or missing values are
// never defaulted: they are asked for again on a terminal, and returned as
// the resolver's InvalidChoiceError otherwise.
func (p *Prompter) Resolve(ctx context.Context, raw map[variant.Axis]string) (variant.Selection, error) {
	sel, err := variant.Resolve(raw)
	if err == nil {
		return sel, nil
	}

	var invalid *variant.InvalidChoiceError
	if !errors.As(err, &invalid) || len(invalid.Allowed) == 0 {
		return variant.Selection{}, err
	}
	if !p.Interactive() {
		return variant.Selection{}, err
	}

	pending := Pending(raw)
	logging.Debug("Resolver", "Prompting for %d axes", len(pending))

	var notice error
	if invalid.Value != "" {
		notice = err
	}
	final, runErr := runProgram(ctx, NewModel(pending, notice), p.In, p.Out)
	if runErr != nil {
		return variant.Selection{}, fmt.Errorf("running choice prompt: %w", runErr)
	}
	if final.Aborted() || !final.Done() {
		return variant.Selection{}, ErrAborted
	}

	merged := make(map[variant.Axis]string, len(raw))
	for k, v := range raw {
		merged[k] = v
	}
	for k, v := range final.Answers() {
		merged[k] = v
	}
	return variant.Resolve(merged)
}
