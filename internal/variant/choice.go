package variant

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Axis is an independent dimension of mutually exclusive configuration choice.
type Axis string

const (
	AxisCellLayout  Axis = "cell_layout"
	AxisEndEffector Axis = "end_effector"
)

// Axes lists every supported axis in resolution order. Resolve reports the
// first invalid axis according to this order.
var Axes = []Axis{AxisCellLayout, AxisEndEffector}

// CellLayout selects the environment the robot is placed in.
type CellLayout string

const (
	CellLayoutAlone CellLayout = "alone"
	CellLayoutStand CellLayout = "stand"
	CellLayoutLab   CellLayout = "lab"
)

// EndEffector selects the tool mounted on the robot flange.
type EndEffector string

const (
	EndEffectorNone    EndEffector = "none"
	EndEffectorGripper EndEffector = "gripper"
)

// Option is one member of an axis' enumerated set. Index is the 1-based menu
// number offered to operators at the prompt.
type Option struct {
	Value string
	Index int
	Label string
}

var axisOptions = map[Axis][]Option{
	AxisCellLayout: {
		{Value: string(CellLayoutAlone), Index: 1, Label: "robot alone"},
		{Value: string(CellLayoutStand), Index: 2, Label: "robot on cylindric stand"},
		{Value: string(CellLayoutLab), Index: 3, Label: "robot in the lab cell"},
	},
	AxisEndEffector: {
		{Value: string(EndEffectorNone), Index: 1, Label: "no end-effector"},
		{Value: string(EndEffectorGripper), Index: 2, Label: "Robotiq 2F-85 parallel gripper"},
	},
}

// Options returns the enumerated set of an axis in menu order.
func Options(axis Axis) []Option {
	opts := axisOptions[axis]
	out := make([]Option, len(opts))
	copy(out, opts)
	return out
}

// Title is the human readable axis name used by prompts and tables.
func (a Axis) Title() string {
	switch a {
	case AxisCellLayout:
		return "Cell layout"
	case AxisEndEffector:
		return "End-effector"
	default:
		return string(a)
	}
}

// Selection is the resolved configuration choice tuple: exactly one value per axis.
// It is a plain value and is passed by value through every stage.
type Selection struct {
	CellLayout  CellLayout
	EndEffector EndEffector
}

// HasGripper reports whether the selection mounts the parallel gripper.
func (s Selection) HasGripper() bool {
	return s.EndEffector == EndEffectorGripper
}

// Key identifies the selection, e.g. "stand/gripper".
func (s Selection) Key() string {
	return string(s.CellLayout) + "/" + string(s.EndEffector)
}

// Raw converts the selection back into raw axis values.
func (s Selection) Raw() map[Axis]string {
	return map[Axis]string{
		AxisCellLayout:  string(s.CellLayout),
		AxisEndEffector: string(s.EndEffector),
	}
}

// String implements fmt.Stringer.
func (s Selection) String() string {
	return fmt.Sprintf("cell_layout=%s end_effector=%s", s.CellLayout, s.EndEffector)
}

// InvalidChoiceError reports a raw value that is not a member of its axis.
// Operators must be asked again; the value is never replaced by a default.
type InvalidChoiceError struct {
	Axis    Axis
	Value   string
	Allowed []string
}

func (e *InvalidChoiceError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("unknown configuration axis %q", e.Axis)
	}
	if e.Value == "" {
		return fmt.Sprintf("no value given for %s (allowed: %s)", e.Axis, strings.Join(e.Allowed, ", "))
	}
	return fmt.Sprintf("invalid value %q for %s (allowed: %s)", e.Value, e.Axis, strings.Join(e.Allowed, ", "))
}

// ParseChoice validates one raw value against an axis. Both the value name
// ("stand") and its menu number ("2") are accepted, case-insensitively.
func ParseChoice(axis Axis, raw string) (string, error) {
	opts, ok := axisOptions[axis]
	if !ok {
		return "", &InvalidChoiceError{Axis: axis, Value: raw}
	}

	v := strings.ToLower(strings.TrimSpace(raw))
	if v != "" {
		n, numErr := strconv.Atoi(v)
		for _, opt := range opts {
			if v == opt.Value || (numErr == nil && n == opt.Index) {
				return opt.Value, nil
			}
		}
	}

	allowed := make([]string, len(opts))
	for i, opt := range opts {
		allowed[i] = opt.Value
	}
	return "", &InvalidChoiceError{Axis: axis, Value: raw, Allowed: allowed}
}

// Resolve validates raw operator input and returns the selection. Every
// known axis is checked in Axes order before unknown keys, and the first
// failure is returned. Resolve has no side effects.
func Resolve(raw map[Axis]string) (Selection, error) {
	var sel Selection

	for _, axis := range Axes {
		v, err := ParseChoice(axis, raw[axis])
		if err != nil {
			return Selection{}, err
		}
		switch axis {
		case AxisCellLayout:
			sel.CellLayout = CellLayout(v)
		case AxisEndEffector:
			sel.EndEffector = EndEffector(v)
		}
	}

	var unknown []string
	for axis := range raw {
		if _, ok := axisOptions[axis]; !ok {
			unknown = append(unknown, string(axis))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Selection{}, &InvalidChoiceError{Axis: Axis(unknown[0]), Value: raw[Axis(unknown[0])]}
	}

	return sel, nil
}

// AllSelections enumerates the full choice space, layouts first.
func AllSelections() []Selection {
	var out []Selection
	for _, cl := range axisOptions[AxisCellLayout] {
		for _, ee := range axisOptions[AxisEndEffector] {
			out = append(out, Selection{CellLayout: CellLayout(cl.Value), EndEffector: EndEffector(ee.Value)})
		}
	}
	return out
}
