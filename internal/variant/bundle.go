package variant

import "fmt"

// SourceRef points at a file inside a package share directory.
type SourceRef struct {
	Package string
	Path    string
}

// String renders the reference as "package:path".
func (r SourceRef) String() string {
	return r.Package + ":" + r.Path
}

// Sources holds every source file the artifact builder may read for a
// selection. Variant dependent entries are chosen once, in NewBundle.
type Sources struct {
	DescriptionTemplate SourceRef
	World               SourceRef
	Semantic            SourceRef
	Kinematics          SourceRef
	JointLimits         SourceRef
	CartesianLimits     SourceRef
	Planning            SourceRef
	Controllers         SourceRef
	Rviz                SourceRef
}

// Params are the scalar parameters that identify the active variant to
// downstream services.
type Params struct {
	Robot       string
	EndEffector string
	Environment string
}

// Bundle is the immutable configuration derived from one Selection. It is
// created once per orchestration run; accessors hand out copies.
type Bundle struct {
	robot      string
	selection  Selection
	sources    Sources
	params     Params
	useSimTime bool
	mappings   map[string]string
}

// BundleOptions carries the non-axis inputs of a bundle.
type BundleOptions struct {
	Robot       string
	Environment string
	UseSimTime  bool
}

// DescriptionPackage is the share package holding the robot description and world.
func DescriptionPackage(robot string) string {
	return fmt.Sprintf("ros2srrc_%s_gazebo", robot)
}

// MotionPackage is the share package holding the motion planning configuration.
func MotionPackage(robot string) string {
	return fmt.Sprintf("ros2srrc_%s_moveit2", robot)
}

// NewBundle derives the configuration bundle for a selection.
func NewBundle(sel Selection, opts BundleOptions) Bundle {
	robot := opts.Robot
	if robot == "" {
		robot = "ur5"
	}
	env := opts.Environment
	if env == "" {
		env = "gazebo"
	}

	desc := DescriptionPackage(robot)
	motion := MotionPackage(robot)

	src := Sources{
		DescriptionTemplate: SourceRef{desc, fmt.Sprintf("urdf/%s.urdf.xacro", robot)},
		World:               SourceRef{desc, fmt.Sprintf("worlds/%s.world", robot)},
		Kinematics:          SourceRef{motion, "config/kinematics.yaml"},
		JointLimits:         SourceRef{motion, "config/joint_limits.yaml"},
		CartesianLimits:     SourceRef{motion, "config/pilz_cartesian_limits.yaml"},
	}
	eeParam := "none"
	if sel.HasGripper() {
		eeParam = "robotiq_2f85"
		src.Semantic = SourceRef{motion, fmt.Sprintf("config/%srobotiq.srdf", robot)}
		src.Planning = SourceRef{motion, "config/ompl_planning_robotiq.yaml"}
		src.Controllers = SourceRef{motion, "config/urrobotiq_controllers.yaml"}
		src.Rviz = SourceRef{motion, fmt.Sprintf("config/%srobotiq_moveit2.rviz", robot)}
	} else {
		src.Semantic = SourceRef{motion, fmt.Sprintf("config/%s.srdf", robot)}
		src.Planning = SourceRef{motion, "config/ompl_planning.yaml"}
		src.Controllers = SourceRef{motion, "config/ur_controllers.yaml"}
		src.Rviz = SourceRef{motion, fmt.Sprintf("config/%s_moveit2.rviz", robot)}
	}

	return Bundle{
		robot:     robot,
		selection: sel,
		sources:   src,
		params: Params{
			Robot:       robot,
			EndEffector: eeParam,
			Environment: env,
		},
		useSimTime: opts.UseSimTime,
		mappings: map[string]string{
			"cell_layout_1": boolString(sel.CellLayout == CellLayoutAlone),
			"cell_layout_2": boolString(sel.CellLayout == CellLayoutStand),
			"cell_layout_3": boolString(sel.CellLayout == CellLayoutLab),
			"EE_no":         boolString(sel.EndEffector == EndEffectorNone),
			"EE_robotiq":    boolString(sel.EndEffector == EndEffectorGripper),
		},
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (b Bundle) Robot() string        { return b.robot }
func (b Bundle) Selection() Selection { return b.selection }
func (b Bundle) Sources() Sources     { return b.sources }
func (b Bundle) Params() Params       { return b.params }
func (b Bundle) UseSimTime() bool     { return b.useSimTime }

// Mappings returns a copy of the template substitution parameters.
func (b Bundle) Mappings() map[string]string {
	out := make(map[string]string, len(b.mappings))
	for k, v := range b.mappings {
		out[k] = v
	}
	return out
}

// ScalarParams returns the parameters passed to services that need to know
// which variant is active.
func (b Bundle) ScalarParams() map[string]interface{} {
	return map[string]interface{}{
		"ROB_PARAM": b.params.Robot,
		"EE_PARAM":  b.params.EndEffector,
		"ENV_PARAM": b.params.Environment,
	}
}
