package artifact

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// document carries the fields common to every artifact record. Parameters are
// computed once when the record is built; callers must treat them as read-only.
type document struct {
	name   Name
	source string
	params map[string]interface{}
	doc    []byte
}

func (d *document) Name() Name                         { return d.name }
func (d *document) Source() string                     { return d.source }
func (d *document) Parameters() map[string]interface{} { return d.params }
func (d *document) Document() []byte                   { return d.doc }

// DescriptionDocument is the robot description produced from the template.
type DescriptionDocument struct {
	document
	XML string
}

// SemanticDocument is the semantic robot description for the active end-effector.
type SemanticDocument struct {
	document
	SRDF string
}

// KinematicsSolver configures the solver of one planning group.
type KinematicsSolver struct {
	Solver           string  `yaml:"kinematics_solver"`
	SearchResolution float64 `yaml:"kinematics_solver_search_resolution,omitempty"`
	Timeout          float64 `yaml:"kinematics_solver_timeout,omitempty"`
	Attempts         int     `yaml:"kinematics_solver_attempts,omitempty"`
}

// KinematicsDocument maps planning group names to their solver settings.
type KinematicsDocument struct {
	document
	Groups map[string]KinematicsSolver
}

// JointLimit bounds a single joint.
type JointLimit struct {
	HasVelocityLimits     bool    `yaml:"has_velocity_limits"`
	MaxVelocity           float64 `yaml:"max_velocity,omitempty"`
	HasAccelerationLimits bool    `yaml:"has_acceleration_limits"`
	MaxAcceleration       float64 `yaml:"max_acceleration,omitempty"`
}

// JointLimitsSpec is the decoded joint_limits document.
type JointLimitsSpec struct {
	DefaultVelocityScaling     float64               `yaml:"default_velocity_scaling_factor,omitempty"`
	DefaultAccelerationScaling float64               `yaml:"default_acceleration_scaling_factor,omitempty"`
	Joints                     map[string]JointLimit `yaml:"joint_limits"`
}

// JointLimitsDocument holds per-joint velocity and acceleration limits.
type JointLimitsDocument struct {
	document
	Spec JointLimitsSpec
}

// CartesianLimitsSpec bounds end-effector motion for the industrial planner.
type CartesianLimitsSpec struct {
	MaxTransVel float64 `yaml:"max_trans_vel"`
	MaxTransAcc float64 `yaml:"max_trans_acc"`
	MaxTransDec float64 `yaml:"max_trans_dec"`
	MaxRotVel   float64 `yaml:"max_rot_vel"`
}

// CartesianLimitsDocument holds the cartesian limits.
type CartesianLimitsDocument struct {
	document
	Spec CartesianLimitsSpec
}

// PipelineConfig configures one planning pipeline. Planner specific settings
// read from the variant file are kept in Extra.
type PipelineConfig struct {
	PlanningPlugin           string                 `yaml:"planning_plugin"`
	RequestAdapters          string                 `yaml:"request_adapters"`
	StartStateMaxBoundsError float64                `yaml:"start_state_max_bounds_error"`
	DefaultPlannerConfig     string                 `yaml:"default_planner_config,omitempty"`
	Extra                    map[string]interface{} `yaml:",inline"`
}

// PlanningPipelineDocument holds the active pipeline and the sampling based
// pipeline kept for inspection.
type PlanningPipelineDocument struct {
	document
	Active       PipelineConfig
	Sampling     PipelineConfig
	Capabilities string
}

// ControllerSpec describes one controller the motion planner may command.
type ControllerSpec struct {
	ActionNS string   `yaml:"action_ns"`
	Type     string   `yaml:"type"`
	Default  bool     `yaml:"default"`
	Joints   []string `yaml:"joints"`
}

// ControllerManagerSpec is the decoded controller document.
type ControllerManagerSpec struct {
	ControllerNames []string                  `yaml:"controller_names"`
	Controllers     map[string]ControllerSpec `yaml:",inline"`
}

// TrajectoryExecution tunes trajectory execution monitoring.
type TrajectoryExecution struct {
	ManageControllers     bool
	DurationScaling       float64
	GoalDurationMargin    float64
	AllowedStartTolerance float64
}

// ControllersDocument is the controller manager configuration of the motion planner.
type ControllersDocument struct {
	document
	Spec      ControllerManagerSpec
	Execution TrajectoryExecution
}

// RvizDocument is the visualization configuration. Path is the host path
// passed to the viewer.
type RvizDocument struct {
	document
	Path string
}

// toParams converts a typed record into generic parameter form.
func toParams(v interface{}) (map[string]interface{}, []byte, error) {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	params := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &params); err != nil {
		return nil, nil, err
	}
	return params, raw, nil
}

func (s KinematicsSolver) validate() error {
	if s.Solver == "" {
		return errors.New("kinematics_solver is empty")
	}
	if s.Timeout < 0 || s.SearchResolution < 0 {
		return errors.New("negative solver tolerance")
	}
	return nil
}

func (s JointLimitsSpec) validate() error {
	if len(s.Joints) == 0 {
		return errors.New("no joint limits defined")
	}
	for _, name := range sortedKeys(s.Joints) {
		l := s.Joints[name]
		if l.HasVelocityLimits && l.MaxVelocity <= 0 {
			return fmt.Errorf("joint %s: max_velocity must be positive", name)
		}
		if l.HasAccelerationLimits && l.MaxAcceleration <= 0 {
			return fmt.Errorf("joint %s: max_acceleration must be positive", name)
		}
	}
	return nil
}

func (s CartesianLimitsSpec) validate() error {
	if s.MaxTransVel <= 0 {
		return errors.New("max_trans_vel must be positive")
	}
	if s.MaxTransAcc <= 0 {
		return errors.New("max_trans_acc must be positive")
	}
	if s.MaxRotVel <= 0 {
		return errors.New("max_rot_vel must be positive")
	}
	return nil
}

func (s ControllerManagerSpec) validate() error {
	if len(s.ControllerNames) == 0 {
		return errors.New("controller_names is empty")
	}
	for _, name := range s.ControllerNames {
		c, ok := s.Controllers[name]
		if !ok {
			return fmt.Errorf("controller %s listed but not defined", name)
		}
		if len(c.Joints) == 0 {
			return fmt.Errorf("controller %s has no joints", name)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
