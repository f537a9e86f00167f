package artifact

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"roboctl/internal/variant"
	"roboctl/pkg/logging"
)

const (
	pilzPlanner      = "pilz_industrial_motion_planner/CommandPlanner"
	omplPlanner      = "ompl_interface/OMPLPlanner"
	omplAdapters     = "default_planner_request_adapters/AddTimeOptimalParameterization default_planner_request_adapters/FixWorkspaceBounds default_planner_request_adapters/FixStartStateBounds default_planner_request_adapters/FixStartStateCollision default_planner_request_adapters/FixStartStatePathConstraints"
	pilzCapabilities = "pilz_industrial_motion_planner/MoveGroupSequenceAction pilz_industrial_motion_planner/MoveGroupSequenceService"
	simpleManager    = "moveit_simple_controller_manager/MoveItSimpleControllerManager"
)

// Builder derives the artifacts of a run from a configuration bundle.
type Builder struct {
	locator  Locator
	renderer DescriptionRenderer
}

// NewBuilder creates a builder reading sources through locator. A nil
// renderer selects the in-process ArgRenderer.
func NewBuilder(locator Locator, renderer DescriptionRenderer) *Builder {
	if renderer == nil {
		renderer = ArgRenderer{}
	}
	return &Builder{locator: locator, renderer: renderer}
}

// Build produces exactly the required artifacts for bundle. It stops at the
// first missing or invalid source so that nothing is launched on a partial set.
func (b *Builder) Build(ctx context.Context, bundle variant.Bundle, required []Name) (*Set, error) {
	set := &Set{items: make(map[Name]Artifact, len(required))}

	for _, name := range AllNames {
		if !contains(required, name) {
			continue
		}
		a, err := b.build(ctx, bundle, name)
		if err != nil {
			logging.Error("Artifacts", err, "Failed to build %s for %s", name, bundle.Selection().Key())
			return nil, err
		}
		set.items[name] = a
		logging.Debug("Artifacts", "Built %s from %s", name, a.Source())
	}

	for _, name := range required {
		if _, ok := set.items[name]; !ok {
			return nil, fmt.Errorf("unknown artifact %q", name)
		}
	}

	logging.Info("Artifacts", "Built %d artifacts for %s", set.Len(), bundle.Selection().Key())
	return set, nil
}

func (b *Builder) build(ctx context.Context, bundle variant.Bundle, name Name) (Artifact, error) {
	src := bundle.Sources()
	switch name {
	case RobotDescription:
		return b.buildDescription(ctx, bundle, src.DescriptionTemplate)
	case RobotDescriptionSemantic:
		return b.buildSemantic(src.Semantic)
	case RobotDescriptionKinematics:
		return b.buildKinematics(src.Kinematics)
	case JointLimits:
		return b.buildJointLimits(src.JointLimits)
	case CartesianLimits:
		return b.buildCartesianLimits(src.CartesianLimits)
	case PlanningPipeline:
		return b.buildPlanningPipeline(src.Planning)
	case MoveItControllers:
		return b.buildControllers(src.Controllers)
	case RvizConfig:
		return b.buildRviz(src.Rviz)
	}
	return nil, fmt.Errorf("unknown artifact %q", name)
}

func (b *Builder) read(name Name, ref variant.SourceRef) ([]byte, error) {
	data, err := b.locator.ReadFile(ref)
	if err != nil {
		return nil, &ArtifactMissingError{Artifact: name, Path: ref.String(), Err: err}
	}
	return data, nil
}

func invalid(name Name, ref variant.SourceRef, err error) error {
	return &InvalidArtifactError{Artifact: name, Path: ref.String(), Err: err}
}

func (b *Builder) buildDescription(ctx context.Context, bundle variant.Bundle, ref variant.SourceRef) (Artifact, error) {
	tmpl, err := b.read(RobotDescription, ref)
	if err != nil {
		return nil, err
	}
	out, err := b.renderer.Render(ctx, tmpl, b.locator.HostPath(ref), bundle.Mappings())
	if err != nil {
		return nil, invalid(RobotDescription, ref, err)
	}
	if err := checkXML(out, "robot"); err != nil {
		return nil, invalid(RobotDescription, ref, err)
	}
	xmlDoc := string(out)
	return &DescriptionDocument{
		document: document{
			name:   RobotDescription,
			source: ref.String(),
			params: map[string]interface{}{"robot_description": xmlDoc},
			doc:    out,
		},
		XML: xmlDoc,
	}, nil
}

func (b *Builder) buildSemantic(ref variant.SourceRef) (Artifact, error) {
	data, err := b.read(RobotDescriptionSemantic, ref)
	if err != nil {
		return nil, err
	}
	if err := checkXML(data, "robot"); err != nil {
		return nil, invalid(RobotDescriptionSemantic, ref, err)
	}
	srdf := string(data)
	return &SemanticDocument{
		document: document{
			name:   RobotDescriptionSemantic,
			source: ref.String(),
			params: map[string]interface{}{"robot_description_semantic": srdf},
			doc:    data,
		},
		SRDF: srdf,
	}, nil
}

func (b *Builder) buildKinematics(ref variant.SourceRef) (Artifact, error) {
	data, err := b.read(RobotDescriptionKinematics, ref)
	if err != nil {
		return nil, err
	}
	groups := map[string]KinematicsSolver{}
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, invalid(RobotDescriptionKinematics, ref, err)
	}
	if len(groups) == 0 {
		return nil, invalid(RobotDescriptionKinematics, ref, fmt.Errorf("no planning groups defined"))
	}
	for _, g := range sortedKeys(groups) {
		if err := groups[g].validate(); err != nil {
			return nil, invalid(RobotDescriptionKinematics, ref, fmt.Errorf("group %s: %w", g, err))
		}
	}
	params, raw, err := toParams(groups)
	if err != nil {
		return nil, invalid(RobotDescriptionKinematics, ref, err)
	}
	return &KinematicsDocument{
		document: document{
			name:   RobotDescriptionKinematics,
			source: ref.String(),
			params: map[string]interface{}{"robot_description_kinematics": params},
			doc:    raw,
		},
		Groups: groups,
	}, nil
}

func (b *Builder) buildJointLimits(ref variant.SourceRef) (Artifact, error) {
	data, err := b.read(JointLimits, ref)
	if err != nil {
		return nil, err
	}
	var spec JointLimitsSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, invalid(JointLimits, ref, err)
	}
	if err := spec.validate(); err != nil {
		return nil, invalid(JointLimits, ref, err)
	}
	params, raw, err := toParams(spec)
	if err != nil {
		return nil, invalid(JointLimits, ref, err)
	}
	return &JointLimitsDocument{
		document: document{
			name:   JointLimits,
			source: ref.String(),
			params: map[string]interface{}{"robot_description_planning": params},
			doc:    raw,
		},
		Spec: spec,
	}, nil
}

func (b *Builder) buildCartesianLimits(ref variant.SourceRef) (Artifact, error) {
	data, err := b.read(CartesianLimits, ref)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Limits CartesianLimitsSpec `yaml:"cartesian_limits"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, invalid(CartesianLimits, ref, err)
	}
	if err := wrapper.Limits.validate(); err != nil {
		return nil, invalid(CartesianLimits, ref, err)
	}
	params, raw, err := toParams(wrapper)
	if err != nil {
		return nil, invalid(CartesianLimits, ref, err)
	}
	return &CartesianLimitsDocument{
		document: document{
			name:   CartesianLimits,
			source: ref.String(),
			params: map[string]interface{}{"robot_description_planning": params},
			doc:    raw,
		},
		Spec: wrapper.Limits,
	}, nil
}

func (b *Builder) buildPlanningPipeline(ref variant.SourceRef) (Artifact, error) {
	data, err := b.read(PlanningPipeline, ref)
	if err != nil {
		return nil, err
	}
	extra := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, invalid(PlanningPipeline, ref, err)
	}

	active := PipelineConfig{
		PlanningPlugin:           pilzPlanner,
		RequestAdapters:          " ",
		StartStateMaxBoundsError: 0.1,
		DefaultPlannerConfig:     "PTP",
	}
	sampling := PipelineConfig{
		PlanningPlugin:           omplPlanner,
		RequestAdapters:          omplAdapters,
		StartStateMaxBoundsError: 0.1,
		Extra:                    extra,
	}

	activeParams, _, err := toParams(active)
	if err != nil {
		return nil, invalid(PlanningPipeline, ref, err)
	}
	_, raw, err := toParams(map[string]interface{}{
		"move_group":   active,
		"ompl":         sampling,
		"capabilities": pilzCapabilities,
	})
	if err != nil {
		return nil, invalid(PlanningPipeline, ref, err)
	}

	return &PlanningPipelineDocument{
		document: document{
			name:   PlanningPipeline,
			source: ref.String(),
			params: map[string]interface{}{
				"move_group":   activeParams,
				"capabilities": pilzCapabilities,
			},
			doc: raw,
		},
		Active:       active,
		Sampling:     sampling,
		Capabilities: pilzCapabilities,
	}, nil
}

func (b *Builder) buildControllers(ref variant.SourceRef) (Artifact, error) {
	data, err := b.read(MoveItControllers, ref)
	if err != nil {
		return nil, err
	}
	var spec ControllerManagerSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, invalid(MoveItControllers, ref, err)
	}
	if err := spec.validate(); err != nil {
		return nil, invalid(MoveItControllers, ref, err)
	}
	managerParams, _, err := toParams(spec)
	if err != nil {
		return nil, invalid(MoveItControllers, ref, err)
	}

	exec := TrajectoryExecution{
		ManageControllers:     true,
		DurationScaling:       1.2,
		GoalDurationMargin:    0.5,
		AllowedStartTolerance: 0.01,
	}
	params := map[string]interface{}{
		"moveit_simple_controller_manager":                        managerParams,
		"moveit_controller_manager":                               simpleManager,
		"moveit_manage_controllers":                               exec.ManageControllers,
		"trajectory_execution.allowed_execution_duration_scaling": exec.DurationScaling,
		"trajectory_execution.allowed_goal_duration_margin":       exec.GoalDurationMargin,
		"trajectory_execution.allowed_start_tolerance":            exec.AllowedStartTolerance,
		"publish_planning_scene":                                  true,
		"publish_geometry_updates":                                true,
		"publish_state_updates":                                   true,
		"publish_transforms_updates":                              true,
	}
	raw, err := yaml.Marshal(params)
	if err != nil {
		return nil, invalid(MoveItControllers, ref, err)
	}

	return &ControllersDocument{
		document: document{
			name:   MoveItControllers,
			source: ref.String(),
			params: params,
			doc:    raw,
		},
		Spec:      spec,
		Execution: exec,
	}, nil
}

func (b *Builder) buildRviz(ref variant.SourceRef) (Artifact, error) {
	data, err := b.read(RvizConfig, ref)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, invalid(RvizConfig, ref, fmt.Errorf("file is empty"))
	}
	return &RvizDocument{
		document: document{
			name:   RvizConfig,
			source: ref.String(),
			params: map[string]interface{}{},
			doc:    data,
		},
		Path: b.locator.HostPath(ref),
	}, nil
}

func contains(names []Name, n Name) bool {
	for _, x := range names {
		if x == n {
			return true
		}
	}
	return false
}
