package descriptor

import (
	"fmt"
	"time"

	"roboctl/internal/artifact"
	"roboctl/internal/variant"
	"roboctl/pkg/logging"
)

// Profile selects which service catalogue is materialized.
type Profile string

const (
	// ProfileSimulation brings up the simulated robot and its controllers.
	ProfileSimulation Profile = "simulation"
	// ProfileInterface adds motion planning and the execution interfaces.
	ProfileInterface Profile = "interface"
)

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileSimulation, ProfileInterface:
		return Profile(s), nil
	case "":
		return ProfileSimulation, nil
	}
	return "", fmt.Errorf("unknown profile %q (allowed: %s, %s)", s, ProfileSimulation, ProfileInterface)
}

// Service names shared by both profiles.
const (
	RobotStatePublisher   = "robot_state_publisher"
	JointStateBroadcaster = "joint_state_broadcaster"
	Gazebo                = "gazebo"
	SpawnEntity           = "spawn_entity"
	StaticTransform       = "static_transform_publisher"
	ArmController         = "ur_controller"
	MoveGroup             = "move_group"
	Rviz                  = "rviz2"
	MoveInterface         = "move"
	SequenceInterface     = "sequence"
)

// GripperJointGroups are the actuated joint groups of the parallel gripper,
// one controller each.
var GripperJointGroups = []string{"LKJ", "RKJ", "LIKJ", "RIKJ", "LFTJ", "RFTJ"}

// GripperController returns the controller service name for a joint group.
func GripperController(group string) string {
	return "robotiq_controller_" + group
}

// Options tune materialization beyond the configuration bundle.
type Options struct {
	Profile Profile
	Rviz    bool
	// MotionPlanningDelay separates the gate exit from motion planning start.
	MotionPlanningDelay time.Duration
	// ExecutionDelay separates the gate exit from the execution interfaces.
	ExecutionDelay time.Duration
}

// DefaultOptions returns the delays used by the robot cell launch files.
func DefaultOptions() Options {
	return Options{
		Profile:             ProfileSimulation,
		MotionPlanningDelay: 2 * time.Second,
		ExecutionDelay:      5 * time.Second,
	}
}

// Materialize builds the service catalogue for a bundle. It performs no I/O.
func Materialize(bundle variant.Bundle, opts Options) (*Set, error) {
	var descs []Descriptor
	switch opts.Profile {
	case ProfileSimulation, "":
		descs = simulationProfile(bundle)
	case ProfileInterface:
		descs = interfaceProfile(bundle, opts)
	default:
		return nil, fmt.Errorf("unknown profile %q", opts.Profile)
	}

	set, err := NewSet(descs...)
	if err != nil {
		return nil, err
	}
	logging.Info("Descriptors", "Materialized %d services (%s profile, %s)", set.Len(), profileName(opts.Profile), bundle.Selection().Key())
	return set, nil
}

func profileName(p Profile) Profile {
	if p == "" {
		return ProfileSimulation
	}
	return p
}

func node(name, pkg, exe string, args ...string) Descriptor {
	return Descriptor{
		Name:     name,
		Contract: Contract{Kind: KindNode, Package: pkg, Executable: exe, Args: args},
	}
}

func (d Descriptor) with(arts []artifact.Name, simTime bool, edges ...Edge) Descriptor {
	d.Contract.Artifacts = arts
	d.Contract.UseSimTime = simTime
	d.Edges = edges
	return d
}

func spawner(controller string, flag string) Descriptor {
	return node(controller, "controller_manager", "spawner", controller, flag, "/controller_manager")
}

func gazeboInclude(bundle variant.Bundle) Descriptor {
	world := bundle.Sources().World
	return Descriptor{
		Name: Gazebo,
		Contract: Contract{
			Kind:       KindInclude,
			Package:    "gazebo_ros",
			Executable: "gazebo.launch.py",
			Args:       []string{"world:=$(share " + world.Package + ")/" + world.Path},
		},
	}
}

func spawnEntity(bundle variant.Bundle) Descriptor {
	return node(SpawnEntity, "gazebo_ros", "spawn_entity.py", "-topic", "robot_description", "-entity", bundle.Robot())
}

func robotStatePublisher(bundle variant.Bundle) Descriptor {
	return node(RobotStatePublisher, "robot_state_publisher", "robot_state_publisher").
		with([]artifact.Name{artifact.RobotDescription}, bundle.UseSimTime())
}

func gripperFanOut(after string) []Descriptor {
	out := make([]Descriptor, 0, len(GripperJointGroups))
	for _, g := range GripperJointGroups {
		out = append(out, spawner(GripperController(g), "-c").with(nil, false, ExitOf(after)))
	}
	return out
}

func simulationProfile(bundle variant.Bundle) []Descriptor {
	descs := []Descriptor{
		robotStatePublisher(bundle),
		spawner(JointStateBroadcaster, "--controller-manager"),
		gazeboInclude(bundle),
		spawnEntity(bundle),
		spawner(ArmController, "-c").with(nil, false, ExitOf(SpawnEntity)),
	}
	if bundle.Selection().HasGripper() {
		descs = append(descs, gripperFanOut(ArmController)...)
	}
	return descs
}

func interfaceProfile(bundle variant.Bundle, opts Options) []Descriptor {
	descs := []Descriptor{
		gazeboInclude(bundle),
		spawnEntity(bundle),
		node(StaticTransform, "tf2_ros", "static_transform_publisher",
			"0.0", "0.0", "0.0", "0.0", "0.0", "0.0", "world", "base_link"),
		robotStatePublisher(bundle),
		spawner(JointStateBroadcaster, "--controller-manager").with(nil, false, ExitOf(SpawnEntity)),
		spawner(ArmController, "-c").with(nil, false, ExitOf(JointStateBroadcaster)),
	}

	// The motion planning stage is gated on the last controller spawned.
	gate := ArmController
	if bundle.Selection().HasGripper() {
		descs = append(descs, gripperFanOut(ArmController)...)
		gate = GripperController(GripperJointGroups[len(GripperJointGroups)-1])
	}

	planning := []artifact.Name{
		artifact.RobotDescription,
		artifact.RobotDescriptionSemantic,
		artifact.RobotDescriptionKinematics,
		artifact.PlanningPipeline,
		artifact.JointLimits,
		artifact.CartesianLimits,
		artifact.MoveItControllers,
	}
	sim := bundle.UseSimTime()

	if opts.Rviz {
		descs = append(descs, node(Rviz, "rviz2", "rviz2", "-d", "$(artifact rviz_config)").
			with(append(append([]artifact.Name{}, planning...), artifact.RvizConfig), sim, DelayAfter(gate, opts.MotionPlanningDelay)))
	}
	descs = append(descs, node(MoveGroup, "moveit_ros_move_group", "move_group").
		with(planning, sim, DelayAfter(gate, opts.MotionPlanningDelay)))

	execArtifacts := []artifact.Name{
		artifact.RobotDescription,
		artifact.RobotDescriptionSemantic,
		artifact.RobotDescriptionKinematics,
	}
	for _, name := range []string{MoveInterface, SequenceInterface} {
		d := node(name, "ros2srrc_execution", name).with(execArtifacts, sim, DelayAfter(gate, opts.ExecutionDelay))
		d.Contract.Params = bundle.ScalarParams()
		descs = append(descs, d)
	}
	return descs
}
