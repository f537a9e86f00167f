package artifact

import (
	"fmt"
	"sort"
)

// Name identifies a derived configuration document.
type Name string

const (
	RobotDescription           Name = "robot_description"
	RobotDescriptionSemantic   Name = "robot_description_semantic"
	RobotDescriptionKinematics Name = "robot_description_kinematics"
	JointLimits                Name = "joint_limits"
	CartesianLimits            Name = "cartesian_limits"
	PlanningPipeline           Name = "planning_pipeline"
	MoveItControllers          Name = "moveit_controllers"
	RvizConfig                 Name = "rviz_config"
)

// AllNames lists every artifact kind in build order.
var AllNames = []Name{
	RobotDescription,
	RobotDescriptionSemantic,
	RobotDescriptionKinematics,
	JointLimits,
	CartesianLimits,
	PlanningPipeline,
	MoveItControllers,
	RvizConfig,
}

// Artifact is a derived document computed once per run and shared read-only
// by every service that consumes it.
type Artifact interface {
	Name() Name
	// Source is the file the artifact was derived from, "package:path", or
	// empty when the document is built entirely in code.
	Source() string
	// Parameters is the artifact in parameter form, as handed to a service.
	Parameters() map[string]interface{}
	// Document renders the artifact as a standalone document.
	Document() []byte
}

// ArtifactMissingError reports a source file that is absent for the resolved
// combination. It is fatal and raised before any service is launched.
type ArtifactMissingError struct {
	Artifact Name
	Path     string
	Err      error
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("artifact %s: source %s not available: %v", e.Artifact, e.Path, e.Err)
}

func (e *ArtifactMissingError) Unwrap() error {
	return e.Err
}

// InvalidArtifactError reports a source that exists but fails validation.
type InvalidArtifactError struct {
	Artifact Name
	Path     string
	Err      error
}

func (e *InvalidArtifactError) Error() string {
	return fmt.Sprintf("artifact %s: invalid source %s: %v", e.Artifact, e.Path, e.Err)
}

func (e *InvalidArtifactError) Unwrap() error {
	return e.Err
}

// Set holds the artifacts of one run. It is never modified after Build returns.
type Set struct {
	items map[Name]Artifact
}

// Get returns the artifact with the given name.
func (s *Set) Get(name Name) (Artifact, bool) {
	if s == nil {
		return nil, false
	}
	a, ok := s.items[name]
	return a, ok
}

// Names returns the artifact names in sorted order.
func (s *Set) Names() []Name {
	if s == nil {
		return nil
	}
	out := make([]Name, 0, len(s.items))
	for n := range s.items {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of artifacts.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Select returns the named artifacts. The returned map shares the artifact
// values with the set; nothing is copied or recomputed.
func (s *Set) Select(names []Name) (map[Name]Artifact, error) {
	out := make(map[Name]Artifact, len(names))
	for _, n := range names {
		a, ok := s.Get(n)
		if !ok {
			return nil, fmt.Errorf("artifact %s was not built for this run", n)
		}
		out[n] = a
	}
	return out, nil
}
