package descriptor

import (
	"fmt"
	"strings"
	"time"

	"roboctl/internal/artifact"
)

// TriggerKind says what a dependency edge waits for.
type TriggerKind int

const (
	// Immediate never gates: the dependent is a root with respect to this edge.
	Immediate TriggerKind = iota
	// OnExit starts the dependent once the predecessor exits, whatever its status.
	OnExit
	// AfterDelay starts the dependent a fixed delay after the predecessor exits.
	AfterDelay
)

func (k TriggerKind) String() string {
	switch k {
	case Immediate:
		return "immediate"
	case OnExit:
		return "on-exit"
	case AfterDelay:
		return "after-delay"
	default:
		return fmt.Sprintf("TriggerKind(%d)", int(k))
	}
}

// Edge is a dependency on a predecessor service.
type Edge struct {
	Predecessor string
	Kind        TriggerKind
	Delay       time.Duration
}

// Gating reports whether the edge holds the dependent back.
func (e Edge) Gating() bool {
	return e.Kind == OnExit || e.Kind == AfterDelay
}

func (e Edge) String() string {
	switch e.Kind {
	case AfterDelay:
		return fmt.Sprintf("%s(%s)+%s", e.Kind, e.Predecessor, e.Delay)
	default:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Predecessor)
	}
}

// ExitOf gates on the predecessor's exit.
func ExitOf(predecessor string) Edge {
	return Edge{Predecessor: predecessor, Kind: OnExit}
}

// DelayAfter gates on the predecessor's exit plus a delay.
func DelayAfter(predecessor string, d time.Duration) Edge {
	return Edge{Predecessor: predecessor, Kind: AfterDelay, Delay: d}
}

// ContractKind distinguishes a single executable from an included launch description.
type ContractKind string

const (
	KindNode    ContractKind = "node"
	KindInclude ContractKind = "include"
)

// Contract describes how to start a service.
type Contract struct {
	Kind ContractKind
	// Package and Executable name a node executable, or for KindInclude the
	// package and launch file of an included description.
	Package    string
	Executable string
	Args       []string
	// Artifacts lists the derived documents the service receives.
	Artifacts []artifact.Name
	// Params are scalar parameters identifying the active variant.
	Params     map[string]interface{}
	UseSimTime bool
}

// CommandLine renders the contract for plan output and logs.
func (c Contract) CommandLine() string {
	parts := []string{c.Package, c.Executable}
	parts = append(parts, c.Args...)
	return strings.Join(parts, " ")
}

// Descriptor is one launchable service.
type Descriptor struct {
	Name     string
	Contract Contract
	Edges    []Edge
}

// GatingEdges returns the edges that hold the service back.
func (d Descriptor) GatingEdges() []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Gating() {
			out = append(out, e)
		}
	}
	return out
}

// IsRoot reports whether the service starts as soon as the run launches.
func (d Descriptor) IsRoot() bool {
	return len(d.GatingEdges()) == 0
}

// CyclicDependencyError reports a dependency cycle. Cycle lists the services
// on the cycle, starting and ending with the same name.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Cycle, " -> ")
}
