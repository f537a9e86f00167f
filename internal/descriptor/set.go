package descriptor

import (
	"fmt"

	"roboctl/internal/artifact"
)

// Set is the ordered, static catalogue of services for one run. Insertion
// order is preserved and breaks ties between services started by one event.
type Set struct {
	items []Descriptor
	index map[string]int
	// dependents maps a predecessor to the services naming it, in insertion order.
	dependents map[string][]string
}

// NewSet validates and indexes descriptors. Names must be unique and every
// edge must name a service in the set. The graph is checked for cycles.
func NewSet(descs ...Descriptor) (*Set, error) {
	s := &Set{
		index:      make(map[string]int, len(descs)),
		dependents: make(map[string][]string),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("descriptor without a name")
		}
		if _, dup := s.index[d.Name]; dup {
			return nil, fmt.Errorf("duplicate service %q", d.Name)
		}
		s.index[d.Name] = len(s.items)
		s.items = append(s.items, d)
	}

	for _, d := range s.items {
		seen := map[string]bool{}
		for _, e := range d.Edges {
			if _, ok := s.index[e.Predecessor]; !ok {
				return nil, fmt.Errorf("service %q depends on unknown service %q", d.Name, e.Predecessor)
			}
			if e.Predecessor == d.Name {
				return nil, &CyclicDependencyError{Cycle: []string{d.Name, d.Name}}
			}
			if e.Kind == AfterDelay && e.Delay < 0 {
				return nil, fmt.Errorf("service %q: negative delay after %q", d.Name, e.Predecessor)
			}
			if !seen[e.Predecessor] {
				s.dependents[e.Predecessor] = append(s.dependents[e.Predecessor], d.Name)
				seen[e.Predecessor] = true
			}
		}
	}

	if err := s.detectCycles(); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of services.
func (s *Set) Len() int { return len(s.items) }

// Descriptors returns the services in insertion order.
func (s *Set) Descriptors() []Descriptor {
	out := make([]Descriptor, len(s.items))
	copy(out, s.items)
	return out
}

// Names returns the service names in insertion order.
func (s *Set) Names() []string {
	out := make([]string, len(s.items))
	for i, d := range s.items {
		out[i] = d.Name
	}
	return out
}

// Get returns the named descriptor.
func (s *Set) Get(name string) (Descriptor, bool) {
	i, ok := s.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return s.items[i], true
}

// Position returns the insertion index of name, or -1.
func (s *Set) Position(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Dependents returns the services with an edge on name, in insertion order.
func (s *Set) Dependents(name string) []string {
	deps := s.dependents[name]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Roots returns the services with no gating edges.
func (s *Set) Roots() []string {
	var out []string
	for _, d := range s.items {
		if d.IsRoot() {
			out = append(out, d.Name)
		}
	}
	return out
}

// Leaves returns the services no other service depends on.
func (s *Set) Leaves() []string {
	var out []string
	for _, d := range s.items {
		if len(s.dependents[d.Name]) == 0 {
			out = append(out, d.Name)
		}
	}
	return out
}

// RequiredArtifacts returns the union of artifacts the services need, in
// artifact build order.
func (s *Set) RequiredArtifacts() []artifact.Name {
	need := map[artifact.Name]bool{}
	for _, d := range s.items {
		for _, n := range d.Contract.Artifacts {
			need[n] = true
		}
	}
	var out []artifact.Name
	for _, n := range artifact.AllNames {
		if need[n] {
			out = append(out, n)
			delete(need, n)
		}
	}
	// names outside the known kinds are kept so the builder can reject them
	for _, d := range s.items {
		for _, n := range d.Contract.Artifacts {
			if need[n] {
				out = append(out, n)
				delete(need, n)
			}
		}
	}
	return out
}

// TopologicalOrder returns the services so that every predecessor precedes
// its dependents. Among ready services insertion order is kept.
func (s *Set) TopologicalOrder() []string {
	indegree := make([]int, len(s.items))
	for i, d := range s.items {
		seen := map[string]bool{}
		for _, e := range d.Edges {
			if !seen[e.Predecessor] {
				indegree[i]++
				seen[e.Predecessor] = true
			}
		}
	}

	done := make([]bool, len(s.items))
	out := make([]string, 0, len(s.items))
	for len(out) < len(s.items) {
		progressed := false
		for i, d := range s.items {
			if done[i] || indegree[i] > 0 {
				continue
			}
			done[i] = true
			out = append(out, d.Name)
			for _, dep := range s.dependents[d.Name] {
				indegree[s.index[dep]]--
			}
			progressed = true
			break
		}
		if !progressed {
			// unreachable for a validated set
			break
		}
	}
	return out
}

// detectCycles runs a three-colour depth-first search over predecessor ->
// dependent edges, visiting services in insertion order.
func (s *Set) detectCycles() error {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int, len(s.items))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch colour[name] {
		case black:
			return nil
		case grey:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			cycle := append([]string{}, stack[start:]...)
			return &CyclicDependencyError{Cycle: append(cycle, name)}
		}

		colour[name] = grey
		stack = append(stack, name)
		for _, dep := range s.dependents[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		colour[name] = black
		return nil
	}

	for _, d := range s.items {
		if err := visit(d.Name); err != nil {
			return err
		}
	}
	return nil
}
