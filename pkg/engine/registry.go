package engine

import (
	"fmt"
)

// Registry is a catalog of named installer actions. Registration order is
// preserved and breaks ties during planning, so the catalog build order is
// part of the plan contract.
type Registry struct {
	specs  []*ActionSpec
	byName map[string]*ActionSpec
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:  make([]*ActionSpec, 0),
		byName: make(map[string]*ActionSpec),
	}
}

// Register adds an action to the catalog. It fails fast on a duplicate
// name, a non-idempotent spec, or a dependency cycle completed by this
// registration. Dependencies may reference actions registered later;
// Validate catches names that never resolve.
func (r *Registry) Register(spec ActionSpec) error {
	if spec.Name == "" {
		return NewPreconditionError(CodeInvalidSpec, "action has empty name")
	}
	if !spec.Idempotent {
		return NewPreconditionError(CodeInvalidSpec,
			fmt.Sprintf("action %s is not declared idempotent", spec.Name))
	}
	if spec.Precondition == nil || spec.Apply == nil {
		return NewPreconditionError(CodeInvalidSpec,
			fmt.Sprintf("action %s is missing a precondition or apply step", spec.Name))
	}
	if spec.Retries < 0 {
		return NewPreconditionError(CodeInvalidSpec,
			fmt.Sprintf("action %s has negative retry budget", spec.Name))
	}
	if _, exists := r.byName[spec.Name]; exists {
		return NewPreconditionError(CodeDuplicateAction,
			fmt.Sprintf("action %s is already registered", spec.Name))
	}

	s := spec
	r.byName[s.Name] = &s
	r.specs = append(r.specs, &s)

	if cycle := r.findCycle(s.Name); cycle != nil {
		delete(r.byName, s.Name)
		r.specs = r.specs[:len(r.specs)-1]
		return NewPreconditionError(CodeCyclicDependency,
			fmt.Sprintf("registering %s completes a dependency cycle: %s", s.Name, formatCycle(cycle)))
	}

	return nil
}

// Validate checks that every declared dependency resolves to a registered
// action. Called once after the catalog is built.
func (r *Registry) Validate() error {
	for _, spec := range r.specs {
		for _, dep := range spec.DependsOn {
			if _, ok := r.byName[dep]; !ok {
				return NewPreconditionError(CodeUnknownAction,
					fmt.Sprintf("action %s depends on unregistered action %s", spec.Name, dep)).
					WithAction(spec.Name)
			}
		}
	}
	return nil
}

// Get returns the spec registered under name.
func (r *Registry) Get(name string) (*ActionSpec, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Specs returns all registered specs in registration order. Callers must
// treat the returned slice as read-only.
func (r *Registry) Specs() []*ActionSpec {
	return r.specs
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.specs)
}

// findCycle runs a depth-first search from start over the dependency
// edges whose endpoints are both registered, returning the cycle path if
// one is reachable.
func (r *Registry) findCycle(start string) []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var walk func(name string, path []string) []string
	walk = func(name string, path []string) []string {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		spec := r.byName[name]
		for _, dep := range spec.DependsOn {
			if _, known := r.byName[dep]; !known {
				continue
			}
			if onStack[dep] {
				for i, n := range path {
					if n == dep {
						return append(path[i:], dep)
					}
				}
				return append(path, dep)
			}
			if !visited[dep] {
				if cycle := walk(dep, path); cycle != nil {
					return cycle
				}
			}
		}

		onStack[name] = false
		return nil
	}

	return walk(start, nil)
}

func formatCycle(cycle []string) string {
	out := ""
	for i, name := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += name
	}
	return out
}
