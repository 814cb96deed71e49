package workflow

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrStageAlreadyRegistered is returned when two stages share a name.
	ErrStageAlreadyRegistered = errors.New("stage already registered")

	// ErrStageNotFound is returned for an unknown stage name or dependency.
	ErrStageNotFound = errors.New("stage not found")

	// ErrDependencyCycle is returned when stage dependencies form a cycle.
	ErrDependencyCycle = errors.New("dependency cycle detected")
)

// Registry is the fixed set of stages a book goes through. It is checked
// and ordered once in NewRegistry and read-only afterwards.
type Registry struct {
	stages map[string]Stage
	order  []string
}

// NewRegistry validates the stages and orders them so every stage follows
// its dependencies. Independent stages keep the order they were given in.
func NewRegistry(stages ...Stage) (*Registry, error) {
	r := &Registry{stages: make(map[string]Stage, len(stages))}
	var given []string
	for _, s := range stages {
		name := s.Name()
		if _, dup := r.stages[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrStageAlreadyRegistered, name)
		}
		r.stages[name] = s
		given = append(given, name)
	}
	for _, name := range given {
		for _, dep := range r.stages[name].Dependencies() {
			if _, ok := r.stages[dep]; !ok {
				return nil, fmt.Errorf("%w: stage %q depends on %q", ErrStageNotFound, name, dep)
			}
		}
	}

	placed := make(map[string]bool, len(given))
	for len(r.order) < len(given) {
		next := ""
		for _, name := range given {
			if !placed[name] && r.ready(name, placed) {
				next = name
				break
			}
		}
		if next == "" {
			return nil, ErrDependencyCycle
		}
		placed[next] = true
		r.order = append(r.order, next)
	}
	return r, nil
}

func (r *Registry) ready(name string, placed map[string]bool) bool {
	for _, dep := range r.stages[name].Dependencies() {
		if !placed[dep] {
			return false
		}
	}
	return true
}

// Get returns a stage by name.
func (r *Registry) Get(name string) (Stage, bool) {
	s, ok := r.stages[name]
	return s, ok
}

// Names returns the stage names in run order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Ordered returns the stages in run order.
func (r *Registry) Ordered() []Stage {
	out := make([]Stage, len(r.order))
	for i, name := range r.order {
		out[i] = r.stages[name]
	}
	return out
}

// Downstream returns, in run order, every stage that consumes the output of
// name directly or through another stage. Re-running name makes their
// recorded results stale.
func (r *Registry) Downstream(name string) []string {
	affected := map[string]bool{name: true}
	var out []string
	for _, n := range r.order {
		if n == name {
			continue
		}
		for _, dep := range r.stages[n].Dependencies() {
			if affected[dep] {
				affected[n] = true
				out = append(out, n)
				break
			}
		}
	}
	return out
}
