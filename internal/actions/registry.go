package actions

import (
	"fmt"
	"sort"

	"github.com/abd3rr/workflow-api/pkg/models"
)

// Registry is the fixed set of actions available to the process. It is
// built once at startup and never changes.
type Registry struct {
	actions map[string]Action
}

// NewRegistry registers actions by name. Empty and duplicate names are
// rejected.
func NewRegistry(actions ...Action) (*Registry, error) {
	r := &Registry{actions: make(map[string]Action, len(actions))}
	for _, a := range actions {
		name := a.Name()
		if name == "" {
			return nil, fmt.Errorf("action with empty name")
		}
		if _, dup := r.actions[name]; dup {
			return nil, fmt.Errorf("action %q registered twice", name)
		}
		seen := map[string]bool{}
		for _, p := range a.Parameters() {
			if seen[p.Name] {
				return nil, fmt.Errorf("action %q declares parameter %q twice", name, p.Name)
			}
			seen[p.Name] = true
		}
		r.actions[name] = a
	}
	return r, nil
}

// Without returns a registry lacking the named actions.
func (r *Registry) Without(names ...string) *Registry {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := &Registry{actions: make(map[string]Action, len(r.actions))}
	for name, a := range r.actions {
		if !drop[name] {
			out.actions[name] = a
		}
	}
	return out
}

func (r *Registry) Lookup(name string) (Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Methods describes every registered action as a catalog method without
// an ID, sorted by name.
func (r *Registry) Methods() []*models.Method {
	methods := make([]*models.Method, 0, len(r.actions))
	for _, name := range r.Names() {
		methods = append(methods, &models.Method{Name: name, Parameters: r.actions[name].Parameters()})
	}
	return methods
}
