package agent

import (
	"errors"
	"fmt"

	"github.com/ensemble-ai/ensemble/pkg/registry"
)

// Registry maps agent name to agent handle. Writes happen mostly at
// startup; reads dominate afterwards. Listing preserves insertion order so
// the supervisor prompt is deterministic.
type Registry struct {
	agents *registry.BaseRegistry[*Agent]
}

func NewRegistry() *Registry {
	return &Registry{agents: registry.NewBaseRegistry[*Agent]()}
}

// Register adds an agent. An existing name fails with DuplicateAgentError
// unless overwrite is set; overwriting keeps the original position.
func (r *Registry) Register(a *Agent, overwrite bool) error {
	if a == nil || a.Name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}

	if overwrite {
		return r.agents.Replace(a.Name, a)
	}
	if err := r.agents.Register(a.Name, a); err != nil {
		if _, exists := r.agents.Get(a.Name); exists {
			return &DuplicateAgentError{Name: a.Name}
		}
		return err
	}
	return nil
}

// Unregister removes an agent by name.
func (r *Registry) Unregister(name string) error {
	if err := r.agents.Remove(name); err != nil {
		return errors.New("agent not registered: " + name)
	}
	return nil
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (*Agent, bool) {
	return r.agents.Get(name)
}

// All returns every registered agent in insertion order.
func (r *Registry) All() []*Agent {
	return r.agents.List()
}

// IsRegistered reports whether name is present.
func (r *Registry) IsRegistered(name string) bool {
	_, ok := r.agents.Get(name)
	return ok
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	return r.agents.Count()
}
