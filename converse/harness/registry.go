package harness

import (
	"fmt"
	"sync"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
)

// Registry holds the tools available to a conversation. Registration order
// is preserved because tool declarations are sent to the endpoint in order.
// The registry is read-only once a turn is running.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]ports.Tool
}

// NewRegistry creates a registry from the given tools. Duplicate names are
// rejected: a name must be unique among all tools passed to one invocation.
func NewRegistry(tools ...ports.Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]ports.Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool, rejecting empty and duplicate names.
func (r *Registry) Register(t ports.Tool) error {
	spec := t.Spec()
	if spec.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tool %s is already registered", spec.Name)
	}
	r.tools[spec.Name] = t
	r.order = append(r.order, spec.Name)
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (ports.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the declared tool specs in registration order.
func (r *Registry) Specs() []ports.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ports.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
