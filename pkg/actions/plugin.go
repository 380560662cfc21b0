// Package actions implements the pre-build action pipeline: ordered,
// optionally parallel plugin execution over a workspace before a build
// starts.
package actions

import (
	"fmt"
	"sync"

	"github.com/arkforge/arkforge/pkg/types"
)

// Plugin is a pre-build action. Describe must be cheap and must return
// a stable ID; PreCompile does the work and may be invoked from a
// worker goroutine.
type Plugin interface {
	Describe() types.ActionDescriptor
	PreCompile(ctx *Context) error
}

// Registry holds the known action plugins in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	plugins map[string]Plugin
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin. Registering a duplicate ID keeps the
// existing plugin and returns an error.
func (r *Registry) Register(p Plugin) error {
	desc := p.Describe()
	if desc.ID == "" {
		return fmt.Errorf("action plugin has empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[desc.ID]; exists {
		return fmt.Errorf("action plugin %q already registered", desc.ID)
	}
	r.plugins[desc.ID] = p
	r.order = append(r.order, desc.ID)
	return nil
}

// Get returns the plugin registered under id.
func (r *Registry) Get(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// List returns all plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plugins[id])
	}
	return out
}

// IDs returns the registered plugin ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
