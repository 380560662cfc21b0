// Package registry provides engine-plugin discovery, version-gated
// registration and lookup.
package registry

import (
	"fmt"
	"sync"

	"github.com/arkforge/arkforge/pkg/engine"
	"github.com/arkforge/arkforge/pkg/interfaces"
	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
	"github.com/arkforge/arkforge/pkg/version"
)

// DuplicateIDError reports a registration attempt with an id that is
// already present. The first registration stays intact.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("registry: plugin id %q already registered", e.ID)
}

// Factory constructs a live engine instance for a discovered
// descriptor. Factories are looked up by descriptor id.
type Factory func(desc types.PluginDescriptor) (engine.Engine, error)

type entry struct {
	desc     types.PluginDescriptor
	instance engine.Engine
}

// Registry owns plugin descriptors and their live engine instances.
// List order is registration order.
type Registry struct {
	logger    logger.Logger
	validator *version.Validator

	// DisableDiscovery short-circuits Discover entirely when set.
	DisableDiscovery bool

	mu        sync.RWMutex
	order     []string
	entries   map[string]*entry
	factories map[string]Factory
}

// New creates an empty registry.
func New(log logger.Logger, validator *version.Validator) *Registry {
	if validator == nil {
		validator = version.NewValidator(false)
	}
	return &Registry{
		logger:    log,
		validator: validator,
		entries:   make(map[string]*entry),
		factories: make(map[string]Factory),
	}
}

var _ interfaces.PluginLookup = (*Registry)(nil)

// RegisterFactory makes a constructor available to discovery under the
// given plugin id. Later registrations replace earlier ones.
func (r *Registry) RegisterFactory(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// Register stores a live engine under its descriptor id. Registering
// an id twice fails with DuplicateIDError and leaves the first
// registration intact.
func (r *Registry) Register(eng engine.Engine) error {
	desc := eng.Descriptor()
	if desc.ID == "" {
		return fmt.Errorf("registry: descriptor without id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.ID]; exists {
		return &DuplicateIDError{ID: desc.ID}
	}

	r.entries[desc.ID] = &entry{desc: desc, instance: eng}
	r.order = append(r.order, desc.ID)

	if r.logger != nil {
		r.logger.Debug("registered engine plugin",
			logger.WithField("id", desc.ID),
			logger.WithField("version", desc.Version))
	}
	return nil
}

// Unregister removes a plugin; an absent id is a no-op, not an error.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; !exists {
		return
	}
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the descriptor for an id.
func (r *Registry) Get(id string) (types.PluginDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return types.PluginDescriptor{}, false
	}
	return e.desc, true
}

// Engine returns the live engine instance for an id.
func (r *Registry) Engine(id string) (engine.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.instance, true
}

// List enumerates descriptors in registration order.
func (r *Registry) List() []types.PluginDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.PluginDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].desc)
	}
	return out
}
