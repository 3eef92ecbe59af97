package pipeline

import "sync"

// Registry tracks the sources that currently exist and are eligible for
// assignment. The capture layer registers a source when it appears and
// unregisters it when it goes away; neither call touches existing
// assignments.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry returns an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source to the eligible set. Re-registering an identifier
// replaces the stored source.
func (r *Registry) Register(src Source) {
	if src == nil || src.Identifier() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.Identifier()] = src
}

// Unregister removes a source from the eligible set. Existing assignments
// that reference the source are left untouched.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, id)
}

// Eligible reports whether a source with the given identifier is registered.
func (r *Registry) Eligible(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[id]
	return ok
}

// Get returns the registered source for an identifier.
func (r *Registry) Get(id string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[id]
	return src, ok
}

// IDs returns the identifiers of all registered sources. Order is not
// specified.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	return ids
}
