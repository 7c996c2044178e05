package provider

import "paylink/internal/domain"

// Registry holds the adapter for each configured provider. The set is fixed
// at startup; a record created under a provider is always resolved through
// the same adapter.
type Registry struct {
	adapters map[domain.Provider]Adapter
}

// NewRegistry creates a registry from the given adapters. Nil adapters are
// skipped.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Provider]Adapter)}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		r.adapters[a.Name()] = a
	}
	return r
}

// ForProvider returns the adapter owning the given provider.
func (r *Registry) ForProvider(p domain.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return a, nil
}

// Has reports whether an adapter is registered for the given provider.
func (r *Registry) Has(p domain.Provider) bool {
	_, ok := r.adapters[p]
	return ok
}
