package auth

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderRegistry holds named token providers ("connections").
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]AccessTokenProvider
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]AccessTokenProvider)}
}

// Register adds or replaces a named provider.
func (r *ProviderRegistry) Register(name string, p AccessTokenProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns the named provider.
func (r *ProviderRegistry) Get(name string) (AccessTokenProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("token provider %q is not registered", name)
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *ProviderRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
