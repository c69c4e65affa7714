// Package registry selects provider adapters by model-name prefix.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/davidbz/ember/internal/domain"
)

// Registry implements the domain.ProviderRegistry interface. Dispatch
// is a prefix lookup table built at registration time, not inline
// model-name conditionals.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.Provider
	prefixes  []prefixEntry
	fallback  string
}

type prefixEntry struct {
	prefix   string
	provider string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.Provider),
	}
}

// Register adds a provider and indexes its model-name prefixes.
func (r *Registry) Register(_ context.Context, provider domain.Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.providers[name] = provider
	for _, p := range provider.Prefixes() {
		r.prefixes = append(r.prefixes, prefixEntry{
			prefix:   strings.ToLower(p),
			provider: name,
		})
	}

	return nil
}

// SetFallback names the provider used when no prefix matches.
func (r *Registry) SetFallback(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = name
}

// ForModel returns the provider whose prefix matches the model name,
// or the fallback provider when none does.
func (r *Registry) ForModel(_ context.Context, model string) (domain.Provider, error) {
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}

	key := strings.ToLower(model)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.prefixes {
		if strings.HasPrefix(key, e.prefix) {
			return r.providers[e.provider], nil
		}
	}

	if r.fallback != "" {
		if provider, ok := r.providers[r.fallback]; ok {
			return provider, nil
		}
	}

	return nil, fmt.Errorf("%w: no provider for model %s", domain.ErrUpstreamFailure, model)
}

// List returns all registered provider names.
func (r *Registry) List(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}

	return names, nil
}
