package providers

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry maps vendors to their adapters
type Registry struct {
	mu        sync.RWMutex
	providers map[Vendor]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[Vendor]Provider),
	}
}

// RegisterProvider registers a provider instance
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	vendor := provider.Vendor()
	if !vendor.Valid() {
		return errors.New("provider vendor is not supported")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[vendor]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.providers[vendor] = provider
	return nil
}

// GetProvider retrieves the adapter for a vendor
func (r *Registry) GetProvider(vendor Vendor) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[vendor]
	if !exists {
		return nil, ErrProviderNotFound
	}

	return provider, nil
}

// ListProviders returns registered vendors in a stable order
func (r *Registry) ListProviders() []Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vendors := make([]Vendor, 0, len(r.providers))
	for v := range r.providers {
		vendors = append(vendors, v)
	}
	sort.Slice(vendors, func(i, j int) bool { return vendors[i] < vendors[j] })

	return vendors
}

// Configured returns the vendors whose adapter has a credential
func (r *Registry) Configured() []Vendor {
	var out []Vendor
	for _, v := range r.ListProviders() {
		if p, err := r.GetProvider(v); err == nil && p.HasCredential() {
			out = append(out, v)
		}
	}
	return out
}

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}
