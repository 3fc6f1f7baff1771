// Package source defines the adapter protocol for external listing and
// register feeds. Each adapter owns its own pagination and normalization
// from the raw provider shape to the canonical listing shape; the
// orchestrator treats all adapters uniformly through the Adapter interface.
package source

import (
	"context"
	"sort"
	"sync"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// Criteria restricts one adapter fetch.
type Criteria struct {
	Postcode string
	City     string
	// Limit caps the number of normalized listings returned; zero means no
	// cap.
	Limit int
}

// Adapter is one external feed. Fetch must not fail on a single malformed
// upstream item: such items are skipped and the rest of the page continues.
// A returned error means the whole fetch for this criteria failed (network,
// auth, non-2xx) and is handled at the orchestrator level.
type Adapter interface {
	Name() string
	SourceType() models.SourceType
	Fetch(ctx context.Context, criteria Criteria) ([]models.NormalizedListing, error)
}

// Registry is an ordered collection of adapters. Registration order is
// preserved so officially-sourced feeds can be run before commercial ones.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
	byName   map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Adapter)}
}

// Register adds an adapter. Registering a second adapter with the same name
// replaces the first.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[a.Name()]; exists {
		for i := range r.adapters {
			if r.adapters[i].Name() == a.Name() {
				r.adapters[i] = a
				break
			}
		}
	} else {
		r.adapters = append(r.adapters, a)
	}
	r.byName[a.Name()] = a
}

// Get returns the adapter with the given name, or nil.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// All returns the adapters in registration order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// Names returns the registered adapter names, sorted for stable diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
