package repositories

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prospecthq/prospect-engine/pkg/apperrors"
	"github.com/prospecthq/prospect-engine/pkg/models"
)

// memoryPropertyRepository is a map-backed gateway used in tests and local
// runs without Postgres. Records are deep-copied on the way in and out so
// callers can never mutate stored state through a shared pointer.
type memoryPropertyRepository struct {
	mu       sync.RWMutex
	byID     map[string]*models.Property
	licences map[string]models.Licence
}

// NewMemoryPropertyRepository creates an empty in-memory gateway.
func NewMemoryPropertyRepository() PropertyRepository {
	return &memoryPropertyRepository{
		byID:     make(map[string]*models.Property),
		licences: make(map[string]models.Licence),
	}
}

var _ PropertyRepository = (*memoryPropertyRepository)(nil)

func (r *memoryPropertyRepository) GetByID(_ context.Context, id string) (*models.Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(p), nil
}

func (r *memoryPropertyRepository) GetByUPRN(_ context.Context, uprn string) (*models.Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.UPRN != "" && p.UPRN == uprn {
			return clone(p), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memoryPropertyRepository) GetByAddressKey(_ context.Context, key string) (*models.Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if AddressKey(p.Address, p.Postcode) == key {
			return clone(p), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memoryPropertyRepository) Upsert(_ context.Context, p *models.Property) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.byID[p.ID] = clone(p)
	return nil
}

func (r *memoryPropertyRepository) Query(_ context.Context, filter PropertyFilter) ([]*models.Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Property
	for _, p := range r.byID {
		if matches(p, filter) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryPropertyRepository) MarkStaleBefore(_ context.Context, cutoff, markedAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, p := range r.byID {
		if !p.Stale && p.LastSeenAt.Before(cutoff) {
			p.Stale = true
			at := markedAt
			p.StaleMarkedAt = &at
			p.UpdatedAt = markedAt
			count++
		}
	}
	return count, nil
}

func (r *memoryPropertyRepository) UpsertLicence(_ context.Context, propertyID string, lic models.Licence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.licences[propertyID+"|"+lic.Key()] = lic
	return nil
}

func matches(p *models.Property, f PropertyFilter) bool {
	if f.ID != "" && p.ID != f.ID {
		return false
	}
	if f.City != "" && !equalFold(p.City, f.City) {
		return false
	}
	if len(f.Postcodes) > 0 {
		norm := models.NormalizePostcode(p.Postcode)
		found := false
		for _, pc := range f.Postcodes {
			if models.NormalizePostcode(pc) == norm {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Stale != nil && p.Stale != *f.Stale {
		return false
	}
	if f.LastSeenBefore != nil && !p.LastSeenAt.Before(*f.LastSeenBefore) {
		return false
	}
	return true
}

func equalFold(a, b string) bool {
	return models.NormalizeKey(a) == models.NormalizeKey(b)
}

// clone round-trips through JSON. Slow but obviously correct, and this
// implementation only backs tests and local runs.
func clone(p *models.Property) *models.Property {
	raw, _ := json.Marshal(p)
	var out models.Property
	_ = json.Unmarshal(raw, &out)
	return &out
}
