package geo

import (
	"context"

	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// Geocoder resolves an address or postcode to coordinates. It never returns
// an error: a nil location means "skip this enrichment", and the failure is
// logged where it happened.
type Geocoder interface {
	Geocode(ctx context.Context, address, postcode string) *models.Location
}

// Service is the two-tier geocoder: address-level lookup first, postcode
// centroid plus deterministic jitter as the fallback. The cache is injected
// and shared across concurrent scope units.
type Service struct {
	address  Provider // nil when the address tier is not configured
	postcode Provider
	cache    Cache
	logger   *zap.Logger
}

// NewService creates a geocoding service. address may be nil.
func NewService(address, postcode Provider, cache Cache, logger *zap.Logger) *Service {
	return &Service{
		address:  address,
		postcode: postcode,
		cache:    cache,
		logger:   logger.Named("geocoder"),
	}
}

var _ Geocoder = (*Service)(nil)

// Geocode resolves coordinates for the given address and postcode. Cache hits
// bypass the network entirely, including negative entries for lookups that
// already came back empty.
func (s *Service) Geocode(ctx context.Context, address, postcode string) *models.Location {
	if address != "" && s.address != nil {
		if loc, done := s.lookupTier(ctx, s.address, address, "addr:"+models.NormalizeKey(address)); done {
			if loc != nil {
				return loc
			}
			// Negative address-tier entry: fall through to the postcode tier.
		}
	}

	if postcode == "" {
		return nil
	}

	centroid, done := s.lookupTier(ctx, s.postcode, postcode, "pc:"+models.NormalizePostcode(postcode))
	if !done || centroid == nil {
		return nil
	}

	// Jitter is derived from the address so distinct properties at the same
	// postcode get distinct, stable coordinates. The cache holds the raw
	// centroid.
	jittered := ApplyJitter(*centroid, models.NormalizeKey(address))
	return &jittered
}

// lookupTier checks the cache, then the provider. The second return value is
// false only when the provider failed transiently, in which case nothing is
// cached and the caller should give up quietly.
func (s *Service) lookupTier(ctx context.Context, provider Provider, query, cacheKey string) (*models.Location, bool) {
	if loc, ok := s.cache.Get(ctx, cacheKey); ok {
		return loc, true
	}

	point, err := provider.Lookup(ctx, query)
	if err != nil {
		s.logger.Warn("Geocode lookup failed",
			zap.String("tier", provider.Name()),
			zap.Error(err))
		return nil, false
	}
	if point == nil {
		s.cache.Put(ctx, cacheKey, nil)
		return nil, true
	}

	loc := &models.Location{Lat: point.Lat, Lng: point.Lng}
	s.cache.Put(ctx, cacheKey, loc)
	return loc, true
}
