package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/apperrors"
	"github.com/prospecthq/prospect-engine/pkg/matching"
	"github.com/prospecthq/prospect-engine/pkg/models"
	"github.com/prospecthq/prospect-engine/pkg/repositories"
)

// ResolveOutcome says what the resolver did with one listing.
type ResolveOutcome string

const (
	OutcomeCreated   ResolveOutcome = "created"
	OutcomeUpdated   ResolveOutcome = "updated"
	OutcomeUnchanged ResolveOutcome = "unchanged"
)

// Resolver folds normalized listings into canonical property records.
// Exactly one record exists per natural identity; repeated observations of
// the same property merge into it rather than creating duplicates.
type Resolver interface {
	Resolve(ctx context.Context, listing models.NormalizedListing) (*models.Property, ResolveOutcome, error)
}

type resolverService struct {
	repo   repositories.PropertyRepository
	logger *zap.Logger
}

// NewResolver creates a resolver backed by the given gateway.
func NewResolver(repo repositories.PropertyRepository, logger *zap.Logger) Resolver {
	return &resolverService{repo: repo, logger: logger.Named("resolver")}
}

var _ Resolver = (*resolverService)(nil)

func (s *resolverService) Resolve(ctx context.Context, listing models.NormalizedListing) (*models.Property, ResolveOutcome, error) {
	if listing.Address == "" || listing.Postcode == "" {
		return nil, "", apperrors.ErrInvalidListing
	}

	existing, err := s.find(ctx, listing)
	if err != nil {
		return nil, "", err
	}

	if existing == nil {
		created, err := s.create(ctx, listing)
		if err != nil {
			return nil, "", err
		}
		return created, OutcomeCreated, nil
	}

	outcome := OutcomeUnchanged
	if s.merge(existing, listing) {
		outcome = OutcomeUpdated
	}

	// Sighting updates are unconditional: even a listing that adds nothing
	// proves the property still exists.
	if listing.ObservedAt.After(existing.LastSeenAt) {
		existing.LastSeenAt = listing.ObservedAt
	}
	existing.Stale = false
	existing.StaleMarkedAt = nil

	if err := s.repo.Upsert(ctx, existing); err != nil {
		return nil, "", fmt.Errorf("failed to persist merged record: %w", err)
	}
	if err := s.persistLicences(ctx, existing.ID, listing); err != nil {
		return nil, "", err
	}
	return existing, outcome, nil
}

// find locates the canonical record for a listing: UPRN first, then the
// normalized address key, then a same-address scan over same-postcode
// candidates for reordered spellings of an existing record.
func (s *resolverService) find(ctx context.Context, listing models.NormalizedListing) (*models.Property, error) {
	if listing.UPRN != "" {
		p, err := s.repo.GetByUPRN(ctx, listing.UPRN)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("uprn lookup failed: %w", err)
		}
	}

	key := repositories.AddressKey(listing.Address, listing.Postcode)
	p, err := s.repo.GetByAddressKey(ctx, key)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("address key lookup failed: %w", err)
	}

	return s.findEquivalent(ctx, listing)
}

// findEquivalent scans same-postcode records for a reordered spelling of the
// listing's address. Only exact token permutations count as the same record:
// a looser match would fold "Flat 2, 10 High Street" into an existing
// "10 High Street" and conflate two distinct properties.
func (s *resolverService) findEquivalent(ctx context.Context, listing models.NormalizedListing) (*models.Property, error) {
	siblings, err := s.repo.Query(ctx, repositories.PropertyFilter{Postcodes: []string{listing.Postcode}})
	if err != nil {
		return nil, fmt.Errorf("postcode candidate query failed: %w", err)
	}

	for _, sib := range siblings {
		if matching.SameAddress(listing.Address, sib.Address) {
			s.logger.Debug("Matched listing to a reordered spelling of an existing record",
				zap.String("property_id", sib.ID),
				zap.String("source", listing.Source))
			return sib, nil
		}
	}
	return nil, nil
}

func (s *resolverService) create(ctx context.Context, listing models.NormalizedListing) (*models.Property, error) {
	// The postcode keeps its display form; keys and filters normalize it.
	p := &models.Property{
		Address:    listing.Address,
		Postcode:   listing.Postcode,
		LastSeenAt: listing.ObservedAt,
	}
	s.merge(p, listing)

	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	if err := s.persistLicences(ctx, p.ID, listing); err != nil {
		return nil, err
	}
	return p, nil
}

// merge applies the listing's fields under the confidence rules and reports
// whether anything changed.
func (s *resolverService) merge(p *models.Property, listing models.NormalizedListing) bool {
	w := newFieldWriter(p, listing.Source, listing.SourceType, listing.ObservedAt)

	w.String(FieldUPRN, &p.UPRN, listing.UPRN)
	w.String(FieldCity, &p.City, listing.City)
	w.String(FieldPropertyType, &p.PropertyType, listing.PropertyType)
	if listing.ListingType.IsValid() {
		lt := string(p.ListingType)
		w.String(FieldListingType, &lt, string(listing.ListingType))
		p.ListingType = models.ListingType(lt)
	}
	w.Float(FieldPrice, &p.Price, listing.Price)
	w.Int(FieldBedrooms, &p.Bedrooms, listing.Bedrooms)
	w.Int(FieldBathrooms, &p.Bathrooms, listing.Bathrooms)
	w.Location(listing.Latitude, listing.Longitude)

	return w.Changed()
}

func (s *resolverService) persistLicences(ctx context.Context, propertyID string, listing models.NormalizedListing) error {
	now := time.Now().UTC()
	for _, lic := range listing.Licences {
		lic.Status = lic.DeriveStatus(now)
		if err := s.repo.UpsertLicence(ctx, propertyID, lic); err != nil {
			return fmt.Errorf("failed to persist licence %s: %w", lic.Key(), err)
		}
	}
	return nil
}
