// Package repositories implements the persistence gateway: upserts keyed by
// natural identifiers and filtered reads over canonical property records.
package repositories

import (
	"context"
	"time"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// PropertyFilter selects records for Query. Zero values mean "no restriction".
type PropertyFilter struct {
	ID             string
	City           string
	Postcodes      []string
	Stale          *bool
	LastSeenBefore *time.Time
	Limit          int
}

// PropertyRepository is the persistence gateway for canonical property
// records and their licences. Implementations must treat every upsert as an
// independent operation: no cross-record transactions.
type PropertyRepository interface {
	GetByID(ctx context.Context, id string) (*models.Property, error)
	GetByUPRN(ctx context.Context, uprn string) (*models.Property, error)
	GetByAddressKey(ctx context.Context, key string) (*models.Property, error)

	// Upsert writes the full record. A record without an ID is created and
	// assigned one; the ID is set on the passed record.
	Upsert(ctx context.Context, p *models.Property) error

	Query(ctx context.Context, filter PropertyFilter) ([]*models.Property, error)

	// MarkStaleBefore flags every non-stale record last seen before the
	// cutoff and returns how many were flagged. Idempotent.
	MarkStaleBefore(ctx context.Context, cutoff, markedAt time.Time) (int, error)

	// UpsertLicence writes one licence row keyed by its natural identity
	// (property ref + type code + number).
	UpsertLicence(ctx context.Context, propertyID string, lic models.Licence) error
}

// AddressKey computes the address-based natural key for lookups.
func AddressKey(address, postcode string) string {
	return models.NormalizeKey(address) + "|" + models.NormalizePostcode(postcode)
}
