package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospecthq/prospect-engine/pkg/apperrors"
	"github.com/prospecthq/prospect-engine/pkg/models"
)

func seedProperty(t *testing.T, repo PropertyRepository, p *models.Property) *models.Property {
	t.Helper()
	require.NoError(t, repo.Upsert(context.Background(), p))
	require.NotEmpty(t, p.ID)
	return p
}

func TestMemoryRepository_Lookups(t *testing.T) {
	repo := NewMemoryPropertyRepository()
	ctx := context.Background()

	p := seedProperty(t, repo, &models.Property{
		UPRN:       "100012345678",
		Address:    "10 High Street",
		Postcode:   "M1 1AA",
		City:       "Manchester",
		LastSeenAt: time.Now().UTC(),
	})

	byID, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byID.ID)

	byUPRN, err := repo.GetByUPRN(ctx, "100012345678")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byUPRN.ID)

	byKey, err := repo.GetByAddressKey(ctx, AddressKey("10, High Street", "m1 1aa"))
	require.NoError(t, err)
	assert.Equal(t, p.ID, byKey.ID, "normalized key matches despite punctuation and case")

	_, err = repo.GetByUPRN(ctx, "999")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryRepository_CallerCannotMutateStoredState(t *testing.T) {
	repo := NewMemoryPropertyRepository()
	ctx := context.Background()

	p := seedProperty(t, repo, &models.Property{Address: "10 High Street", Postcode: "M1 1AA"})

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	got.Address = "mutated"

	again, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "10 High Street", again.Address)
}

func TestMemoryRepository_Query(t *testing.T) {
	repo := NewMemoryPropertyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	seedProperty(t, repo, &models.Property{Address: "1 A St", Postcode: "M1 1AA", City: "Manchester", LastSeenAt: now})
	seedProperty(t, repo, &models.Property{Address: "2 B St", Postcode: "LS6 1AB", City: "Leeds", LastSeenAt: now})
	seedProperty(t, repo, &models.Property{Address: "3 C St", Postcode: "M1 1AB", City: "Manchester", LastSeenAt: now})

	byCity, err := repo.Query(ctx, PropertyFilter{City: "manchester"})
	require.NoError(t, err)
	assert.Len(t, byCity, 2)

	byPostcode, err := repo.Query(ctx, PropertyFilter{Postcodes: []string{"ls6 1ab"}})
	require.NoError(t, err)
	require.Len(t, byPostcode, 1)
	assert.Equal(t, "Leeds", byPostcode[0].City)

	limited, err := repo.Query(ctx, PropertyFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryRepository_MarkStaleBefore(t *testing.T) {
	repo := NewMemoryPropertyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	old := seedProperty(t, repo, &models.Property{Address: "1 A St", Postcode: "M1 1AA", LastSeenAt: now.Add(-40 * 24 * time.Hour)})
	seedProperty(t, repo, &models.Property{Address: "2 B St", Postcode: "M1 1AB", LastSeenAt: now})

	cutoff := now.Add(-30 * 24 * time.Hour)
	n, err := repo.MarkStaleBefore(ctx, cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, got.Stale)
	require.NotNil(t, got.StaleMarkedAt)

	// A second sweep finds nothing new.
	n, err = repo.MarkStaleBefore(ctx, cutoff, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	stale := true
	flagged, err := repo.Query(ctx, PropertyFilter{Stale: &stale})
	require.NoError(t, err)
	assert.Len(t, flagged, 1)
}
