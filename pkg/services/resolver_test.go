package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/models"
	"github.com/prospecthq/prospect-engine/pkg/repositories"
)

// recordingRepo wraps the in-memory gateway to observe licence writes.
type recordingRepo struct {
	repositories.PropertyRepository
	licences []models.Licence
}

func (r *recordingRepo) UpsertLicence(ctx context.Context, propertyID string, lic models.Licence) error {
	r.licences = append(r.licences, lic)
	return r.PropertyRepository.UpsertLicence(ctx, propertyID, lic)
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func baseListing() models.NormalizedListing {
	return models.NormalizedListing{
		Source:     "portal",
		SourceType: models.SourceCommercial,
		Address:    "10 High Street",
		Postcode:   "M1 1AA",
		City:       "Manchester",
		Price:      floatPtr(300000),
		Bedrooms:   intPtr(5),
		ObservedAt: time.Now().UTC(),
	}
}

func TestResolver_CreatesNewRecord(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	resolver := NewResolver(repo, zap.NewNop())

	p, outcome, err := resolver.Resolve(context.Background(), baseListing())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	require.NotEmpty(t, p.ID)
	assert.Equal(t, "M1 1AA", p.Postcode)
	require.NotNil(t, p.Price)
	assert.InDelta(t, 300000, *p.Price, 0.001)
	assert.False(t, p.Stale)

	prov, ok := p.Provenance[FieldPrice]
	require.True(t, ok, "price carries provenance")
	assert.Equal(t, "portal", prov.Source)
	assert.Equal(t, models.SourceCommercial, prov.SourceType)
}

func TestResolver_MergesRepeatObservation(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	resolver := NewResolver(repo, zap.NewNop())
	ctx := context.Background()

	first, _, err := resolver.Resolve(ctx, baseListing())
	require.NoError(t, err)

	// Same property observed again with a new price.
	second := baseListing()
	second.Price = floatPtr(295000)
	p, outcome, err := resolver.Resolve(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, first.ID, p.ID, "no duplicate record")
	assert.InDelta(t, 295000, *p.Price, 0.001)

	all, err := repo.Query(ctx, repositories.PropertyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResolver_UnchangedObservationStillUpdatesSighting(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	resolver := NewResolver(repo, zap.NewNop())
	ctx := context.Background()

	first := baseListing()
	first.ObservedAt = time.Now().UTC().Add(-24 * time.Hour)
	created, _, err := resolver.Resolve(ctx, first)
	require.NoError(t, err)

	// Simulate a stale record between passes.
	created.Stale = true
	markedAt := time.Now().UTC()
	created.StaleMarkedAt = &markedAt
	require.NoError(t, repo.Upsert(ctx, created))

	again := baseListing()
	p, outcome, err := resolver.Resolve(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.True(t, p.LastSeenAt.After(first.ObservedAt))
	assert.False(t, p.Stale, "a sighting clears the stale flag")
	assert.Nil(t, p.StaleMarkedAt)
}

func TestResolver_MatchesByUPRNAcrossAddressSpellings(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	resolver := NewResolver(repo, zap.NewNop())
	ctx := context.Background()

	withUPRN := baseListing()
	withUPRN.UPRN = "100012345678"
	created, _, err := resolver.Resolve(ctx, withUPRN)
	require.NoError(t, err)

	// Different spelling, same UPRN.
	respelled := baseListing()
	respelled.UPRN = "100012345678"
	respelled.Address = "10, HIGH ST"
	p, _, err := resolver.Resolve(ctx, respelled)
	require.NoError(t, err)
	assert.Equal(t, created.ID, p.ID)
}

func TestResolver_FuzzyMatchesPermutedAddress(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	resolver := NewResolver(repo, zap.NewNop())
	ctx := context.Background()

	first := baseListing()
	first.Address = "Flat 2, 10 High Street"
	created, _, err := resolver.Resolve(ctx, first)
	require.NoError(t, err)

	permuted := baseListing()
	permuted.Address = "10 High Street, Flat 2"
	p, _, err := resolver.Resolve(ctx, permuted)
	require.NoError(t, err)
	assert.Equal(t, created.ID, p.ID, "token permutation resolves to the same record")
}

func TestResolver_FlatDoesNotMergeIntoBuilding(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	resolver := NewResolver(repo, zap.NewNop())
	ctx := context.Background()

	building, _, err := resolver.Resolve(ctx, baseListing())
	require.NoError(t, err)

	// The flat's address contains the building's, but they are distinct
	// properties and must stay distinct records.
	flat := baseListing()
	flat.Address = "Flat 2, 10 High Street"
	flat.Price = floatPtr(120000)
	flat.Bedrooms = intPtr(1)

	p, outcome, err := resolver.Resolve(ctx, flat)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.NotEqual(t, building.ID, p.ID)

	unchanged, err := repo.GetByID(ctx, building.ID)
	require.NoError(t, err)
	assert.InDelta(t, 300000, *unchanged.Price, 0.001, "building keeps its own price")

	all, err := repo.Query(ctx, repositories.PropertyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestResolver_ConfidencePrecedence(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	resolver := NewResolver(repo, zap.NewNop())
	ctx := context.Background()

	official := baseListing()
	official.Source = "licences"
	official.SourceType = models.SourceOfficial
	official.Bedrooms = intPtr(4)
	created, _, err := resolver.Resolve(ctx, official)
	require.NoError(t, err)
	require.Equal(t, 4, *created.Bedrooms)

	// A commercial source may not overwrite an official value.
	commercial := baseListing()
	commercial.Bedrooms = intPtr(6)
	p, _, err := resolver.Resolve(ctx, commercial)
	require.NoError(t, err)
	assert.Equal(t, 4, *p.Bedrooms, "official value survives commercial observation")

	// But a fresher official source may.
	fresher := official
	fresher.Bedrooms = intPtr(5)
	p, _, err = resolver.Resolve(ctx, fresher)
	require.NoError(t, err)
	assert.Equal(t, 5, *p.Bedrooms)
}

func TestResolver_PersistsLicencesWithDerivedStatus(t *testing.T) {
	repo := &recordingRepo{PropertyRepository: repositories.NewMemoryPropertyRepository()}
	resolver := NewResolver(repo, zap.NewNop())

	start := time.Now().UTC().Add(-365 * 24 * time.Hour)
	end := time.Now().UTC().Add(365 * 24 * time.Hour)
	listing := baseListing()
	listing.SourceType = models.SourceOfficial
	listing.Licences = []models.Licence{{
		PropertyRef: "100012345678",
		TypeCode:    "mandatory_hmo",
		Number:      "HMO/1234",
		StartDate:   &start,
		EndDate:     &end,
	}}

	_, _, err := resolver.Resolve(context.Background(), listing)
	require.NoError(t, err)
	require.Len(t, repo.licences, 1)
	assert.Equal(t, models.LicenceActive, repo.licences[0].Status, "status derived at write time")
}

func TestResolver_RejectsListingWithoutIdentity(t *testing.T) {
	resolver := NewResolver(repositories.NewMemoryPropertyRepository(), zap.NewNop())
	_, _, err := resolver.Resolve(context.Background(), models.NormalizedListing{Source: "portal"})
	assert.Error(t, err)
}
