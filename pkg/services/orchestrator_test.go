package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/adapters/source"
	"github.com/prospecthq/prospect-engine/pkg/models"
	"github.com/prospecthq/prospect-engine/pkg/pipeline"
	"github.com/prospecthq/prospect-engine/pkg/repositories"
	"github.com/prospecthq/prospect-engine/pkg/retry"
)

// fakeAdapter serves canned listings keyed by postcode.
type fakeAdapter struct {
	name     string
	st       models.SourceType
	listings map[string][]models.NormalizedListing
	err      error

	mu      sync.Mutex
	fetches int
}

func (f *fakeAdapter) Name() string                  { return f.name }
func (f *fakeAdapter) SourceType() models.SourceType { return f.st }

func (f *fakeAdapter) Fetch(_ context.Context, c source.Criteria) ([]models.NormalizedListing, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.listings[c.Postcode], nil
}

type captureNotifier struct {
	mu        sync.Mutex
	qualified []*models.Property
}

func (n *captureNotifier) NotifyQualified(_ context.Context, props []*models.Property) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.qualified = append(n.qualified, props...)
	return nil
}

func listingFor(adapterName, postcode, address string, st models.SourceType) models.NormalizedListing {
	return models.NormalizedListing{
		Source:     adapterName,
		SourceType: st,
		Address:    address,
		Postcode:   postcode,
		City:       "Manchester",
		Price:      floatPtr(300000),
		Bedrooms:   intPtr(5),
		ObservedAt: time.Now().UTC(),
	}
}

func fastRetry() *retry.Config {
	return &retry.Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func newTestOrchestrator(t *testing.T, adapters []source.Adapter, repo repositories.PropertyRepository, notifier Notifier) *Orchestrator {
	t.Helper()
	registry := source.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	logger := zap.NewNop()
	return NewOrchestrator(OrchestratorDeps{
		Registry:    registry,
		Repo:        repo,
		Resolver:    NewResolver(repo, logger),
		Enricher:    NewEnricher(nil, nil, nil, nil, logger),
		Freshness:   NewFreshnessTracker(repo, 30*24*time.Hour, logger),
		Notifier:    notifier,
		Concurrency: 4,
		RetryConfig: fastRetry(),
	}, logger)
}

func TestRunEnrichmentPass_ProcessesAndDeduplicates(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	portal := &fakeAdapter{name: "portal", st: models.SourceCommercial, listings: map[string][]models.NormalizedListing{
		"M1 1AA": {
			listingFor("portal", "M1 1AA", "10 High Street", models.SourceCommercial),
			listingFor("portal", "M1 1AA", "12 High Street", models.SourceCommercial),
		},
	}}
	register := &fakeAdapter{name: "licences", st: models.SourceOfficial, listings: map[string][]models.NormalizedListing{
		"M1 1AA": {
			listingFor("licences", "M1 1AA", "10 High Street", models.SourceOfficial),
		},
	}}

	orch := newTestOrchestrator(t, []source.Adapter{register, portal}, repo, &captureNotifier{})
	result, err := orch.RunEnrichmentPass(context.Background(), models.Scope{Postcodes: []string{"M1 1AA"}})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Created, "the shared address resolves to one record")
	assert.Empty(t, result.Errors)

	all, err := repo.Query(context.Background(), repositories.PropertyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRunEnrichmentPass_SourceScope(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	portal := &fakeAdapter{name: "portal", st: models.SourceCommercial}
	register := &fakeAdapter{name: "licences", st: models.SourceOfficial}

	orch := newTestOrchestrator(t, []source.Adapter{register, portal}, repo, &captureNotifier{})
	_, err := orch.RunEnrichmentPass(context.Background(), models.Scope{Source: "portal", Postcodes: []string{"M1 1AA"}})
	require.NoError(t, err)

	assert.Equal(t, 1, portal.fetches)
	assert.Zero(t, register.fetches)

	_, err = orch.RunEnrichmentPass(context.Background(), models.Scope{Source: "nope"})
	assert.Error(t, err, "unknown source is a fatal scope error")
}

func TestRunEnrichmentPass_OneFailingSourceDoesNotAbort(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	broken := &fakeAdapter{name: "broken", st: models.SourceCommercial,
		err: &pipeline.Error{Kind: pipeline.KindConfiguration, Message: "bad credentials"}}
	portal := &fakeAdapter{name: "portal", st: models.SourceCommercial, listings: map[string][]models.NormalizedListing{
		"M1 1AA": {listingFor("portal", "M1 1AA", "10 High Street", models.SourceCommercial)},
	}}

	orch := newTestOrchestrator(t, []source.Adapter{broken, portal}, repo, &captureNotifier{})
	result, err := orch.RunEnrichmentPass(context.Background(), models.Scope{Postcodes: []string{"M1 1AA"}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed, "healthy source still processed")
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, string(pipeline.KindConfiguration), result.Errors[0].Kind)
	assert.Contains(t, result.Errors[0].Unit, "broken")
}

func TestRunEnrichmentPass_LimitCapsProcessing(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	portal := &fakeAdapter{name: "portal", st: models.SourceCommercial, listings: map[string][]models.NormalizedListing{
		"M1 1AA": {
			listingFor("portal", "M1 1AA", "1 High Street", models.SourceCommercial),
			listingFor("portal", "M1 1AA", "2 High Street", models.SourceCommercial),
			listingFor("portal", "M1 1AA", "3 High Street", models.SourceCommercial),
		},
	}}

	orch := newTestOrchestrator(t, []source.Adapter{portal}, repo, &captureNotifier{})
	result, err := orch.RunEnrichmentPass(context.Background(), models.Scope{Postcodes: []string{"M1 1AA"}, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
}

func TestRunEnrichmentPass_NotifiesNewlyQualified(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	listing := listingFor("portal", "M1 1AA", "10 High Street", models.SourceCommercial)
	portal := &fakeAdapter{name: "portal", st: models.SourceCommercial, listings: map[string][]models.NormalizedListing{
		"M1 1AA": {listing},
	}}
	notifier := &captureNotifier{}

	// A Manchester 5-bed at this price scores ready_to_go even without EPC data.
	orch := newTestOrchestrator(t, []source.Adapter{portal}, repo, notifier)
	_, err := orch.RunEnrichmentPass(context.Background(), models.Scope{Postcodes: []string{"M1 1AA"}})
	require.NoError(t, err)

	require.Len(t, notifier.qualified, 1)
	assert.Equal(t, models.ClassReadyToGo, notifier.qualified[0].Classification)

	// The same record qualifying again is not re-notified.
	notifier.qualified = nil
	_, err = orch.RunEnrichmentPass(context.Background(), models.Scope{Postcodes: []string{"M1 1AA"}})
	require.NoError(t, err)
	assert.Empty(t, notifier.qualified)
}

func TestRunEnrichmentPass_SingleRecordScope(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	resolver := NewResolver(repo, zap.NewNop())
	p, _, err := resolver.Resolve(context.Background(), listingFor("portal", "M1 1AA", "10 High Street", models.SourceCommercial))
	require.NoError(t, err)

	portal := &fakeAdapter{name: "portal", st: models.SourceCommercial}
	orch := newTestOrchestrator(t, []source.Adapter{portal}, repo, &captureNotifier{})

	result, err := orch.RunEnrichmentPass(context.Background(), models.Scope{PropertyID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, portal.fetches, "record scope never touches sources")

	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DealScore, "record was rescored")
}

func TestFreshnessTracker_SweepIsIdempotent(t *testing.T) {
	repo := repositories.NewMemoryPropertyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	old := &models.Property{Address: "1 Old Lane", Postcode: "M1 1AA", LastSeenAt: now.Add(-60 * 24 * time.Hour)}
	require.NoError(t, repo.Upsert(ctx, old))
	fresh := &models.Property{Address: "2 New Lane", Postcode: "M1 1AB", LastSeenAt: now}
	require.NoError(t, repo.Upsert(ctx, fresh))

	tracker := NewFreshnessTracker(repo, 30*24*time.Hour, zap.NewNop())

	n, err := tracker.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tracker.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}
