package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prospecthq/prospect-engine/pkg/adapters/source"
	"github.com/prospecthq/prospect-engine/pkg/metrics"
	"github.com/prospecthq/prospect-engine/pkg/models"
	"github.com/prospecthq/prospect-engine/pkg/pipeline"
	"github.com/prospecthq/prospect-engine/pkg/repositories"
	"github.com/prospecthq/prospect-engine/pkg/retry"
)

// Orchestrator runs enrichment passes: fetch from every in-scope adapter,
// resolve listings into canonical records, enrich each touched record, sweep
// freshness, and notify on newly qualified opportunities. Each record is an
// independent unit of work; one bad record or one failing source never aborts
// the pass.
type Orchestrator struct {
	registry    *source.Registry
	repo        repositories.PropertyRepository
	resolver    Resolver
	enricher    *Enricher
	freshness   FreshnessTracker
	notifier    Notifier
	metrics     *metrics.Metrics
	concurrency int
	retryCfg    *retry.Config
	logger      *zap.Logger
}

// OrchestratorDeps bundles the orchestrator's collaborators.
type OrchestratorDeps struct {
	Registry    *source.Registry
	Repo        repositories.PropertyRepository
	Resolver    Resolver
	Enricher    *Enricher
	Freshness   FreshnessTracker
	Notifier    Notifier
	Metrics     *metrics.Metrics
	Concurrency int
	RetryConfig *retry.Config
}

// NewOrchestrator creates an orchestrator. Metrics may be nil; Concurrency
// below 1 is treated as 1.
func NewOrchestrator(deps OrchestratorDeps, logger *zap.Logger) *Orchestrator {
	concurrency := deps.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Orchestrator{
		registry:    deps.Registry,
		repo:        deps.Repo,
		resolver:    deps.Resolver,
		enricher:    deps.Enricher,
		freshness:   deps.Freshness,
		notifier:    notifier,
		metrics:     deps.Metrics,
		concurrency: concurrency,
		retryCfg:    deps.RetryConfig,
		logger:      logger.Named("orchestrator"),
	}
}

// passState accumulates results across concurrent units.
type passState struct {
	mu        sync.Mutex
	result    *models.RunResult
	qualified []*models.Property
	processed int
}

func (s *passState) addError(unit string, err error) {
	kind := errorKind(err)
	s.mu.Lock()
	s.result.AddError(models.RunError{Unit: unit, Kind: kind, Message: err.Error(), At: time.Now().UTC()})
	s.mu.Unlock()
}

// reserve claims one processing slot against the scope limit. Returns false
// once the limit is reached.
func (s *passState) reserve(limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && s.processed >= limit {
		return false
	}
	s.processed++
	return true
}

// RunEnrichmentPass executes one pass over the given scope and returns its
// summary. The returned error is only non-nil for fatal conditions (context
// cancellation, configuration); per-unit failures land in the result instead.
func (o *Orchestrator) RunEnrichmentPass(ctx context.Context, scope models.Scope) (*models.RunResult, error) {
	started := time.Now().UTC()
	state := &passState{result: &models.RunResult{RunID: uuid.NewString(), StartedAt: started}}

	if scope.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scope.TimeBudget)
		defer cancel()
	}

	o.logger.Info("Starting enrichment pass",
		zap.String("run_id", state.result.RunID),
		zap.String("source", scope.Source),
		zap.String("city", scope.City),
		zap.Strings("postcodes", scope.Postcodes),
		zap.Int("limit", scope.Limit))

	var runErr error
	if scope.PropertyID != "" {
		runErr = o.runSingle(ctx, scope.PropertyID, state)
	} else {
		runErr = o.runSources(ctx, scope, state)
	}
	if runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) {
		return state.result, runErr
	}

	// The sweep keys off last-sighting timestamps, not this pass's scope, so
	// it is safe to run after scoped passes too.
	if o.freshness != nil {
		if n, err := o.freshness.Sweep(ctx, time.Now().UTC()); err != nil {
			state.addError("freshness", err)
			o.metrics.IncrementError(errorKind(err))
		} else {
			o.metrics.AddStaleMarked(n)
		}
	}

	if len(state.qualified) > 0 {
		if err := o.notifier.NotifyQualified(ctx, state.qualified); err != nil {
			state.addError("notify", err)
		}
	}

	state.result.Duration = time.Since(started)
	o.metrics.ObservePassDuration(state.result.Duration)
	o.logger.Info("Enrichment pass finished",
		zap.String("run_id", state.result.RunID),
		zap.Int("processed", state.result.Processed),
		zap.Int("created", state.result.Created),
		zap.Int("updated", state.result.Updated),
		zap.Int("skipped", state.result.Skipped),
		zap.Int("errors", len(state.result.Errors)),
		zap.Duration("duration", state.result.Duration))
	return state.result, nil
}

// runSingle re-enriches one existing record without touching any source.
func (o *Orchestrator) runSingle(ctx context.Context, propertyID string, state *passState) error {
	p, err := o.repo.GetByID(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("failed to load record %s: %w", propertyID, err)
	}
	o.enrichAndStore(ctx, p, p.Classification == models.ClassReadyToGo, state)
	state.mu.Lock()
	state.result.Processed++
	state.mu.Unlock()
	return nil
}

// runSources fans out one worker per scope unit: an adapter paired with a
// postcode, or with the whole city scope when no postcodes were given.
func (o *Orchestrator) runSources(ctx context.Context, scope models.Scope, state *passState) error {
	adapters := o.registry.All()
	if scope.Source != "" {
		adapter := o.registry.Get(scope.Source)
		if adapter == nil {
			return fmt.Errorf("unknown source %q (registered: %v)", scope.Source, o.registry.Names())
		}
		adapters = []source.Adapter{adapter}
	}

	criteria := make([]source.Criteria, 0, len(scope.Postcodes))
	if len(scope.Postcodes) == 0 {
		criteria = append(criteria, source.Criteria{City: scope.City, Limit: scope.Limit})
	} else {
		for _, pc := range scope.Postcodes {
			criteria = append(criteria, source.Criteria{Postcode: pc, City: scope.City, Limit: scope.Limit})
		}
	}

	// One worker per criteria, with that criteria's adapters run in
	// registration order inside it. Listings for the same postcode therefore
	// resolve serially, which keeps deduplication free of write races;
	// different postcodes can never collide on a natural key.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, c := range criteria {
		g.Go(func() error {
			for _, adapter := range adapters {
				if err := gctx.Err(); err != nil {
					return err
				}
				o.runUnit(gctx, adapter, c, state)
			}
			return nil
		})
	}
	return g.Wait()
}

// runUnit fetches one adapter/criteria pair and folds every listing in. All
// failures are recorded, not returned: the pass always makes whatever
// progress it can.
func (o *Orchestrator) runUnit(ctx context.Context, adapter source.Adapter, criteria source.Criteria, state *passState) {
	unit := adapter.Name()
	if criteria.Postcode != "" {
		unit += "/" + criteria.Postcode
	} else if criteria.City != "" {
		unit += "/" + criteria.City
	}

	var listings []models.NormalizedListing
	err := retry.DoIfRetryable(ctx, o.retryCfg, func() error {
		var ferr error
		listings, ferr = adapter.Fetch(ctx, criteria)
		return ferr
	})
	if err != nil {
		o.logger.Warn("Source fetch failed",
			zap.String("unit", unit),
			zap.Error(err))
		state.addError(unit, err)
		o.metrics.IncrementError(errorKind(err))
		return
	}

	for _, listing := range listings {
		if ctx.Err() != nil {
			return
		}
		if !state.reserve(criteriaLimit(criteria)) {
			return
		}
		o.processListing(ctx, listing, unit, state)
	}
}

func (o *Orchestrator) processListing(ctx context.Context, listing models.NormalizedListing, unit string, state *passState) {
	p, outcome, err := o.resolver.Resolve(ctx, listing)
	if err != nil {
		state.addError(unit, err)
		o.metrics.IncrementError(errorKind(err))
		state.mu.Lock()
		state.result.Skipped++
		state.mu.Unlock()
		return
	}

	wasReady := p.Classification == models.ClassReadyToGo
	o.enrichAndStore(ctx, p, wasReady, state)

	state.mu.Lock()
	state.result.Processed++
	switch outcome {
	case OutcomeCreated:
		state.result.Created++
		state.result.AddSample(p.ID)
	case OutcomeUpdated:
		state.result.Updated++
	}
	state.mu.Unlock()
	o.metrics.IncrementProcessed(listing.Source, string(outcome))
}

func (o *Orchestrator) enrichAndStore(ctx context.Context, p *models.Property, wasReady bool, state *passState) {
	if o.enricher == nil {
		return
	}

	changed, err := o.enricher.Enrich(ctx, p)
	if err != nil {
		state.addError(p.ID, err)
		o.metrics.IncrementError(errorKind(err))
	}
	if !changed {
		return
	}

	if err := o.repo.Upsert(ctx, p); err != nil {
		state.addError(p.ID, fmt.Errorf("failed to persist enrichment: %w", err))
		o.metrics.IncrementError(string(pipeline.KindPersistence))
		return
	}

	if !wasReady && p.Classification == models.ClassReadyToGo {
		state.mu.Lock()
		state.qualified = append(state.qualified, p)
		state.mu.Unlock()
	}
}

// criteriaLimit is the per-pass processing cap carried on the criteria.
func criteriaLimit(c source.Criteria) int { return c.Limit }

func errorKind(err error) string {
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		return string(perr.Kind)
	}
	return "unknown"
}
