package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/repositories"
)

// FreshnessTracker marks records stale once no source has sighted them for
// the configured window. Marking is one-way here: only the resolver clears
// the flag, when a source sights the record again.
type FreshnessTracker interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type freshnessTracker struct {
	repo   repositories.PropertyRepository
	window time.Duration
	logger *zap.Logger
}

// NewFreshnessTracker creates a tracker with the given no-sight window.
func NewFreshnessTracker(repo repositories.PropertyRepository, window time.Duration, logger *zap.Logger) FreshnessTracker {
	return &freshnessTracker{repo: repo, window: window, logger: logger.Named("freshness")}
}

var _ FreshnessTracker = (*freshnessTracker)(nil)

// Sweep flags every record last seen before now minus the window. Running it
// twice in a row flags nothing the second time.
func (t *freshnessTracker) Sweep(ctx context.Context, now time.Time) (int, error) {
	if t.window <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-t.window)
	count, err := t.repo.MarkStaleBefore(ctx, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("stale sweep failed: %w", err)
	}
	if count > 0 {
		t.logger.Info("Marked records stale",
			zap.Int("count", count),
			zap.Time("cutoff", cutoff))
	}
	return count, nil
}
