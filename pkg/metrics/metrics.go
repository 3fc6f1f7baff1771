// Package metrics provides observability for the enrichment pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all pipeline metrics. A nil *Metrics is valid and records
// nothing, so tests and one-off runs never need a registry.
type Metrics struct {
	// Listings processed by source and outcome
	ListingsProcessed *prometheus.CounterVec

	// Non-fatal run errors by kind
	RunErrors *prometheus.CounterVec

	// Stale records flagged per sweep
	StaleMarked prometheus.Counter

	// Full pass latency
	PassDuration prometheus.Histogram
}

// New creates a Metrics instance with all pipeline metrics registered on the
// default registry.
func New() *Metrics {
	return &Metrics{
		ListingsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prospect_listings_processed_total",
			Help: "Total listings processed by source and resolve outcome",
		}, []string{"source", "outcome"}), // outcome: "created", "updated", "unchanged"

		RunErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prospect_run_errors_total",
			Help: "Total non-fatal errors recorded during enrichment passes by kind",
		}, []string{"kind"}),

		StaleMarked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prospect_stale_marked_total",
			Help: "Total records flagged stale by freshness sweeps",
		}),

		PassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "prospect_pass_duration_seconds",
			Help:    "Duration of full enrichment passes",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
	}
}

// IncrementProcessed records one resolved listing.
func (m *Metrics) IncrementProcessed(source, outcome string) {
	if m != nil {
		m.ListingsProcessed.WithLabelValues(source, outcome).Inc()
	}
}

// IncrementError records one non-fatal run error.
func (m *Metrics) IncrementError(kind string) {
	if m != nil {
		m.RunErrors.WithLabelValues(kind).Inc()
	}
}

// AddStaleMarked records how many records a sweep flagged.
func (m *Metrics) AddStaleMarked(count int) {
	if m != nil {
		m.StaleMarked.Add(float64(count))
	}
}

// ObservePassDuration records the wall time of one pass.
func (m *Metrics) ObservePassDuration(d time.Duration) {
	if m != nil {
		m.PassDuration.Observe(d.Seconds())
	}
}
