package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ItemsRegistered      prometheus.Counter
	FinalizeOutcomes     *prometheus.CounterVec
	ReconciliationGaps   prometheus.Counter
	FeedEventsApplied    *prometheus.CounterVec
	RemoteSearchDuration prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ItemsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "catcher_items_registered_total",
			Help: "Total number of items materialized in the registry",
		}),
		FinalizeOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "catcher_finalize_outcomes_total",
			Help: "Finalize calls by terminal outcome",
		}, []string{"outcome"}),
		ReconciliationGaps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "catcher_reconciliation_gaps_total",
			Help: "Payments confirmed whose item insert failed and needs manual follow-up",
		}),
		FeedEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "catcher_feed_events_applied_total",
			Help: "Change feed events applied to session caches, by kind",
		}, []string{"kind"}),
		RemoteSearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "catcher_remote_search_duration_ms",
			Help:    "Latency of cross-owner serial lookups in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

// ObserveRemoteSearch records one remote lookup duration.
func (m *Metrics) ObserveRemoteSearch(d time.Duration) {
	m.RemoteSearchDuration.Observe(float64(d.Microseconds()) / 1000.0)
}

// IncrementFinalize records a finalize terminal outcome.
func (m *Metrics) IncrementFinalize(outcome string) {
	m.FinalizeOutcomes.WithLabelValues(outcome).Inc()
}
