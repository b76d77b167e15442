// Package metrics instruments the Job Engine, Catalog Client, Enrichment
// Clients, Renderer, and circuit breakers with Prometheus metrics, in the
// package-level promauto var + Record* helper shape the teacher uses
// throughout its own internal/metrics package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_jobs_submitted_total",
			Help: "Total number of jobs submitted to the job engine",
		},
		[]string{"kind"}, // batch, single, revert
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal status",
		},
		[]string{"status"}, // succeeded, partial, failed, cancelled
	)

	ItemProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aphrodite_item_processing_duration_seconds",
			Help:    "Duration of the fetch-resolve-render-upload-tag pipeline for one item",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	ItemsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_items_processed_total",
			Help: "Total number of items processed, by final per-item status",
		},
		[]string{"status", "error_kind"},
	)

	ItemRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aphrodite_item_retries_total",
			Help: "Total number of per-item retry attempts",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aphrodite_queue_depth",
			Help: "Current number of queued, unstarted items across all jobs",
		},
	)

	CatalogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aphrodite_catalog_request_duration_seconds",
			Help:    "Duration of catalog client requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CatalogRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_catalog_request_errors_total",
			Help: "Total number of catalog client request errors",
		},
		[]string{"operation", "error_kind"},
	)

	EnrichmentFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aphrodite_enrichment_fetch_duration_seconds",
			Help:    "Duration of enrichment source fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	EnrichmentFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_enrichment_fetch_errors_total",
			Help: "Total number of enrichment source fetch errors",
		},
		[]string{"source", "error_kind"},
	)

	EnrichmentCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_enrichment_cache_hits_total",
			Help: "Total number of enrichment cache hits",
		},
		[]string{"source"},
	)

	EnrichmentCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_enrichment_cache_misses_total",
			Help: "Total number of enrichment cache misses",
		},
		[]string{"source"},
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aphrodite_render_duration_seconds",
			Help:    "Duration of poster composition (ComposeBadge + Compose)",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	RenderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_render_errors_total",
			Help: "Total number of render errors",
		},
		[]string{"error_kind"},
	)

	BadgesAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_badges_applied_total",
			Help: "Total number of badges applied to posters, by badge type",
		},
		[]string{"badge_type"},
	)

	BadgesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_badges_skipped_total",
			Help: "Total number of badges skipped during selection, by reason",
		},
		[]string{"badge_type", "reason"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aphrodite_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	ScheduleRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_schedule_runs_total",
			Help: "Total number of scheduled batch jobs submitted",
		},
		[]string{"schedule_id"},
	)

	RevertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aphrodite_reverts_total",
			Help: "Total number of poster reverts, by outcome",
		},
		[]string{"outcome"}, // ok, cannot_revert, error
	)
)

// RecordCatalogRequest records a catalog client call's duration and, if it
// failed, its error kind.
func RecordCatalogRequest(operation string, duration time.Duration, errKind string) {
	CatalogRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if errKind != "" {
		CatalogRequestErrors.WithLabelValues(operation, errKind).Inc()
	}
}

// RecordEnrichmentFetch records an enrichment source fetch's duration and
// outcome.
func RecordEnrichmentFetch(source string, duration time.Duration, errKind string) {
	EnrichmentFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
	if errKind != "" {
		EnrichmentFetchErrors.WithLabelValues(source, errKind).Inc()
	}
}

// RecordItemResult records one item's pipeline outcome.
func RecordItemResult(status, errKind string, duration time.Duration) {
	ItemProcessingDuration.WithLabelValues(status).Observe(duration.Seconds())
	ItemsProcessedTotal.WithLabelValues(status, errKind).Inc()
}

// RecordCircuitBreakerTransition records a breaker moving between states.
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()

	state := 0.0
	switch to {
	case "half-open":
		state = 1
	case "open":
		state = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(state)
}
