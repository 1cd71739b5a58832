package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the position ledger service.
type Metrics struct {
	// --- Sync orchestration ---
	SyncsStarted   *prometheus.CounterVec
	SyncsCompleted *prometheus.CounterVec
	SyncsFailed    *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
	SyncEventsAdded *prometheus.CounterVec
	SyncTailDeleted *prometheus.CounterVec
	SyncQueueDepth  prometheus.Gauge

	// --- Ledger chain ---
	EventsAppended   *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
	AppendDuration   prometheus.Histogram
	ChainLength      *prometheus.GaugeVec

	// --- Chain data providers ---
	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec

	// --- NATS ingestion ---
	RequestsReceived *prometheus.CounterVec
	RequestsInvalid  *prometheus.CounterVec
	ResultsPublished *prometheus.CounterVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	syncBuckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	dbBuckets := []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}
	httpBuckets := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	return &Metrics{
		// Sync orchestration
		SyncsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_syncs_started_total",
			Help: "Position syncs started",
		}, []string{"chain_id", "trigger"}),

		SyncsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_syncs_completed_total",
			Help: "Position syncs completed successfully",
		}, []string{"chain_id"}),

		SyncsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_syncs_failed_total",
			Help: "Position syncs failed",
		}, []string{"chain_id", "stage"}),

		SyncDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "midcurve_sync_duration_seconds",
			Help:    "End-to-end duration of one position sync",
			Buckets: syncBuckets,
		}, []string{"chain_id"}),

		SyncEventsAdded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_sync_events_added_total",
			Help: "Ledger events appended during sync",
		}, []string{"chain_id"}),

		SyncTailDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_sync_tail_deleted_total",
			Help: "Events deleted before replay",
		}, []string{"chain_id"}),

		SyncQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "midcurve_sync_queue_depth",
			Help: "Sync requests waiting for a worker",
		}),

		// Ledger chain
		EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_ledger_events_appended_total",
			Help: "Events appended to position chains",
		}, []string{"event_type"}),

		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_ledger_events_rejected_total",
			Help: "Events rejected (linkage, duplicate, conservation)",
		}, []string{"event_type", "reason"}),

		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "midcurve_ledger_append_duration_seconds",
			Help:    "Validated append latency including the advisory lock",
			Buckets: dbBuckets,
		}),

		ChainLength: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "midcurve_ledger_chain_length",
			Help: "Event chain length after the last sync",
		}, []string{"chain_id"}),

		// Chain data providers
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_provider_requests_total",
			Help: "Requests to external chain data providers",
		}, []string{"provider", "op"}),

		ProviderDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "midcurve_provider_duration_seconds",
			Help:    "Chain data provider request latency",
			Buckets: httpBuckets,
		}, []string{"provider", "op"}),

		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_provider_errors_total",
			Help: "Chain data provider failures",
		}, []string{"provider", "op"}),

		// NATS ingestion
		RequestsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_sync_requests_received_total",
			Help: "Sync requests received over NATS",
		}, []string{"chain_id"}),

		RequestsInvalid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_sync_requests_invalid_total",
			Help: "Sync requests rejected at parse/validation",
		}, []string{"reason"}),

		ResultsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_sync_results_published_total",
			Help: "Sync completion notices published",
		}, []string{"status"}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "midcurve_query_duration_seconds",
			Help:    "Query latency",
			Buckets: dbBuckets,
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "midcurve_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}
