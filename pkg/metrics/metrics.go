package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ladle_queue_depth",
			Help: "Queue depth by queue and state (ready, delayed, in_flight, dead)",
		},
		[]string{"queue", "state"},
	)

	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladle_jobs_processed_total",
			Help: "Total jobs settled by queue and outcome (ack, retry, dead_letter)",
		},
		[]string{"queue", "outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ladle_job_duration_seconds",
			Help:    "Handler execution time in seconds by queue",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	// Content store metrics
	PayloadsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladle_payloads_submitted_total",
			Help: "Payload submissions by result (new, deduplicated)",
		},
		[]string{"result"},
	)

	ContentRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ladle_content_records",
			Help: "Content records by status",
		},
		[]string{"status"},
	)

	ContentBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ladle_content_bytes",
			Help: "Total stored payload bytes",
		},
	)

	// LLM metrics
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladle_llm_calls_total",
			Help: "Provider calls by provider and result (ok, quota, transient, malformed, permanent)",
		},
		[]string{"provider", "result"},
	)

	LLMCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ladle_llm_call_duration_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	QuotaHoldActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ladle_llm_quota_hold",
			Help: "Whether a quota hold is active for the provider (1 = held)",
		},
		[]string{"provider"},
	)

	// Validator metrics
	RecordsValidated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladle_records_validated_total",
			Help: "Validated records by outcome (accepted, rejected)",
		},
		[]string{"outcome"},
	)

	ValidationScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ladle_validation_score",
			Help:    "Distribution of validation scores",
			Buckets: []float64{-100, -50, 0, 10, 25, 50, 75, 90, 100},
		},
	)

	// Geocoder metrics
	GeocodeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladle_geocode_requests_total",
			Help: "Geocode lookups by provider and result (ok, miss, error, skipped)",
		},
		[]string{"provider", "result"},
	)

	GeocodeCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladle_geocode_cache_total",
			Help: "Geocode cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)

	BreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ladle_breaker_open",
			Help: "Whether the provider circuit breaker is open (1 = open)",
		},
		[]string{"provider"},
	)

	// Reconciler metrics
	EntitiesReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladle_entities_reconciled_total",
			Help: "Reconciled entities by kind and action (created, merged)",
		},
		[]string{"kind", "action"},
	)

	FieldChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladle_field_changes_total",
			Help: "Canonical field changes written by entity kind",
		},
		[]string{"kind"},
	)

	// Publisher metrics
	PublishCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladle_publish_cycles_total",
			Help: "Publish cycles by result (published, guard_abort, error, skipped)",
		},
		[]string{"result"},
	)

	PublishedEntities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ladle_published_entities",
			Help: "Entity counts in the last published snapshot",
		},
		[]string{"kind"},
	)

	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ladle_publish_duration_seconds",
			Help:    "End-to-end publish cycle duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladle_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ladle_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(JobsProcessed)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(PayloadsSubmitted)
	prometheus.MustRegister(ContentRecords)
	prometheus.MustRegister(ContentBytes)
	prometheus.MustRegister(LLMCalls)
	prometheus.MustRegister(LLMCallDuration)
	prometheus.MustRegister(QuotaHoldActive)
	prometheus.MustRegister(RecordsValidated)
	prometheus.MustRegister(ValidationScore)
	prometheus.MustRegister(GeocodeRequests)
	prometheus.MustRegister(GeocodeCache)
	prometheus.MustRegister(BreakerOpen)
	prometheus.MustRegister(EntitiesReconciled)
	prometheus.MustRegister(FieldChanges)
	prometheus.MustRegister(PublishCycles)
	prometheus.MustRegister(PublishedEntities)
	prometheus.MustRegister(PublishDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
