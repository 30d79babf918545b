package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkerProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgate_usage_events_processed_total",
			Help: "Usage events stored in the audit trail",
		},
		[]string{"tenant"},
	)

	WorkerActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docgate_worker_active_jobs",
			Help: "Jobs currently running per worker pool",
		},
		[]string{"pool"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docgate_usage_queue_depth",
			Help: "Current RabbitMQ usage queue depth per tenant",
		},
		[]string{"tenant"},
	)

	StoreSessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docgate_store_sessions_open",
			Help: "Number of per-request store sessions currently held",
		},
	)

	StoreConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgate_store_connect_total",
			Help: "Store connection attempts by result",
		},
		[]string{"result"},
	)

	ProvisionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgate_provision_outcomes_total",
			Help: "Provisioning engine outcomes by operation",
		},
		[]string{"operation", "outcome"},
	)

	ProxyOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgate_proxy_operations_total",
			Help: "Document proxy operations by result",
		},
		[]string{"operation", "result"},
	)

	QuotaRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docgate_quota_rejections_total",
			Help: "Provisioning requests rejected by the free tier ceiling",
		},
	)

	QuotaChargeSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docgate_quota_charge_skipped_total",
			Help: "Charges that matched no row because the ceiling was reached concurrently",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgate_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docgate_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(
		WorkerProcessed,
		WorkerActive,
		QueueDepth,
		StoreSessionsOpen,
		StoreConnects,
		ProvisionOutcomes,
		ProxyOperations,
		QuotaRejections,
		QuotaChargeSkipped,
		HTTPRequests,
		HTTPDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
