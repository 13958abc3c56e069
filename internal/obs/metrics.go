// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_ingested_total",
		Help: "Total number of prediction events ingested",
	})
	EventsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_rejected_total",
		Help: "Total number of prediction events rejected as invalid",
	})
	BaselinesCaptured = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baselines_captured_total",
		Help: "Total number of feature baselines captured",
	})
	DriftComputations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drift_computations_total",
		Help: "Total number of per-feature drift computations run",
	})
	DriftComputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "drift_compute_duration_seconds",
		Help:    "Histogram of per-key drift compute durations",
		Buckets: prometheus.DefBuckets,
	})
	AlertsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerts_created_total",
		Help: "Total number of new (deduplicated) alerts created",
	})
	AlertsSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerts_suppressed_total",
		Help: "Total number of alert inserts suppressed by the uniqueness constraint",
	})
	WebhookDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Total number of webhook notification attempts",
	})
	WebhookFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_failures_total",
		Help: "Total number of failed webhook notification attempts",
	})
	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	}, []string{"breaker"})
	WorkerIterations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_iterations_total",
		Help: "Total number of worker loop iterations",
	})
	WorkerKeyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_key_errors_total",
		Help: "Total number of (project, model, endpoint) keys that failed unexpectedly during a worker iteration",
	})
	WorkerActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_active",
		Help: "1 while the worker loop is running, 0 otherwise",
	})
)

func init() {
	prometheus.MustRegister(EventsIngested, EventsRejected, BaselinesCaptured, DriftComputations,
		DriftComputeDuration, AlertsCreated, AlertsSuppressed, WebhookDeliveries, WebhookFailures,
		CircuitBreakerState, WorkerIterations, WorkerKeyErrors, WorkerActive)
}

// StartMetricsServer exposes /metrics and returns a server for controlled shutdown.
// Prefer StartHTTPServer, which also registers health endpoints.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
