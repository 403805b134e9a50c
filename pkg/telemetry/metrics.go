package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for imagebench.
type Metrics struct {
	config MetricsConfig

	// Image run metrics
	imageRunsStarted   prometheus.Counter
	imageRunsActive    prometheus.Gauge
	imageRunsCompleted *prometheus.CounterVec
	imageRunDuration   *prometheus.HistogramVec

	// Attempt metrics
	attemptsTotal  *prometheus.CounterVec
	deployDuration *prometheus.HistogramVec
	passesTotal    prometheus.Counter
	backoffSeconds prometheus.Counter

	// Teardown metrics
	teardownsLaunched prometheus.Counter
	teardownsFailed   prometheus.Counter
	destroyDuration   prometheus.Histogram
	pendingTeardowns  prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		imageRunsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_runs_started_total",
				Help:      "Total number of image test runs started",
			},
		),
		imageRunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "image_runs_active",
				Help:      "Current number of in-flight image test runs",
			},
		),
		imageRunsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_runs_completed_total",
				Help:      "Total number of image test runs completed",
			},
			[]string{"status"},
		),
		imageRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "image_run_duration_seconds",
				Help:      "Duration of image test runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deploy_attempts_total",
				Help:      "Total number of deployment attempts by outcome",
			},
			[]string{"outcome", "zone"},
		),
		deployDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deploy_duration_seconds",
				Help:      "Duration of deployment attempts in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),
		passesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "zone_passes_total",
				Help:      "Total number of passes over the zone list",
			},
		),
		backoffSeconds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backoff_seconds_total",
				Help:      "Total seconds spent in backoff between passes",
			},
		),

		teardownsLaunched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "teardowns_launched_total",
				Help:      "Total number of destroy operations launched",
			},
		),
		teardownsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "teardowns_failed_total",
				Help:      "Total number of destroy operations that failed",
			},
		),
		destroyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "destroy_duration_seconds",
				Help:      "Duration of destroy operations in seconds",
				Buckets:   buckets,
			},
		),
		pendingTeardowns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_teardowns",
				Help:      "Current number of outstanding destroy operations",
			},
		),
	}

	registry.MustRegister(
		m.imageRunsStarted,
		m.imageRunsActive,
		m.imageRunsCompleted,
		m.imageRunDuration,
		m.attemptsTotal,
		m.deployDuration,
		m.passesTotal,
		m.backoffSeconds,
		m.teardownsLaunched,
		m.teardownsFailed,
		m.destroyDuration,
		m.pendingTeardowns,
	)

	return m, nil
}

// RecordImageRunStarted increments the counter for started image runs.
func (m *Metrics) RecordImageRunStarted() {
	if m.imageRunsStarted == nil {
		return
	}
	m.imageRunsStarted.Inc()
	m.imageRunsActive.Inc()
}

// RecordImageRunCompleted records a completed image run with its
// terminal status and duration.
func (m *Metrics) RecordImageRunCompleted(status string, duration time.Duration) {
	if m.imageRunsCompleted == nil {
		return
	}
	m.imageRunsActive.Dec()
	m.imageRunsCompleted.WithLabelValues(status).Inc()
	m.imageRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordAttempt records one deployment attempt.
func (m *Metrics) RecordAttempt(outcome, zone string, duration time.Duration) {
	if m.attemptsTotal == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(outcome, zone).Inc()
	m.deployDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordPass counts a started pass over the zone list.
func (m *Metrics) RecordPass() {
	if m.passesTotal == nil {
		return
	}
	m.passesTotal.Inc()
}

// RecordBackoff accumulates time spent waiting between passes.
func (m *Metrics) RecordBackoff(d time.Duration) {
	if m.backoffSeconds == nil {
		return
	}
	m.backoffSeconds.Add(d.Seconds())
}

// RecordTeardownLaunched counts a launched destroy operation.
func (m *Metrics) RecordTeardownLaunched() {
	if m.teardownsLaunched == nil {
		return
	}
	m.teardownsLaunched.Inc()
}

// RecordTeardownCompleted records a finished destroy operation.
func (m *Metrics) RecordTeardownCompleted(failed bool, duration time.Duration) {
	if m.destroyDuration == nil {
		return
	}
	m.destroyDuration.Observe(duration.Seconds())
	if failed {
		m.teardownsFailed.Inc()
	}
}

// SetPendingTeardowns sets the current number of outstanding destroys.
func (m *Metrics) SetPendingTeardowns(count int) {
	if m.pendingTeardowns == nil {
		return
	}
	m.pendingTeardowns.Set(float64(count))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
