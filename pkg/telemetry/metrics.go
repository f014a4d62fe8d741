package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics provides Prometheus metrics for chainstage invocations. It
// implements engine.MetricsRecorder.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	lastRun     *prometheus.GaugeVec

	// Step metrics
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec

	// Error metrics
	errorsByCode *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of invocations by outcome",
			},
			[]string{"network", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"network", "outcome"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last invocation by outcome",
			},
			[]string{"network", "outcome"},
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of executed steps by kind and outcome",
			},
			[]string{"step", "kind", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of executed steps in seconds, confirmation included",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed invocations by error class and code",
			},
			[]string{"class", "code"},
		),
	}

	collectors := []prometheus.Collector{
		m.runs, m.runDuration, m.lastRun,
		m.steps, m.stepDuration,
		m.errorsByCode,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// Enabled reports whether metrics are collected.
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// RecordRun records the outcome of an invocation.
func (m *Metrics) RecordRun(network, outcome string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.runs.WithLabelValues(network, outcome).Inc()
	m.runDuration.WithLabelValues(network, outcome).Observe(duration.Seconds())
	m.lastRun.WithLabelValues(network, outcome).SetToCurrentTime()
}

// RecordStep records an executed step.
func (m *Metrics) RecordStep(step, kind, outcome string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.steps.WithLabelValues(step, kind, outcome).Inc()
	m.stepDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordError records a classified failure.
func (m *Metrics) RecordError(class, code string) {
	if !m.Enabled() {
		return
	}
	m.errorsByCode.WithLabelValues(class, code).Inc()
}

// Registry returns the Prometheus registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Export writes the collected metrics to the configured sinks: the textfile
// and the Pushgateway. It is a no-op when neither is configured.
func (m *Metrics) Export(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}

	if m.config.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
			return fmt.Errorf("failed to write metrics textfile: %w", err)
		}
	}

	if m.config.PushgatewayURL != "" {
		pusher := push.New(m.config.PushgatewayURL, m.config.PushJob).Gatherer(m.registry)
		if err := pusher.PushContext(ctx); err != nil {
			return fmt.Errorf("failed to push metrics: %w", err)
		}
	}

	return nil
}
