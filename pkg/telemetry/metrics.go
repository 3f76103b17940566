package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for nk runs. A disabled instance is
// safe to use and records nothing.
type Metrics struct {
	config MetricsConfig

	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	pluginInvocations *prometheus.CounterVec
	pluginDuration    *prometheus.HistogramVec

	states       *prometheus.CounterVec
	acquisitions *prometheus.CounterVec

	schemaViolations prometheus.Counter
	errorsByClass    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
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

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of provisioning runs by final status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of provisioning runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		pluginInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_invocations_total",
				Help:      "Total number of plugin processes run",
			},
			[]string{"plugin", "status"},
		),
		pluginDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plugin_duration_seconds",
				Help:      "Duration of plugin processes in seconds",
				Buckets:   buckets,
			},
			[]string{"plugin"},
		),

		states: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "states_total",
				Help:      "Declared states by outcome",
			},
			[]string{"plugin", "outcome"},
		),
		acquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_acquisitions_total",
				Help:      "Remote plugin acquisitions by outcome",
			},
			[]string{"plugin", "outcome"},
		),

		schemaViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_violations_total",
				Help:      "States rejected by plugin schemas or policies",
			},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Run errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.runs,
		m.runDuration,
		m.pluginInvocations,
		m.pluginDuration,
		m.states,
		m.acquisitions,
		m.schemaViolations,
		m.errorsByClass,
	)

	return m, nil
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(status string, duration time.Duration) {
	if m.runs == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPluginInvocation records one plugin process.
func (m *Metrics) RecordPluginInvocation(plugin, status string, duration time.Duration) {
	if m.pluginInvocations == nil {
		return
	}
	m.pluginInvocations.WithLabelValues(plugin, status).Inc()
	m.pluginDuration.WithLabelValues(plugin).Observe(duration.Seconds())
}

// RecordState records the outcome of one declared state.
func (m *Metrics) RecordState(plugin, outcome string) {
	if m.states == nil {
		return
	}
	m.states.WithLabelValues(plugin, outcome).Inc()
}

// RecordAcquisition records the outcome of acquiring a remote plugin.
func (m *Metrics) RecordAcquisition(plugin, outcome string) {
	if m.acquisitions == nil {
		return
	}
	m.acquisitions.WithLabelValues(plugin, outcome).Inc()
}

// RecordSchemaViolations adds rejected states.
func (m *Metrics) RecordSchemaViolations(n int) {
	if m.schemaViolations == nil {
		return
	}
	m.schemaViolations.Add(float64(n))
}

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// WriteTextfile writes all metrics to the configured textfile path, for
// collection by the node exporter. It does nothing without a path.
func (m *Metrics) WriteTextfile() error {
	if m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.config.TextfilePath, m.registry)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
