package retry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector records engine activity
type MetricsCollector interface {
	// RecordAttempt is called before every attempt
	RecordAttempt(engine string, attempt int)
	// RecordRetry is called when a policy triggers a retry
	RecordRetry(engine string)
	// RecordStop is called once per session with its outcome
	RecordStop(engine string, reason StopReason, attempts int, duration time.Duration)
}

// NoopCollector discards all metrics
type NoopCollector struct{}

func (NoopCollector) RecordAttempt(string, int) {}

func (NoopCollector) RecordRetry(string) {}

func (NoopCollector) RecordStop(string, StopReason, int, time.Duration) {}

// PrometheusCollector exports engine metrics to Prometheus
type PrometheusCollector struct {
	attempts        *prometheus.CounterVec
	invocations     *prometheus.CounterVec
	retries         *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	sessionAttempts *prometheus.HistogramVec
	sessionDuration *prometheus.HistogramVec
}

// NewPrometheusCollector creates a collector registered with reg.
// A nil reg registers with the default registerer; an empty namespace means "retry".
func NewPrometheusCollector(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "retry"
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total number of operation attempts",
			},
			[]string{"engine"},
		),
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of retry sessions started",
			},
			[]string{"engine"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of retries triggered by policies",
			},
			[]string{"engine"},
		),
		sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of finished retry sessions by stop reason",
			},
			[]string{"engine", "reason"},
		),
		sessionAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_attempts",
				Help:      "Number of attempts made per retry session",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"engine"},
		),
		sessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Duration of retry sessions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
	}
}

// RecordAttempt implements MetricsCollector
func (c *PrometheusCollector) RecordAttempt(engine string, attempt int) {
	c.attempts.WithLabelValues(engine).Inc()
	if attempt == 1 {
		c.invocations.WithLabelValues(engine).Inc()
	}
}

// RecordRetry implements MetricsCollector
func (c *PrometheusCollector) RecordRetry(engine string) {
	c.retries.WithLabelValues(engine).Inc()
}

// RecordStop implements MetricsCollector
func (c *PrometheusCollector) RecordStop(engine string, reason StopReason, attempts int, duration time.Duration) {
	c.sessions.WithLabelValues(engine, reason.String()).Inc()
	c.sessionAttempts.WithLabelValues(engine).Observe(float64(attempts))
	c.sessionDuration.WithLabelValues(engine).Observe(duration.Seconds())
}
