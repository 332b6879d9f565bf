package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Metrics collects Prometheus metrics for the assistant service.
// Each instance carries its own registry so tests never collide.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	actionsTotal    *prometheus.CounterVec
	parseFailures   prometheus.Counter
	sessionsSwept   prometheus.Counter
	tokensTotal     *prometheus.CounterVec
}

// NewMetrics creates a new metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maru",
			Name:      "requests_total",
			Help:      "Assistant requests handled, by overall status.",
		}, []string{"status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maru",
			Name:      "request_duration_seconds",
			Help:      "End-to-end assistant request duration.",
			Buckets:   durationBuckets,
		}, []string{"status"}),
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maru",
			Name:      "actions_total",
			Help:      "Executed actions, by intent kind and status.",
		}, []string{"intent", "status"}),
		parseFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "maru",
			Name:      "parse_failures_total",
			Help:      "Requests degraded to the fallback intent because parsing failed.",
		}),
		sessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "maru",
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by the background sweep.",
		}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maru",
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed, by direction.",
		}, []string{"type"}),
	}
}

// RecordRequest records a completed assistant request.
func (m *Metrics) RecordRequest(status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(status).Inc()
	m.requestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordAction records one executed action.
func (m *Metrics) RecordAction(intent, status string) {
	m.actionsTotal.WithLabelValues(intent, status).Inc()
}

// RecordParseFailure records a request that fell back to the unknown intent.
func (m *Metrics) RecordParseFailure() {
	m.parseFailures.Inc()
}

// RecordSweep records the number of sessions deleted by one sweep run.
func (m *Metrics) RecordSweep(deleted int) {
	m.sessionsSwept.Add(float64(deleted))
}

// RecordTokens records LLM token consumption for one request.
func (m *Metrics) RecordTokens(input, output int) {
	m.tokensTotal.WithLabelValues("input").Add(float64(input))
	m.tokensTotal.WithLabelValues("output").Add(float64(output))
}

// Handler returns an HTTP handler that serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
