// Package metrics provides Prometheus instrumentation for the issue bot.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service. All collectors
// are registered on a private registry so tests can create isolated
// instances.
type Metrics struct {
	registry *prometheus.Registry

	apiResponseTime  *prometheus.HistogramVec
	webhookEvents    *prometheus.CounterVec
	jobsProcessed    *prometheus.CounterVec
	jobsQueued       prometheus.Gauge
	threadsIndexed   prometheus.Counter
	suggestionsMade  *prometheus.CounterVec
	embeddingLatency prometheus.Histogram
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		apiResponseTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "issue_bot_api_response_time",
			Help:    "API response time in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"method", "path", "status"}),
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issue_bot_webhook_events_total",
			Help: "Webhook deliveries received, by source and outcome.",
		}, []string{"source", "outcome"}),
		jobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issue_bot_jobs_processed_total",
			Help: "Background jobs finished, by type and outcome.",
		}, []string{"job_type", "outcome"}),
		jobsQueued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "issue_bot_jobs_queued",
			Help: "Background jobs currently queued.",
		}),
		threadsIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "issue_bot_threads_indexed_total",
			Help: "Threads written to the index.",
		}),
		suggestionsMade: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issue_bot_suggestions_total",
			Help: "Duplicate suggestions delivered, by sink.",
		}, []string{"sink"}),
		embeddingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "issue_bot_embedding_request_seconds",
			Help:    "Latency of embedding service requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// Handler returns the /metrics exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAPIResponse records one API response.
func (m *Metrics) ObserveAPIResponse(method, path string, status int, elapsed time.Duration) {
	m.apiResponseTime.WithLabelValues(method, path, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// WebhookEvent counts one webhook delivery.
func (m *Metrics) WebhookEvent(source, outcome string) {
	m.webhookEvents.WithLabelValues(source, outcome).Inc()
}

// JobProcessed counts one finished job.
func (m *Metrics) JobProcessed(jobType, outcome string) {
	m.jobsProcessed.WithLabelValues(jobType, outcome).Inc()
}

// SetJobsQueued records the current queue depth.
func (m *Metrics) SetJobsQueued(n int) {
	m.jobsQueued.Set(float64(n))
}

// ThreadIndexed counts one indexed thread.
func (m *Metrics) ThreadIndexed() {
	m.threadsIndexed.Inc()
}

// SuggestionMade counts one delivered suggestion.
func (m *Metrics) SuggestionMade(sink string) {
	m.suggestionsMade.WithLabelValues(sink).Inc()
}

// ObserveEmbeddingLatency records one embedding request duration.
func (m *Metrics) ObserveEmbeddingLatency(elapsed time.Duration) {
	m.embeddingLatency.Observe(elapsed.Seconds())
}
