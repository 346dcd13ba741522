// Package metrics exposes pipeline counters and timings via Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	DocumentsIngested *prometheus.CounterVec // labels: document_type
	RunsCompleted     *prometheus.CounterVec // labels: outcome (completed|failed|needs_review)
	StageDuration     *prometheus.HistogramVec
	StageRetries      *prometheus.CounterVec
	ProviderCalls     *prometheus.CounterVec // labels: provider, outcome
	ProviderTokens    *prometheus.CounterVec // labels: provider, direction
	DuplicateUploads  prometheus.Counter
	QueueDepth        prometheus.Gauge
}

// New registers all collectors on reg; pass nil for the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docintel_documents_ingested_total",
			Help: "Documents accepted for processing, by document type.",
		}, []string{"document_type"}),
		RunsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docintel_runs_total",
			Help: "Pipeline runs by terminal outcome.",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docintel_stage_duration_seconds",
			Help:    "Wall time spent per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		StageRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docintel_stage_retries_total",
			Help: "Retries performed per stage.",
		}, []string{"stage"}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docintel_provider_calls_total",
			Help: "AI provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docintel_provider_tokens_total",
			Help: "Token usage by provider and direction (in|out).",
		}, []string{"provider", "direction"}),
		DuplicateUploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "docintel_duplicate_uploads_total",
			Help: "Uploads resolved to an existing document by content hash.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docintel_queue_depth",
			Help: "Jobs waiting in the queue at last sample.",
		}),
	}
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler serves the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
