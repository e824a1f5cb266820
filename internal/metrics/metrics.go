// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline and the webhook queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeprov",
		Name:      "analysis_runs_total",
		Help:      "Completed full-analysis runs by outcome.",
	}, []string{"outcome"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codeprov",
		Name:      "analysis_duration_seconds",
		Help:      "Wall time of full-analysis runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	CommitsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codeprov",
		Name:      "commits_processed_total",
		Help:      "Commits walked across all runs.",
	})

	UnitsEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codeprov",
		Name:      "units_embedded_total",
		Help:      "Function units successfully embedded.",
	})

	UnitsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeprov",
		Name:      "units_skipped_total",
		Help:      "Function units skipped after retry exhaustion, by stage.",
	}, []string{"stage"})

	WebhooksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codeprov",
		Name:      "webhooks_enqueued_total",
		Help:      "Webhook deliveries accepted into the queue.",
	})

	WebhooksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeprov",
		Name:      "webhooks_processed_total",
		Help:      "Webhook queue items finished, by outcome.",
	}, []string{"outcome"})

	QueueLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codeprov",
		Name:      "webhook_queue_latency_seconds",
		Help:      "Time from enqueue to completion for queue items.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
