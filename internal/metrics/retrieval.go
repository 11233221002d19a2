package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval, index and pipeline Prometheus metrics.
var (
	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_requests_total",
			Help:      "Retrieval requests by terminal state",
		},
		[]string{"state"}, // "responded" / "rejected" / "failed"
	)

	RetrievalStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_stage_duration_seconds",
			Help:      "Duration of each retrieval stage",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stage"}, // "embed" / "search" / "resolve"
	)

	RetrievalPartialResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_partial_results_total",
			Help:      "Results returned with identity only because metadata lookup failed",
		},
	)

	IndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_vectors",
			Help:      "Number of vectors in the serving index snapshot",
		},
	)

	IndexBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Index builds by result",
		},
		[]string{"result"}, // "success" / "error"
	)

	IndexBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Time to scan the store and build an index snapshot",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	PipelineDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_documents_total",
			Help:      "Documents processed by the embedding pipeline",
		},
		[]string{"source", "result"}, // "embedded" / "failed"
	)

	PipelineBatchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_batch_failures_total",
			Help:      "Pipeline batches whose encoding failed",
		},
		[]string{"source"},
	)

	PipelineStoreRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_store_retries_total",
			Help:      "Retried embedding writes after transient store errors",
		},
	)
)

var registerServiceOnce sync.Once

// RegisterServiceMetrics registers retrieval, index and pipeline metrics. Safe to call more than once.
func RegisterServiceMetrics() {
	registerServiceOnce.Do(func() {
		prometheus.MustRegister(
			RetrievalRequestsTotal,
			RetrievalStageDuration,
			RetrievalPartialResultsTotal,
			IndexSize,
			IndexBuildsTotal,
			IndexBuildDuration,
			PipelineDocumentsTotal,
			PipelineBatchFailuresTotal,
			PipelineStoreRetriesTotal,
		)
	})
}
