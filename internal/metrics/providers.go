package metrics

import "github.com/prometheus/client_golang/prometheus"

// Provider-facing Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inspire",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inspire",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inspire",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inspire",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	SearchProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inspire",
			Name:      "search_provider_requests_total",
			Help:      "Total repository search provider requests",
		},
		[]string{"status"}, // "success" / "throttled" / "error"
	)

	SearchProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inspire",
			Name:      "search_provider_request_duration_seconds",
			Help:      "Repository search provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"}, // "search" / "readme"
	)

	CandidatesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inspire",
			Name:      "candidates_skipped_total",
			Help:      "Candidates dropped during fetch or filtering",
		},
		[]string{"reason"}, // "malformed" / "excluded" / "below_min_stars"
	)

	InsightRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inspire",
			Name:      "insight_requests_total",
			Help:      "Total summarization requests for insight enrichment",
		},
		[]string{"model", "status"}, // status: "success" / "degraded"
	)
)

var providerMetricsRegistered bool

// RegisterProviderMetrics registers the provider metrics. Must be called once from main.
func RegisterProviderMetrics() {
	if providerMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(SearchProviderRequestsTotal)
	prometheus.MustRegister(SearchProviderRequestDuration)
	prometheus.MustRegister(CandidatesSkippedTotal)
	prometheus.MustRegister(InsightRequestsTotal)
	providerMetricsRegistered = true
}
