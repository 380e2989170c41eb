package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Retrieval pipeline metrics
	RetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragcore_retrievals_total",
			Help: "Total number of guarded retrievals",
		},
		[]string{"tenant", "status"},
	)

	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragcore_retrieval_duration_seconds",
			Help:    "End-to-end guarded retrieval duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	// Search stage metrics
	VectorSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragcore_vector_search_duration_seconds",
			Help:    "Vector k-NN search duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"collection", "status"},
	)

	KeywordSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragcore_keyword_search_duration_seconds",
			Help:    "Keyword scroll+score duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"collection", "status"},
	)

	KeywordSearchDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ragcore_keyword_search_degraded_total",
			Help: "Retrievals that continued vector-only after a keyword search failure",
		},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragcore_embedding_requests_total",
			Help: "Total embedding requests by outcome",
		},
		[]string{"model", "status"},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragcore_embedding_duration_seconds",
			Help:    "Embedding request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"model"},
	)

	// Reranker metrics
	RerankRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragcore_rerank_requests_total",
			Help: "Total rerank calls by outcome (ok, passthrough, timeout, error)",
		},
		[]string{"backend", "status"},
	)

	RerankDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragcore_rerank_duration_seconds",
			Help:    "Whole rerank call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"backend"},
	)

	DocumentsReranked = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragcore_documents_reranked",
			Help:    "Number of documents scored per rerank call",
			Buckets: []float64{1, 5, 10, 20, 50, 100},
		},
	)

	// Guardrail metrics
	GuardrailDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragcore_guardrail_decisions_total",
			Help: "Guardrail decisions by rationale",
		},
		[]string{"tenant", "rationale"},
	)

	GuardrailConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragcore_guardrail_confidence",
			Help:    "Ensemble confidence distribution",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"tenant"},
	)

	GuardrailDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragcore_guardrail_duration_seconds",
			Help:    "Guardrail evaluation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		},
	)

	// Tenant config cache metrics
	TenantConfigCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ragcore_tenant_config_cache_hits_total",
			Help: "Tenant config cache hits",
		},
	)

	TenantConfigCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ragcore_tenant_config_cache_misses_total",
			Help: "Tenant config cache misses (defaults or reloads)",
		},
	)

	TenantConfigUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragcore_tenant_config_updates_total",
			Help: "Tenant config updates by outcome",
		},
		[]string{"status"},
	)

	// Embedding cache metrics
	EmbeddingCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragcore_embedding_cache_hits_total",
			Help: "Embedding cache hits by layer (lru, redis)",
		},
		[]string{"layer"},
	)

	// Synthesis metrics
	SynthesisStreams = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragcore_synthesis_streams_total",
			Help: "Synthesis streams started by outcome",
		},
		[]string{"status"},
	)

	SynthesisTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragcore_synthesis_tokens",
			Help:    "Tokens streamed per synthesis",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000},
		},
	)
)

// RecordVectorSearch records one vector search attempt.
func RecordVectorSearch(collection, status string, seconds float64) {
	VectorSearchDuration.WithLabelValues(collection, status).Observe(seconds)
}

// RecordKeywordSearch records one keyword search attempt.
func RecordKeywordSearch(collection, status string, seconds float64) {
	KeywordSearchDuration.WithLabelValues(collection, status).Observe(seconds)
}

// RecordEmbedding records one embedding request outcome.
func RecordEmbedding(model, status string, seconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if seconds > 0 {
		EmbeddingDuration.WithLabelValues(model).Observe(seconds)
	}
}

// RecordRerank records one rerank call outcome.
func RecordRerank(backend, status string, seconds float64, docs int) {
	RerankRequests.WithLabelValues(backend, status).Inc()
	RerankDuration.WithLabelValues(backend).Observe(seconds)
	if docs > 0 {
		DocumentsReranked.Observe(float64(docs))
	}
}

// RecordGuardrail records one guardrail decision.
func RecordGuardrail(tenant, rationale string, confidence, seconds float64) {
	GuardrailDecisions.WithLabelValues(tenant, rationale).Inc()
	GuardrailConfidence.WithLabelValues(tenant).Observe(confidence)
	GuardrailDuration.Observe(seconds)
}
