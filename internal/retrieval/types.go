package retrieval

import (
	"context"
	"time"

	"github.com/lumenworks/ragcore/internal/guardrail"
	"github.com/lumenworks/ragcore/internal/search"
	"github.com/lumenworks/ragcore/internal/vectordb"
)

// Collaborator interfaces, injected explicitly for testability.

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the k-NN adapter.
type VectorSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int, filter *vectordb.Filter) ([]search.Result, error)
}

// KeywordSearcher is the lexical adapter.
type KeywordSearcher interface {
	Search(ctx context.Context, collection, query string, limit int, filter *vectordb.Filter) ([]search.Result, error)
}

// Reranker applies the optional cross-encoder pass. The int reports how
// many documents were actually model-scored (0 on pass-through).
type Reranker interface {
	Rerank(ctx context.Context, query string, in []search.Result, topK int) ([]search.Result, int)
}

// Config holds orchestrator-level knobs: candidate sizes and per-stage
// timeouts. The overall deadline comes from the caller's context.
type Config struct {
	// DefaultLimit of final results when the request does not set one
	DefaultLimit int `mapstructure:"default_limit"`
	// CandidateLimit fetched from each search arm before fusion
	CandidateLimit int `mapstructure:"candidate_limit"`
	// RerankTopNIn fused results fed to the reranker
	RerankTopNIn int `mapstructure:"rerank_top_n_in"`
	// RerankTopK kept after reranking
	RerankTopK int `mapstructure:"rerank_top_k"`

	VectorSearchTimeout  time.Duration `mapstructure:"vector_search_timeout"`
	KeywordSearchTimeout time.Duration `mapstructure:"keyword_search_timeout"`
	GuardrailTimeout     time.Duration `mapstructure:"guardrail_timeout"`

	// LanguageMismatchFactor reweights results whose lang differs from the
	// user's preference: 1.0 on exact match, this factor otherwise.
	LanguageMismatchFactor float64 `mapstructure:"language_mismatch_factor"`
}

func (c Config) withDefaults() Config {
	if c.DefaultLimit == 0 {
		c.DefaultLimit = 10
	}
	if c.CandidateLimit == 0 {
		c.CandidateLimit = 20
	}
	if c.RerankTopNIn == 0 {
		c.RerankTopNIn = 20
	}
	if c.RerankTopK == 0 {
		c.RerankTopK = 8
	}
	if c.VectorSearchTimeout == 0 {
		c.VectorSearchTimeout = 2 * time.Second
	}
	if c.KeywordSearchTimeout == 0 {
		c.KeywordSearchTimeout = 2 * time.Second
	}
	if c.GuardrailTimeout == 0 {
		c.GuardrailTimeout = 50 * time.Millisecond
	}
	if c.LanguageMismatchFactor == 0 {
		c.LanguageMismatchFactor = 0.7
	}
	return c
}

// Overrides let a request adjust tenant search parameters for one call.
type Overrides struct {
	VectorWeight  *float64 `json:"vectorWeight,omitempty"`
	KeywordWeight *float64 `json:"keywordWeight,omitempty"`
	RRFK          *int     `json:"rrfK,omitempty"`
}

// Request is one retrieval invocation.
type Request struct {
	Query string `json:"query"`
	// Limit of final results; nil uses the configured default. An explicit
	// zero retrieves nothing and yields an IDK decision.
	Limit *int `json:"limit,omitempty"`
	// DocID restricts retrieval to one document
	DocID string `json:"docId,omitempty"`
	// Filter merges extra conditions into the access filter
	Filter    []vectordb.Condition `json:"filter,omitempty"`
	Overrides *Overrides           `json:"overrides,omitempty"`
}

// Metrics carries per-stage timings and counts for one retrieval.
type Metrics struct {
	VectorSearchDuration  time.Duration `json:"vectorSearchDuration"`
	KeywordSearchDuration time.Duration `json:"keywordSearchDuration"`
	FusionDuration        time.Duration `json:"fusionDuration"`
	RerankerDuration      time.Duration `json:"rerankerDuration"`
	GuardrailDuration     time.Duration `json:"guardrailDuration"`
	TotalDuration         time.Duration `json:"totalDuration"`
	VectorResultCount     int           `json:"vectorResultCount"`
	KeywordResultCount    int           `json:"keywordResultCount"`
	FinalResultCount      int           `json:"finalResultCount"`
	DocumentsReranked     int           `json:"documentsReranked"`
	RerankingEnabled      bool          `json:"rerankingEnabled"`
}

// Response is the result contract to the caller. When IsAnswerable is
// false the IDKResponse explains why; that is not an error condition.
type Response struct {
	IsAnswerable bool                   `json:"isAnswerable"`
	Results      []search.Result        `json:"results,omitempty"`
	IDKResponse  *guardrail.IDKResponse `json:"idkResponse,omitempty"`
	Decision     guardrail.Decision     `json:"guardrailDecision"`
	Metrics      Metrics                `json:"metrics"`
}
