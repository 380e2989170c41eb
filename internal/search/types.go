package search

import (
	"errors"

	"github.com/lumenworks/ragcore/internal/vectordb"
)

var (
	// ErrVectorSearchFailed wraps vector store transport errors. Fatal for
	// the pipeline: there is no silent fallback.
	ErrVectorSearchFailed = errors.New("vector search failed")
	// ErrKeywordSearchFailed wraps scroll/text-match errors. The orchestrator
	// treats it as a recoverable degradation (pipeline continues vector-only).
	ErrKeywordSearchFailed = errors.New("keyword search failed")
)

// SearchType records which signal(s) produced a result.
type SearchType string

const (
	SearchTypeVector  SearchType = "vector_only"
	SearchTypeKeyword SearchType = "keyword_only"
	SearchTypeHybrid  SearchType = "hybrid"
)

// Result is a ranked chunk flowing between pipeline stages. Score fields are
// added by later stages, never overwritten: search adapters set VectorScore or
// KeywordScore, fusion sets FusionScore, the reranker sets RerankerScore.
// Score always holds the stage-authoritative value.
type Result struct {
	ID      string           `json:"id"`
	Payload vectordb.Payload `json:"payload,omitempty"`
	Content string           `json:"content"`
	Rank    int              `json:"rank"`
	Score   float64          `json:"score"`

	VectorScore   *float64 `json:"vectorScore,omitempty"`
	KeywordScore  *float64 `json:"keywordScore,omitempty"`
	FusionScore   *float64 `json:"fusionScore,omitempty"`
	RerankerScore *float64 `json:"rerankerScore,omitempty"`

	// 1-based positions in the source lists; zero when absent. Fusion fills
	// these so the guardrail can compute rank correlation.
	VectorRank  int `json:"-"`
	KeywordRank int `json:"-"`

	SearchType SearchType `json:"searchType"`
}

// EffectiveScore is the value the guardrail scores over: the
// stage-authoritative Score after fusion normalization, reranking, and
// language reweighting. Pass-through reranking pins RerankerScore to the
// original Score, so pass-through leaves the guardrail statistics unchanged.
func (r Result) EffectiveScore() float64 {
	return r.Score
}

func ptr(f float64) *float64 { return &f }
