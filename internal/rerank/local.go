package rerank

import (
	"context"
	"math"
	"strings"

	"github.com/lumenworks/ragcore/internal/search"
)

// LocalScorer is the in-process variant: a lexical cross-scorer that rates
// each (query, document) pair by weighted query-term coverage with a
// position bonus for early matches. Far cheaper than a model and useful as
// a deployment without a reranker service; scores land in [0,1] like the
// HTTP variant's.
type LocalScorer struct{}

func NewLocalScorer() *LocalScorer { return &LocalScorer{} }

func (s *LocalScorer) Name() string { return "local" }

func (s *LocalScorer) Score(_ context.Context, query string, docs []Document) ([]float64, error) {
	terms := search.Tokenize(capTokens(query, defaultQueryTokenCap))
	out := make([]float64, len(docs))
	if len(terms) == 0 {
		return out, nil
	}
	for i, d := range docs {
		out[i] = crossScore(terms, capTokens(d.Content, defaultDocTokenCap))
	}
	return out, nil
}

func crossScore(terms []string, content string) float64 {
	lower := strings.ToLower(content)
	var covered, weight float64
	for _, t := range terms {
		// Rarer-looking (longer) terms weigh more.
		w := 1 + math.Log(float64(len(t)))
		weight += w
		idx := strings.Index(lower, t)
		if idx < 0 {
			continue
		}
		// Early occurrences score higher; decay to 0.5 across the document.
		pos := 1.0 - 0.5*float64(idx)/math.Max(float64(len(lower)), 1)
		covered += w * pos
	}
	if weight == 0 {
		return 0
	}
	return covered / weight
}
