package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lumenworks/ragcore/internal/vectordb"
	"go.uber.org/zap"
)

// BM25 parameters. avgDocLen is fixed because the adapter has no corpus
// statistics; see the idfApprox note below.
const (
	bm25K1    = 1.2
	bm25B     = 0.75
	avgDocLen = 1000.0
	scrollCap = 200 // candidate pool fetched per query before local scoring
)

// KeywordConfig controls the lexical adapter.
type KeywordConfig struct {
	// ScrollLimit bounds the candidate pool fetched from the store.
	ScrollLimit int `mapstructure:"scroll_limit"`
	// DiscoverFallback enables the text-target search path when the store
	// rejects the text-match filter.
	DiscoverFallback bool `mapstructure:"discover_fallback"`
}

// KeywordAdapter derives a lexical signal without an inverted index: a
// filtered scroll whose filter text-matches the query narrows the candidate
// set, then a local BM25-style function orders it.
type KeywordAdapter struct {
	db  *vectordb.Client
	cfg KeywordConfig
	log *zap.Logger
}

func NewKeywordAdapter(db *vectordb.Client, cfg KeywordConfig, logger *zap.Logger) *KeywordAdapter {
	if cfg.ScrollLimit <= 0 {
		cfg.ScrollLimit = scrollCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordAdapter{db: db, cfg: cfg, log: logger}
}

// Search fetches candidates matching the query text under the access filter
// and returns them scored and truncated to limit.
func (a *KeywordAdapter) Search(ctx context.Context, collection, query string, limit int, filter *vectordb.Filter) ([]Result, error) {
	terms := Tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	scrollFilter := withTextMatch(filter, query)
	points, err := a.db.Scroll(ctx, collection, vectordb.ScrollRequest{
		Filter: scrollFilter,
		Limit:  a.cfg.ScrollLimit,
	})
	if err != nil {
		if !a.cfg.DiscoverFallback {
			return nil, fmt.Errorf("%w: %v", ErrKeywordSearchFailed, err)
		}
		// Store lacks a text-match operator; fall back to the discover path
		// with the raw query as target. Explicit and logged.
		a.log.Warn("keyword scroll failed, falling back to discover",
			zap.String("collection", collection),
			zap.Error(err),
		)
		points, err = a.db.Discover(ctx, collection, vectordb.DiscoverRequest{
			Target: query,
			Limit:  a.cfg.ScrollLimit,
			Filter: filter,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeywordSearchFailed, err)
		}
	}

	type scored struct {
		point vectordb.Point
		score float64
	}
	candidates := make([]scored, 0, len(points))
	for _, p := range points {
		content := p.Payload.Content()
		if content == "" {
			continue
		}
		s := BM25Score(terms, content)
		if s <= 0 {
			continue
		}
		candidates = append(candidates, scored{point: p, score: s})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].point.ID < candidates[j].point.ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]Result, 0, len(candidates))
	for i, c := range candidates {
		out = append(out, Result{
			ID:           c.point.ID,
			Payload:      c.point.Payload,
			Content:      c.point.Payload.Content(),
			Rank:         i + 1,
			Score:        c.score,
			KeywordScore: ptr(c.score),
			SearchType:   SearchTypeKeyword,
		})
	}
	return out, nil
}

// withTextMatch copies the filter and adds a content text-match must clause.
func withTextMatch(filter *vectordb.Filter, query string) *vectordb.Filter {
	out := &vectordb.Filter{}
	if filter != nil {
		out.Must = append(out.Must, filter.Must...)
		out.Should = append(out.Should, filter.Should...)
		out.MustNot = append(out.MustNot, filter.MustNot...)
	}
	out.Must = append(out.Must, vectordb.MatchText("content", query))
	return out
}

// Tokenize lower-cases and splits on non-alphanumeric runes, dropping
// single-character tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r >= 128)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// BM25Score scores content against query terms with k1=1.2, b=0.75 and a
// fixed average document length. True document frequency is unknown without
// an inverted index, so idfApprox substitutes a monotone function of term
// frequency; it deliberately favors longer matches and is documented as an
// approximation. Swapping in a full-text engine keeps the adapter contract.
func BM25Score(terms []string, content string) float64 {
	lower := strings.ToLower(content)
	docLen := float64(len(strings.Fields(lower)))
	norm := bm25K1 * (1 - bm25B + bm25B*(docLen/avgDocLen))

	var score float64
	for _, term := range terms {
		tf := float64(strings.Count(lower, term))
		if tf == 0 {
			continue
		}
		score += (tf * (bm25K1 + 1)) / (tf + norm) * idfApprox(tf)
	}
	return score
}

func idfApprox(tf float64) float64 {
	return math.Log(1 + 1/(tf+1))
}
