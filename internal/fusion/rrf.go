// Package fusion combines vector and keyword result lists with weighted
// Reciprocal Rank Fusion. RRF depends only on ranks, so the incomparable
// cosine and BM25-style score scales never need normalizing before fusion.
package fusion

import (
	"sort"

	"github.com/lumenworks/ragcore/internal/search"
)

// Params tune the fusion. K dampens the influence of top ranks; the weights
// come from tenant config and should sum to roughly 1.
type Params struct {
	K             int
	VectorWeight  float64
	KeywordWeight float64
}

// DefaultParams mirror the recognized configuration defaults.
func DefaultParams() Params {
	return Params{K: 60, VectorWeight: 0.7, KeywordWeight: 0.3}
}

// Fuse merges the two ranked lists. For each id,
//
//	rrf(id) = vw/(k + rank_v) + kw/(k + rank_k)
//
// with 1-based ranks and a missing rank contributing 0. Output is sorted by
// fused score descending with a stable tie-break (original vector rank
// ascending, then id), and carries exactly |vector ∪ keyword| entries.
func Fuse(vector, keyword []search.Result, p Params) []search.Result {
	if p.K < 1 {
		p.K = 60
	}

	merged := make(map[string]*search.Result, len(vector)+len(keyword))
	order := make([]string, 0, len(vector)+len(keyword))

	for i := range vector {
		v := vector[i]
		r := v
		r.VectorRank = i + 1
		merged[v.ID] = &r
		order = append(order, v.ID)
	}
	for i := range keyword {
		kw := keyword[i]
		if existing, ok := merged[kw.ID]; ok {
			existing.KeywordRank = i + 1
			existing.KeywordScore = kw.KeywordScore
			existing.SearchType = search.SearchTypeHybrid
			// Content from the vector result wins when both sides carry it.
			if existing.Content == "" {
				existing.Content = kw.Content
			}
			continue
		}
		r := kw
		r.KeywordRank = i + 1
		merged[kw.ID] = &r
		order = append(order, kw.ID)
	}

	out := make([]search.Result, 0, len(order))
	for _, id := range order {
		r := merged[id]
		var rrf float64
		if r.VectorRank > 0 {
			rrf += p.VectorWeight / float64(p.K+r.VectorRank)
		}
		if r.KeywordRank > 0 {
			rrf += p.KeywordWeight / float64(p.K+r.KeywordRank)
		}
		score := rrf
		r.Score = score
		r.FusionScore = &score
		out = append(out, *r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		ri, rj := tieRank(out[i].VectorRank), tieRank(out[j].VectorRank)
		if ri != rj {
			return ri < rj
		}
		return out[i].ID < out[j].ID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// tieRank treats a missing vector rank as after every present one.
func tieRank(r int) int {
	if r == 0 {
		return 1 << 30
	}
	return r
}

// Normalize rescales the fused Score onto [0,1] by the maximum attainable
// rrf value, (vw+kw)/(k+1): a result ranked first in both lists scores
// exactly 1. Guardrail threshold presets are defined over this scale.
// FusionScore keeps the raw rrf value for introspection. Order-preserving.
func Normalize(results []search.Result, p Params) {
	if p.K < 1 {
		p.K = 60
	}
	max := (p.VectorWeight + p.KeywordWeight) / float64(p.K+1)
	if max <= 0 {
		return
	}
	for i := range results {
		s := results[i].Score / max
		if s > 1 {
			s = 1
		}
		results[i].Score = s
	}
}
