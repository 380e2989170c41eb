package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenworks/ragcore/internal/search"
)

func vectorList(ids ...string) []search.Result {
	out := make([]search.Result, len(ids))
	for i, id := range ids {
		out[i] = search.Result{
			ID:         id,
			Content:    "vector content " + id,
			Rank:       i + 1,
			Score:      1.0 / float64(i+1),
			SearchType: search.SearchTypeVector,
		}
	}
	return out
}

func keywordList(ids ...string) []search.Result {
	out := make([]search.Result, len(ids))
	for i, id := range ids {
		out[i] = search.Result{
			ID:         id,
			Content:    "keyword content " + id,
			Rank:       i + 1,
			Score:      10.0 / float64(i+1),
			SearchType: search.SearchTypeKeyword,
		}
	}
	return out
}

func TestFuseCardinality(t *testing.T) {
	tests := []struct {
		name    string
		vector  []string
		keyword []string
		want    int
	}{
		{"disjoint", []string{"a", "b"}, []string{"c", "d"}, 4},
		{"overlap", []string{"a", "b", "c"}, []string{"b", "d"}, 4},
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 2},
		{"vector only", []string{"a", "b", "c"}, nil, 3},
		{"keyword only", nil, []string{"x"}, 1},
		{"both empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fused := Fuse(vectorList(tt.vector...), keywordList(tt.keyword...), DefaultParams())
			assert.Len(t, fused, tt.want)
		})
	}
}

func TestFuseScoresAndOrdering(t *testing.T) {
	p := Params{K: 60, VectorWeight: 0.7, KeywordWeight: 0.3}
	fused := Fuse(vectorList("a", "b", "c"), keywordList("b", "d"), p)
	require.Len(t, fused, 4)

	// b is in both lists (vector rank 2, keyword rank 1) and wins.
	assert.Equal(t, "b", fused[0].ID)
	assert.Equal(t, "a", fused[1].ID)
	assert.Equal(t, "c", fused[2].ID)
	assert.Equal(t, "d", fused[3].ID)

	assert.InDelta(t, 0.7/62.0+0.3/61.0, fused[0].Score, 1e-12)
	assert.InDelta(t, 0.7/61.0, fused[1].Score, 1e-12)
	assert.InDelta(t, 0.7/63.0, fused[2].Score, 1e-12)
	assert.InDelta(t, 0.3/62.0, fused[3].Score, 1e-12)

	for i, r := range fused {
		assert.Equal(t, i+1, r.Rank)
		require.NotNil(t, r.FusionScore)
		assert.Equal(t, r.Score, *r.FusionScore)
	}
}

func TestFuseSearchTypes(t *testing.T) {
	fused := Fuse(vectorList("a", "b"), keywordList("b", "c"), DefaultParams())
	byID := make(map[string]search.Result, len(fused))
	for _, r := range fused {
		byID[r.ID] = r
	}
	assert.Equal(t, search.SearchTypeVector, byID["a"].SearchType)
	assert.Equal(t, search.SearchTypeHybrid, byID["b"].SearchType)
	assert.Equal(t, search.SearchTypeKeyword, byID["c"].SearchType)
}

func TestFuseContentPrefersVector(t *testing.T) {
	fused := Fuse(vectorList("a"), keywordList("a"), DefaultParams())
	require.Len(t, fused, 1)
	assert.Equal(t, "vector content a", fused[0].Content)

	// A vector result without content picks up the keyword side's.
	v := vectorList("a")
	v[0].Content = ""
	fused = Fuse(v, keywordList("a"), DefaultParams())
	require.Len(t, fused, 1)
	assert.Equal(t, "keyword content a", fused[0].Content)
}

func TestFuseTieBreakVectorRankFirst(t *testing.T) {
	// Equal weights put the top vector-only and top keyword-only results at
	// the same fused score; the one with a vector rank sorts first.
	p := Params{K: 60, VectorWeight: 0.5, KeywordWeight: 0.5}
	fused := Fuse(vectorList("zeta"), keywordList("alpha"), p)
	require.Len(t, fused, 2)
	assert.InDelta(t, fused[0].Score, fused[1].Score, 1e-12)
	assert.Equal(t, "zeta", fused[0].ID)
	assert.Equal(t, "alpha", fused[1].ID)
}

func TestFuseTieBreakID(t *testing.T) {
	// Zero keyword weight ties every keyword-only result at 0; with no
	// vector rank either, the id breaks the tie.
	p := Params{K: 60, VectorWeight: 0.7, KeywordWeight: 0}
	fused := Fuse(nil, keywordList("delta", "beta", "alpha"), p)
	require.Len(t, fused, 3)
	assert.Equal(t, "alpha", fused[0].ID)
	assert.Equal(t, "beta", fused[1].ID)
	assert.Equal(t, "delta", fused[2].ID)
}

func TestFuseKeepsInputRanks(t *testing.T) {
	fused := Fuse(vectorList("a", "b"), keywordList("b"), DefaultParams())
	byID := make(map[string]search.Result, len(fused))
	for _, r := range fused {
		byID[r.ID] = r
	}
	assert.Equal(t, 1, byID["a"].VectorRank)
	assert.Equal(t, 0, byID["a"].KeywordRank)
	assert.Equal(t, 2, byID["b"].VectorRank)
	assert.Equal(t, 1, byID["b"].KeywordRank)
}

func TestNormalize(t *testing.T) {
	p := DefaultParams()
	fused := Fuse(vectorList("a", "b"), keywordList("a"), p)
	Normalize(fused, p)

	// a is rank 1 in both lists, the maximum attainable rrf.
	require.Equal(t, "a", fused[0].ID)
	assert.InDelta(t, 1.0, fused[0].Score, 1e-12)
	assert.Greater(t, fused[0].Score, fused[1].Score)
	assert.LessOrEqual(t, fused[1].Score, 1.0)
	assert.Greater(t, fused[1].Score, 0.0)

	// Raw rrf survives in FusionScore.
	require.NotNil(t, fused[0].FusionScore)
	assert.InDelta(t, 1.0/61.0, *fused[0].FusionScore, 1e-12)
}

func TestNormalizeZeroWeightsNoOp(t *testing.T) {
	p := Params{K: 60}
	results := []search.Result{{ID: "a", Score: 0.5}}
	Normalize(results, p)
	assert.Equal(t, 0.5, results[0].Score)
}
