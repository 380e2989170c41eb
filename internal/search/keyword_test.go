package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenworks/ragcore/internal/vectordb"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"lowercases and splits", "Refund Policy", []string{"refund", "policy"}},
		{"strips punctuation", "what's the refund-policy?", []string{"what", "the", "refund", "policy"}},
		{"drops single characters", "a b refund", []string{"refund"}},
		{"keeps digits", "error 502 retry", []string{"error", "502", "retry"}},
		{"empty", "  !?  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBM25Score(t *testing.T) {
	t.Run("no matching terms scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, BM25Score([]string{"quantum"}, "refund policy text"))
	})

	t.Run("matching term scores positive", func(t *testing.T) {
		assert.Greater(t, BM25Score([]string{"refund"}, "our refund policy"), 0.0)
	})

	t.Run("more matched terms score higher", func(t *testing.T) {
		content := "Refund policy: full refund within 30 days."
		one := BM25Score([]string{"refund"}, content)
		two := BM25Score([]string{"refund", "policy"}, content)
		assert.Greater(t, two, one)
	})

	t.Run("case insensitive", func(t *testing.T) {
		a := BM25Score([]string{"refund"}, "REFUND granted")
		b := BM25Score([]string{"refund"}, "refund granted")
		assert.Equal(t, b, a)
	})
}

func TestWithTextMatch(t *testing.T) {
	base := &vectordb.Filter{
		Must:    []vectordb.Condition{vectordb.MatchValue("tenant", "t1")},
		MustNot: []vectordb.Condition{vectordb.MatchValue("archived", true)},
	}
	got := withTextMatch(base, "refund policy")

	require.Len(t, got.Must, 2)
	assert.Equal(t, "tenant", got.Must[0].Key)
	assert.Equal(t, "content", got.Must[1].Key)
	assert.Equal(t, "refund policy", got.Must[1].Match.Text)
	require.Len(t, got.MustNot, 1)

	// The input filter is not mutated.
	assert.Len(t, base.Must, 1)
}

func TestWithTextMatchNilFilter(t *testing.T) {
	got := withTextMatch(nil, "q")
	require.Len(t, got.Must, 1)
	assert.Equal(t, "content", got.Must[0].Key)
}

func TestEffectiveScoreIsStageScore(t *testing.T) {
	fused := 0.4
	r := Result{Score: 0.8, FusionScore: &fused}
	assert.Equal(t, 0.8, r.EffectiveScore())
}

func storeClient(t *testing.T, srv *httptest.Server) *vectordb.Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return vectordb.NewClient(vectordb.Config{Host: u.Hostname(), Port: port}, nil)
}

func scrollPayload(content string) map[string]interface{} {
	return map[string]interface{}{"tenant": "t1", "content": content}
}

func TestKeywordAdapterSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/chunks/points/scroll", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"points": []map[string]interface{}{
					{"id": "weak", "payload": scrollPayload("The refund form is on page two.")},
					{"id": "strong", "payload": scrollPayload("Refund policy: refund requests get a refund decision fast.")},
					{"id": "none", "payload": scrollPayload("Completely unrelated gardening advice.")},
					{"id": "empty", "payload": map[string]interface{}{"tenant": "t1"}},
				},
			},
		})
	}))
	defer srv.Close()

	a := NewKeywordAdapter(storeClient(t, srv), KeywordConfig{}, nil)
	results, err := a.Search(context.Background(), "chunks", "refund policy", 10, nil)
	require.NoError(t, err)

	// Chunks without a match or without content are dropped.
	require.Len(t, results, 2)
	assert.Equal(t, "strong", results[0].ID)
	assert.Equal(t, "weak", results[1].ID)
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, SearchTypeKeyword, r.SearchType)
		require.NotNil(t, r.KeywordScore)
		assert.Equal(t, r.Score, *r.KeywordScore)
		assert.Greater(t, r.Score, 0.0)
	}
}

func TestKeywordAdapterTruncatesToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"points": []map[string]interface{}{
					{"id": "a", "payload": scrollPayload("refund refund refund")},
					{"id": "b", "payload": scrollPayload("refund refund")},
					{"id": "c", "payload": scrollPayload("refund")},
				},
			},
		})
	}))
	defer srv.Close()

	a := NewKeywordAdapter(storeClient(t, srv), KeywordConfig{}, nil)
	results, err := a.Search(context.Background(), "chunks", "refund", 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestKeywordAdapterScrollFailureWithoutFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "text match unsupported", http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewKeywordAdapter(storeClient(t, srv), KeywordConfig{}, nil)
	_, err := a.Search(context.Background(), "chunks", "refund", 10, nil)
	assert.ErrorIs(t, err, ErrKeywordSearchFailed)
}

func TestKeywordAdapterDiscoverFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/chunks/points/scroll":
			http.Error(w, "text match unsupported", http.StatusBadRequest)
		case "/collections/chunks/points/discover":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "ok",
				"result": []map[string]interface{}{
					{"id": "d1", "score": 0.4, "payload": scrollPayload("refund details here")},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := NewKeywordAdapter(storeClient(t, srv), KeywordConfig{DiscoverFallback: true}, nil)
	results, err := a.Search(context.Background(), "chunks", "refund", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
}

func TestKeywordAdapterEmptyQuery(t *testing.T) {
	a := NewKeywordAdapter(nil, KeywordConfig{}, nil)
	results, err := a.Search(context.Background(), "chunks", "  ! ", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
