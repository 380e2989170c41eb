package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lumenworks/ragcore/internal/circuitbreaker"
	"github.com/lumenworks/ragcore/internal/tracing"
	"go.uber.org/zap"
)

// HTTPScorer talks to a cross-encoder service:
// POST /rerank {query, documents[{id, content, metadata}], model, top_k}
// → {results: [{id, score, content, metadata}]} sorted by score descending.
type HTTPScorer struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

func NewHTTPScorer(cfg Config, logger *zap.Logger) *HTTPScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: cfg.Timeout + 100*time.Millisecond}
	return &HTTPScorer{
		cfg:   cfg,
		base:  cfg.BaseURL,
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "reranker", logger),
		log:   logger,
	}
}

func (s *HTTPScorer) Name() string { return "http" }

type rerankHTTPRequest struct {
	Query     string     `json:"query"`
	Documents []Document `json:"documents"`
	Model     string     `json:"model,omitempty"`
	TopK      int        `json:"top_k"`
}

type rerankHTTPResponse struct {
	Results []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Score returns one normalized score per input document, in input order.
func (s *HTTPScorer) Score(ctx context.Context, query string, docs []Document) ([]float64, error) {
	url := fmt.Sprintf("%s/rerank", s.base)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body := rerankHTTPRequest{
		Query:     capTokens(query, defaultQueryTokenCap),
		Documents: make([]Document, len(docs)),
		Model:     s.cfg.Model,
		TopK:      len(docs),
	}
	for i, d := range docs {
		body.Documents[i] = Document{
			ID:       d.ID,
			Content:  capTokens(d.Content, defaultDocTokenCap),
			Metadata: d.Metadata,
		}
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := s.httpw.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker status %d", resp.StatusCode)
	}
	var rr rerankHTTPResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, err
	}
	if len(rr.Results) != len(docs) {
		return nil, fmt.Errorf("reranker returned %d scores for %d documents", len(rr.Results), len(docs))
	}

	byID := make(map[string]float64, len(rr.Results))
	for _, r := range rr.Results {
		byID[r.ID] = r.Score
	}
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = clamp01(byID[d.ID])
	}
	return out, nil
}

// Health probes the optional GET /health endpoint.
func (s *HTTPScorer) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", s.base), nil)
	if err != nil {
		return err
	}
	resp, err := s.httpw.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reranker health status %d", resp.StatusCode)
	}
	return nil
}

// Models lists models from the optional GET /models endpoint.
func (s *HTTPScorer) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/models", s.base), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpw.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker models status %d", resp.StatusCode)
	}
	var out struct {
		Models []string `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
