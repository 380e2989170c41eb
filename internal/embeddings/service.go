package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lumenworks/ragcore/internal/circuitbreaker"
	"github.com/lumenworks/ragcore/internal/metrics"
	"github.com/lumenworks/ragcore/internal/tracing"
	"go.uber.org/zap"
)

// Service provides embedding generation with two cache layers (LRU, Redis).
// Vectors are deterministic given model+text, so cache entries never need
// invalidation beyond TTL.
type Service struct {
	cfg   Config
	httpw *circuitbreaker.HTTPWrapper
	cache Cache
	local *lru.LRU[string, []float32]
	log   *zap.Logger
}

// NewService wires the embedding client. cache may be nil (LRU only).
func NewService(cfg Config, cache Cache, logger *zap.Logger) *Service {
	c := cfg
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "all-MiniLM-L6-v2"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.MaxLRU == 0 {
		c.MaxLRU = 2048
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: c.Timeout}
	return &Service{
		cfg:   c,
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "embeddings", logger),
		cache: cache,
		local: newLocalLRU(c.MaxLRU, 30*time.Minute),
		log:   logger,
	}
}

// GetConfig returns the current configuration
func (s *Service) GetConfig() Config { return s.cfg }

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// Embed returns the vector for a single text using the configured provider.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single request,
// serving cached entries and fetching only the misses.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s == nil {
		return nil, fmt.Errorf("embedding service not initialized")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	m := s.cfg.DefaultModel

	results := make([][]float32, len(texts))
	var uncachedTexts []string
	var uncachedIdx []int

	for i, text := range texts {
		key := MakeKey(m, text)
		if v, ok := s.local.Get(key); ok {
			results[i] = v
			metrics.EmbeddingCacheHits.WithLabelValues("lru").Inc()
			continue
		}
		if s.cache != nil {
			if v, ok := s.cache.Get(ctx, key); ok {
				results[i] = v
				s.local.Add(key, v)
				metrics.EmbeddingCacheHits.WithLabelValues("redis").Inc()
				continue
			}
		}
		uncachedTexts = append(uncachedTexts, text)
		uncachedIdx = append(uncachedIdx, i)
	}
	if len(uncachedTexts) == 0 {
		return results, nil
	}

	start := time.Now()
	url := fmt.Sprintf("%s/embeddings", s.cfg.BaseURL)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	buf, _ := json.Marshal(embedRequest{Texts: uncachedTexts, Model: m})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := s.httpw.Do(req)
	if err != nil {
		metrics.RecordEmbedding(m, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.RecordEmbedding(m, "error", time.Since(start).Seconds())
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		metrics.RecordEmbedding(m, "error", time.Since(start).Seconds())
		return nil, err
	}
	if len(er.Embeddings) != len(uncachedTexts) {
		return nil, fmt.Errorf("embedding service returned %d embeddings for %d texts", len(er.Embeddings), len(uncachedTexts))
	}

	for i, embedding := range er.Embeddings {
		if s.cfg.Dim > 0 && len(embedding) != s.cfg.Dim {
			metrics.RecordEmbedding(m, "bad_dim", time.Since(start).Seconds())
			return nil, fmt.Errorf("embedding dim %d, expected %d", len(embedding), s.cfg.Dim)
		}
		out := make([]float32, len(embedding))
		for j, f := range embedding {
			out[j] = float32(f)
		}
		results[uncachedIdx[i]] = out

		key := MakeKey(m, uncachedTexts[i])
		s.local.Add(key, out)
		if s.cache != nil {
			s.cache.Set(ctx, key, out, s.cfg.CacheTTL)
		}
	}
	metrics.RecordEmbedding(m, "ok", time.Since(start).Seconds())
	return results, nil
}
