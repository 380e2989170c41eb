// Package rerank applies an optional cross-encoder pass over fused results.
// Every failure mode degrades to pass-through: the service never raises.
package rerank

import (
	"context"
	"sort"
	"time"

	"github.com/lumenworks/ragcore/internal/metrics"
	"github.com/lumenworks/ragcore/internal/search"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Service batches documents through a Scorer under a hard whole-call
// timeout. On timeout, transport failure, or enabled=false it returns the
// inputs unchanged with RerankerScore set to the original score.
type Service struct {
	cfg     Config
	scorer  Scorer
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewService wires a reranker. scorer may be nil, which forces pass-through.
func NewService(cfg Config, scorer Scorer, logger *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Service{cfg: cfg, scorer: scorer, limiter: limiter, log: logger}
}

// Config returns the effective (defaulted) configuration.
func (s *Service) Config() Config { return s.cfg }

// Rerank scores the inputs and returns them sorted by RerankerScore
// descending, truncated to topK, with ranks reassigned 1..N. The second
// return reports how many documents were actually model-scored: 0 means
// pass-through, where order and cardinality are preserved and
// RerankerScore equals the original score.
func (s *Service) Rerank(ctx context.Context, query string, in []search.Result, topK int) ([]search.Result, int) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	if len(in) == 0 {
		return in, 0
	}
	if !s.cfg.Enabled || s.scorer == nil {
		return passthrough(in), 0
	}

	start := time.Now()
	backend := s.scorer.Name()

	// Hard timeout over the whole call, all batches included.
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	docs := make([]Document, len(in))
	for i, r := range in {
		docs[i] = Document{
			ID:            r.ID,
			Content:       r.Content,
			OriginalScore: r.Score,
		}
	}

	scores := make([]float64, 0, len(docs))
	for off := 0; off < len(docs); off += s.cfg.BatchSize {
		end := off + s.cfg.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				metrics.RecordRerank(backend, "timeout", time.Since(start).Seconds(), 0)
				s.log.Warn("rerank rate wait aborted, passing through", zap.Error(err))
				return passthrough(in), 0
			}
		}
		batch, err := s.scorer.Score(ctx, query, docs[off:end])
		if err != nil {
			status := "error"
			if ctx.Err() != nil {
				status = "timeout"
			}
			metrics.RecordRerank(backend, status, time.Since(start).Seconds(), 0)
			s.log.Warn("rerank failed, passing through",
				zap.String("backend", backend),
				zap.Int("documents", len(in)),
				zap.Error(err),
			)
			return passthrough(in), 0
		}
		scores = append(scores, batch...)
	}

	out := make([]search.Result, len(in))
	for i, r := range in {
		score := scores[i]
		r.RerankerScore = &score
		r.Score = score
		out[i] = r
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if s.cfg.ScoreThreshold > 0 {
		kept := out[:0]
		for _, r := range out {
			if r.Score >= s.cfg.ScoreThreshold {
				kept = append(kept, r)
			}
		}
		out = kept
	}
	if len(out) > topK {
		out = out[:topK]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	metrics.RecordRerank(backend, "ok", time.Since(start).Seconds(), len(in))
	return out, len(in)
}

// passthrough preserves order and cardinality and pins RerankerScore to the
// original score so downstream statistics are unchanged.
func passthrough(in []search.Result) []search.Result {
	out := make([]search.Result, len(in))
	for i, r := range in {
		score := r.Score
		r.RerankerScore = &score
		out[i] = r
	}
	return out
}
