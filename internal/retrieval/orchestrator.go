// Package retrieval runs the guarded pipeline: access filter → concurrent
// vector+keyword search → RRF fusion → optional rerank → ACL post-filter →
// answerability guardrail. Every stage is timed and every outbound call is
// bounded by a stage timeout under the request deadline.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lumenworks/ragcore/internal/access"
	"github.com/lumenworks/ragcore/internal/fusion"
	"github.com/lumenworks/ragcore/internal/guardrail"
	"github.com/lumenworks/ragcore/internal/metrics"
	"github.com/lumenworks/ragcore/internal/search"
	"github.com/lumenworks/ragcore/internal/tenant"
	"github.com/lumenworks/ragcore/internal/vectordb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Orchestrator coordinates the retrieval collaborators for one collection.
type Orchestrator struct {
	cfg      Config
	embedder Embedder
	vector   VectorSearcher
	keyword  KeywordSearcher
	reranker Reranker
	guard    *guardrail.Evaluator
	tenants  *tenant.Store
	log      *zap.Logger
}

// NewOrchestrator wires the pipeline. keyword and reranker may be nil when
// those arms are deployed disabled.
func NewOrchestrator(
	cfg Config,
	embedder Embedder,
	vector VectorSearcher,
	keyword KeywordSearcher,
	reranker Reranker,
	guard *guardrail.Evaluator,
	tenants *tenant.Store,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		embedder: embedder,
		vector:   vector,
		keyword:  keyword,
		reranker: reranker,
		guard:    guard,
		tenants:  tenants,
		log:      logger,
	}
}

// Retrieve runs the guarded pipeline for one request. Fatal failures return
// a typed error; keyword and reranker failures degrade in place. A guardrail
// IDK verdict is a normal Response with IsAnswerable=false.
func (o *Orchestrator) Retrieve(ctx context.Context, collection string, req Request, user access.UserContext) (*Response, error) {
	start := time.Now()
	var m Metrics

	// 1. Authorization is validated before anything leaves the process.
	if err := user.Validate(); err != nil {
		return nil, &StageError{Stage: "authorize", Cause: fmt.Errorf("%w: %v", ErrUnauthorized, err)}
	}

	tcfg := o.tenants.Get(ctx, user.TenantID)
	limit := o.cfg.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit <= 0 {
		// Nothing to retrieve; the guardrail turns the empty list into an
		// IDK decision without touching any external service.
		t0 := time.Now()
		decision := o.guard.Evaluate(ctx, req.Query, nil, user, tcfg.Guardrail, false)
		m.GuardrailDuration = time.Since(t0)
		m.TotalDuration = time.Since(start)
		metrics.RetrievalsTotal.WithLabelValues(user.TenantID, "ok").Inc()
		return &Response{
			IsAnswerable: decision.IsAnswerable,
			IDKResponse:  decision.IDKResponse,
			Decision:     decision,
			Metrics:      m,
		}, nil
	}

	// 2. Access filter with request extras merged into the conjunction.
	extra := append([]vectordb.Condition(nil), req.Filter...)
	if req.DocID != "" {
		extra = append(extra, vectordb.MatchValue("docId", req.DocID))
	}
	filter, err := access.BuildFilter(user, extra...)
	if err != nil {
		return nil, &StageError{Stage: "filter", Cause: fmt.Errorf("%w: %v", ErrUnauthorized, err)}
	}

	// 3. Embed the query.
	vec, err := o.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, &StageError{Stage: "embed", Cause: fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)}
	}

	// 4. Vector and keyword searches run concurrently. Vector failure is
	// fatal; keyword failure degrades to vector-only.
	var vectorResults, keywordResults []search.Result
	keywordEnabled := tcfg.KeywordSearchEnabled && o.keyword != nil && limit > 0

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, o.cfg.VectorSearchTimeout)
		defer cancel()
		t0 := time.Now()
		var err error
		vectorResults, err = o.vector.Search(sctx, collection, vec, o.cfg.CandidateLimit, filter)
		m.VectorSearchDuration = time.Since(t0)
		if err != nil {
			return &StageError{Stage: "vector_search", Cause: fmt.Errorf("%w: %v", ErrVectorSearchFailed, err)}
		}
		return nil
	})
	if keywordEnabled {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, o.cfg.KeywordSearchTimeout)
			defer cancel()
			t0 := time.Now()
			kw, kerr := o.keyword.Search(sctx, collection, req.Query, o.cfg.CandidateLimit, filter)
			m.KeywordSearchDuration = time.Since(t0)
			if kerr != nil {
				// Recoverable: the pipeline continues vector-only.
				metrics.KeywordSearchDegraded.Inc()
				o.log.Warn("keyword search degraded",
					zap.String("tenant_id", user.TenantID),
					zap.Error(kerr),
				)
				return nil
			}
			keywordResults = kw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RetrievalsTotal.WithLabelValues(user.TenantID, "error").Inc()
		return nil, err
	}
	m.VectorResultCount = len(vectorResults)
	m.KeywordResultCount = len(keywordResults)

	// 5. Fuse with tenant weights, overridable per request.
	params := fusion.Params{
		K:             tcfg.RRFK,
		VectorWeight:  tcfg.VectorWeight,
		KeywordWeight: tcfg.KeywordWeight,
	}
	if ov := req.Overrides; ov != nil {
		if ov.VectorWeight != nil {
			params.VectorWeight = *ov.VectorWeight
		}
		if ov.KeywordWeight != nil {
			params.KeywordWeight = *ov.KeywordWeight
		}
		if ov.RRFK != nil {
			params.K = *ov.RRFK
		}
	}
	t0 := time.Now()
	results := fusion.Fuse(vectorResults, keywordResults, params)
	// Bounded rescale onto [0,1] so the fused scores live on the scale the
	// tenant threshold presets are defined over. Raw rrf stays in FusionScore.
	fusion.Normalize(results, params)
	m.FusionDuration = time.Since(t0)

	// 6. Optional cross-encoder pass over the fused head.
	m.RerankingEnabled = tcfg.RerankerEnabled && o.reranker != nil
	if m.RerankingEnabled && len(results) > 0 {
		topN := o.cfg.RerankTopNIn
		topK := o.cfg.RerankTopK
		if rc := tcfg.Reranker; rc != nil {
			if rc.TopNIn > 0 {
				topN = rc.TopNIn
			}
			if rc.TopK > 0 {
				topK = rc.TopK
			}
		}
		head := results
		if len(head) > topN {
			head = head[:topN]
		}
		t0 = time.Now()
		reranked, scored := o.reranker.Rerank(ctx, req.Query, head, topK)
		m.RerankerDuration = time.Since(t0)
		m.DocumentsReranked = scored
		results = reranked
	}

	// 7. Post-filter: re-check the access predicate on every survivor
	// (defense-in-depth against payload tampering), then reweight by
	// language preference.
	results = o.postFilter(results, user)
	if limit < len(results) {
		results = results[:limit]
	}
	m.FinalResultCount = len(results)

	// 8. Guardrail verdict under its own short deadline.
	gctx2, cancel := context.WithTimeout(ctx, o.cfg.GuardrailTimeout)
	t0 = time.Now()
	decision := o.guard.Evaluate(gctx2, req.Query, results, user, tcfg.Guardrail, m.DocumentsReranked > 0)
	cancel()
	m.GuardrailDuration = time.Since(t0)
	m.TotalDuration = time.Since(start)

	resp := &Response{
		IsAnswerable: decision.IsAnswerable,
		Decision:     decision,
		Metrics:      m,
	}
	if decision.IsAnswerable {
		resp.Results = results
	} else {
		resp.IDKResponse = decision.IDKResponse
	}

	metrics.RetrievalsTotal.WithLabelValues(user.TenantID, "ok").Inc()
	metrics.RetrievalDuration.WithLabelValues(user.TenantID).Observe(m.TotalDuration.Seconds())
	o.log.Debug("retrieval complete",
		zap.String("tenant_id", user.TenantID),
		zap.Bool("answerable", decision.IsAnswerable),
		zap.Int("vector_results", m.VectorResultCount),
		zap.Int("keyword_results", m.KeywordResultCount),
		zap.Int("final_results", m.FinalResultCount),
		zap.Duration("total", m.TotalDuration),
	)
	return resp, nil
}

// postFilter drops results failing the access predicate and multiplies
// scores by the language-relevance factor (1.0 on exact match with the
// user's preference, the configured factor otherwise). Bounded reweighting
// after fusion keeps the rank-only fusion untouched. Reweighting can push a
// mismatched result below a lower-ranked exact match, so the list is
// re-sorted (stably, preserving the incoming order on ties) before ranks
// are reassigned.
func (o *Orchestrator) postFilter(results []search.Result, user access.UserContext) []search.Result {
	out := results[:0]
	reweighted := false
	for _, r := range results {
		if !access.Allowed(user, r.Payload) {
			o.log.Warn("post-filter dropped result failing ACL re-check",
				zap.String("id", r.ID),
				zap.String("tenant_id", user.TenantID),
			)
			continue
		}
		if user.Language != "" {
			if lang := r.Payload.Lang(); lang != "" && lang != user.Language {
				r.Score *= o.cfg.LanguageMismatchFactor
				reweighted = true
			}
		}
		out = append(out, r)
	}
	if reweighted {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Score > out[j].Score
		})
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
