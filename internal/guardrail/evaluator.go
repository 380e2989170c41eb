// Package guardrail decides whether retrieved evidence justifies attempting
// an answer. It composes heterogeneous score distributions into a single
// ensemble confidence, applies per-tenant thresholds, and emits an audit
// record on every decision.
package guardrail

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lumenworks/ragcore/internal/access"
	"github.com/lumenworks/ragcore/internal/metrics"
	"github.com/lumenworks/ragcore/internal/search"
	"github.com/lumenworks/ragcore/internal/tenant"
	"go.uber.org/zap"
)

// Decision rationales recorded in the audit trail.
const (
	RationaleAnswerable        = "ANSWERABLE"
	RationaleNotAnswerable     = "NOT_ANSWERABLE"
	RationaleGuardrailDisabled = "GUARDRAIL_DISABLED"
	RationaleBypassEnabled     = "BYPASS_ENABLED"
)

// Decision is the guardrail verdict for one query.
type Decision struct {
	IsAnswerable bool             `json:"isAnswerable"`
	Score        Score            `json:"score"`
	Threshold    tenant.Threshold `json:"threshold"`
	IDKResponse  *IDKResponse     `json:"idkResponse,omitempty"`
	Audit        AuditRecord      `json:"auditTrail"`
}

// AuditRecord is emitted for every decision. Query text is retained here;
// redaction, if required, is the HTTP layer's responsibility.
type AuditRecord struct {
	ID                string        `json:"id"`
	Timestamp         time.Time     `json:"ts"`
	Query             string        `json:"query"`
	TenantID          string        `json:"tenantId"`
	UserSummary       string        `json:"userSummary"`
	ResultsCount      int           `json:"resultsCount"`
	ScoreStatsSummary string        `json:"scoreStatsSummary"`
	DecisionRationale string        `json:"decisionRationale"`
	ScoringDuration   time.Duration `json:"scoringDuration"`
	TotalDuration     time.Duration `json:"totalDuration"`
}

// AuditSink receives audit records, e.g. for persistence by an outer layer.
type AuditSink func(AuditRecord)

// Evaluator computes answerability decisions. Stateless between calls;
// deterministic given the same inputs.
type Evaluator struct {
	log  *zap.Logger
	sink AuditSink
}

// NewEvaluator builds an evaluator. sink may be nil (audit goes to the log
// only).
func NewEvaluator(logger *zap.Logger, sink AuditSink) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{log: logger, sink: sink}
}

// Evaluate scores the final ranked list and applies the tenant threshold.
// rerankerRan marks whether reranker scores come from a real cross-encoder
// pass (pass-through scores still feed the statistics unchanged, but do not
// contribute a reranker confidence sub-score).
func (e *Evaluator) Evaluate(ctx context.Context, query string, results []search.Result, user access.UserContext, cfg tenant.GuardrailConfig, rerankerRan bool) Decision {
	start := time.Now()

	// Short-circuit: guardrail disabled.
	if !cfg.Enabled {
		return e.passthrough(query, results, user, cfg, RationaleGuardrailDisabled, start)
	}
	// Short-circuit: admin bypass.
	if cfg.BypassEnabled && access.IsAdmin(user) {
		return e.passthrough(query, results, user, cfg, RationaleBypassEnabled, start)
	}
	// Short-circuit: nothing retrieved.
	if len(results) == 0 {
		score := Score{Reasoning: "no results retrieved"}
		d := Decision{
			IsAnswerable: false,
			Score:        score,
			Threshold:    cfg.Threshold,
			IDKResponse:  buildIDK(score, nil, cfg),
		}
		d.Audit = e.emitAudit(query, user, score, 0, RationaleNotAnswerable, start, start)
		metrics.RecordGuardrail(user.TenantID, RationaleNotAnswerable, 0, time.Since(start).Seconds())
		return d
	}

	scoringStart := time.Now()
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.EffectiveScore()
	}
	st := ComputeStats(scores)

	alg := AlgorithmScores{
		Statistical: clamp01(statisticalScore(st)),
		Threshold:   clamp01(thresholdScore(st, scores)),
		MLFeatures:  clamp01(mlFeaturesScore(st, results)),
	}
	if rerankerRan {
		if rc, ok := rerankerConfidence(results); ok {
			c := clamp01(rc)
			alg.RerankerConfidence = &c
		}
	}
	confidence := clamp01(ensemble(alg, cfg.AlgorithmWeights))

	t := cfg.Threshold
	answerable := confidence >= t.MinConfidence &&
		st.Max >= t.MinTopScore &&
		st.Mean >= t.MinMeanScore &&
		st.StdDev <= t.MaxStdDev &&
		st.Count >= t.MinResultCount

	score := Score{
		Confidence: confidence,
		Stats:      st,
		Algorithms: alg,
		Reasoning: fmt.Sprintf(
			"confidence %.3f vs min %.2f; top %.3f vs %.2f; mean %.3f vs %.2f; stdDev %.3f vs max %.2f; count %d vs min %d",
			confidence, t.MinConfidence, st.Max, t.MinTopScore, st.Mean, t.MinMeanScore, st.StdDev, t.MaxStdDev, st.Count, t.MinResultCount,
		),
	}

	d := Decision{
		IsAnswerable: answerable,
		Score:        score,
		Threshold:    t,
	}
	rationale := RationaleAnswerable
	if !answerable {
		rationale = RationaleNotAnswerable
		d.IDKResponse = buildIDK(score, results, cfg)
	}
	d.Audit = e.emitAudit(query, user, score, len(results), rationale, scoringStart, start)
	metrics.RecordGuardrail(user.TenantID, rationale, confidence, time.Since(start).Seconds())
	return d
}

// passthrough grants answerability with confidence 1.0 for the disabled and
// bypass short-circuits.
func (e *Evaluator) passthrough(query string, results []search.Result, user access.UserContext, cfg tenant.GuardrailConfig, rationale string, start time.Time) Decision {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.EffectiveScore()
	}
	score := Score{
		Confidence: 1.0,
		Stats:      ComputeStats(scores),
		Algorithms: AlgorithmScores{Statistical: 1, Threshold: 1, MLFeatures: 1},
		Reasoning:  rationale,
	}
	d := Decision{
		IsAnswerable: true,
		Score:        score,
		Threshold:    cfg.Threshold,
	}
	d.Audit = e.emitAudit(query, user, score, len(results), rationale, start, start)
	metrics.RecordGuardrail(user.TenantID, rationale, 1.0, time.Since(start).Seconds())
	return d
}

func (e *Evaluator) emitAudit(query string, user access.UserContext, score Score, resultsCount int, rationale string, scoringStart, start time.Time) AuditRecord {
	now := time.Now()
	rec := AuditRecord{
		ID:           uuid.New().String(),
		Timestamp:    now,
		Query:        query,
		TenantID:     user.TenantID,
		UserSummary:  fmt.Sprintf("user=%s groups=%d", user.UserID, len(user.GroupIDs)),
		ResultsCount: resultsCount,
		ScoreStatsSummary: fmt.Sprintf("mean=%.3f max=%.3f stdDev=%.3f count=%d",
			score.Stats.Mean, score.Stats.Max, score.Stats.StdDev, score.Stats.Count),
		DecisionRationale: rationale,
		ScoringDuration:   now.Sub(scoringStart),
		TotalDuration:     now.Sub(start),
	}
	e.log.Info("guardrail decision",
		zap.String("audit_id", rec.ID),
		zap.String("tenant_id", rec.TenantID),
		zap.String("rationale", rec.DecisionRationale),
		zap.Float64("confidence", score.Confidence),
		zap.Int("results", resultsCount),
	)
	if e.sink != nil {
		e.sink(rec)
	}
	return rec
}
