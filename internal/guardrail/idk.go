package guardrail

import (
	"strings"

	"github.com/lumenworks/ragcore/internal/search"
	"github.com/lumenworks/ragcore/internal/tenant"
)

const genericSuggestion = "Try rephrasing the question or adding more specific terms."

// IDKResponse is the structured "I don't know" payload.
type IDKResponse struct {
	Message         string   `json:"message"`
	ReasonCode      string   `json:"reasonCode"`
	Suggestions     []string `json:"suggestions,omitempty"`
	ConfidenceLevel float64  `json:"confidenceLevel"`
}

// selectReason maps the failure mode onto a reason code: empty results →
// NO_RELEVANT_DOCS, very low confidence → LOW_CONFIDENCE, scattered scores →
// AMBIGUOUS_QUERY, otherwise LOW_CONFIDENCE.
func selectReason(score Score) string {
	switch {
	case score.Stats.Count == 0:
		return tenant.ReasonNoRelevantDocs
	case score.Confidence < 0.3:
		return tenant.ReasonLowConfidence
	case score.Stats.StdDev > 0.4:
		return tenant.ReasonAmbiguousQuery
	default:
		return tenant.ReasonLowConfidence
	}
}

// buildIDK renders the IDK response for the chosen reason, deriving
// suggestions when fallback is enabled and the template asks for them.
func buildIDK(score Score, results []search.Result, cfg tenant.GuardrailConfig) *IDKResponse {
	reason := selectReason(score)
	tpl := templateFor(cfg.IDKTemplates, reason)

	resp := &IDKResponse{
		Message:         tpl.Template,
		ReasonCode:      reason,
		ConfidenceLevel: score.Confidence,
	}
	if cfg.Fallback.Enabled && tpl.IncludeSuggestions {
		resp.Suggestions = deriveSuggestions(results, cfg.Fallback)
	}
	return resp
}

// templateFor finds the template matching the reason code, falling back to
// a default rendering when the tenant has none.
func templateFor(templates []tenant.IDKTemplate, reason string) tenant.IDKTemplate {
	for _, t := range templates {
		if t.ReasonCode == reason {
			return t
		}
	}
	for _, t := range tenant.DefaultIDKTemplates() {
		if t.ReasonCode == reason {
			return t
		}
	}
	return tenant.IDKTemplate{
		ID:         "idk-generic",
		ReasonCode: reason,
		Template:   "I don't know the answer to that based on the available documents.",
	}
}

// deriveSuggestions takes the first sentence of each result scoring at or
// above the suggestion threshold, de-duplicated, capped at MaxSuggestions.
// A generic suggestion stands in when nothing qualifies.
func deriveSuggestions(results []search.Result, fb tenant.FallbackConfig) []string {
	max := fb.MaxSuggestions
	if max <= 0 {
		max = 3
	}
	seen := make(map[string]struct{})
	var out []string
	for _, r := range results {
		if len(out) >= max {
			break
		}
		if r.EffectiveScore() < fb.SuggestionThreshold {
			continue
		}
		s := firstSentence(r.Content)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		out = []string{genericSuggestion}
	}
	return out
}

// firstSentence returns the text up to the first terminator, trimmed.
func firstSentence(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if idx := strings.IndexAny(content, ".!?"); idx >= 0 {
		content = content[:idx+1]
	}
	if len(content) > 200 {
		content = content[:200]
	}
	return strings.TrimSpace(content)
}
