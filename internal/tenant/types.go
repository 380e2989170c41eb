package tenant

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfigInvalid wraps all validation failures; updates are rejected
// synchronously.
var ErrConfigInvalid = errors.New("invalid tenant config")

// Reason codes for IDK responses.
const (
	ReasonLowConfidence  = "LOW_CONFIDENCE"
	ReasonNoRelevantDocs = "NO_RELEVANT_DOCS"
	ReasonAmbiguousQuery = "AMBIGUOUS_QUERY"
)

// ThresholdType names a guardrail preset or a custom threshold.
type ThresholdType string

const (
	ThresholdStrict     ThresholdType = "strict"
	ThresholdStandard   ThresholdType = "standard"
	ThresholdPermissive ThresholdType = "permissive"
	ThresholdCustom     ThresholdType = "custom"
)

// Threshold gates answerability. All numeric fields live in [0,1] except
// MinResultCount.
type Threshold struct {
	Type           ThresholdType `json:"type" yaml:"type" mapstructure:"type"`
	MinConfidence  float64       `json:"minConfidence" yaml:"min_confidence" mapstructure:"min_confidence"`
	MinTopScore    float64       `json:"minTopScore" yaml:"min_top_score" mapstructure:"min_top_score"`
	MinMeanScore   float64       `json:"minMeanScore" yaml:"min_mean_score" mapstructure:"min_mean_score"`
	MaxStdDev      float64       `json:"maxStdDev" yaml:"max_std_dev" mapstructure:"max_std_dev"`
	MinResultCount int           `json:"minResultCount" yaml:"min_result_count" mapstructure:"min_result_count"`
}

// AlgorithmWeights blend the guardrail sub-scores into the ensemble
// confidence. When the reranker did not run, the first three are
// renormalized.
type AlgorithmWeights struct {
	Statistical        float64 `json:"statistical" yaml:"statistical" mapstructure:"statistical"`
	Threshold          float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
	MLFeatures         float64 `json:"mlFeatures" yaml:"ml_features" mapstructure:"ml_features"`
	RerankerConfidence float64 `json:"rerankerConfidence" yaml:"reranker_confidence" mapstructure:"reranker_confidence"`
}

// IDKTemplate renders one "I don't know" answer per failure mode.
type IDKTemplate struct {
	ID                 string `json:"id" yaml:"id"`
	ReasonCode         string `json:"reasonCode" yaml:"reason_code"`
	Template           string `json:"template" yaml:"template"`
	IncludeSuggestions bool   `json:"includeSuggestions" yaml:"include_suggestions"`
}

// FallbackConfig controls suggestion derivation for IDK responses.
type FallbackConfig struct {
	Enabled             bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MaxSuggestions      int     `json:"maxSuggestions" yaml:"max_suggestions" mapstructure:"max_suggestions"`
	SuggestionThreshold float64 `json:"suggestionThreshold" yaml:"suggestion_threshold" mapstructure:"suggestion_threshold"`
}

// GuardrailConfig is the per-tenant answerability policy.
type GuardrailConfig struct {
	Enabled          bool             `json:"enabled" yaml:"enabled"`
	Threshold        Threshold        `json:"threshold" yaml:"threshold"`
	AlgorithmWeights AlgorithmWeights `json:"algorithmWeights" yaml:"algorithm_weights"`
	IDKTemplates     []IDKTemplate    `json:"idkTemplates" yaml:"idk_templates"`
	Fallback         FallbackConfig   `json:"fallbackConfig" yaml:"fallback_config"`
	BypassEnabled    bool             `json:"bypassEnabled" yaml:"bypass_enabled"`
}

// RerankerConfig is the per-tenant reranker override.
type RerankerConfig struct {
	Model          string  `json:"model" yaml:"model"`
	TopK           int     `json:"topK" yaml:"top_k"`
	TopNIn         int     `json:"topNIn" yaml:"top_n_in"`
	BatchSize      int     `json:"batchSize" yaml:"batch_size"`
	TimeoutMs      int     `json:"timeoutMs" yaml:"timeout_ms"`
	ScoreThreshold float64 `json:"scoreThreshold" yaml:"score_threshold"`
}

// Config is the per-tenant retrieval policy. Loaded lazily on first
// reference (defaults applied when absent), mutated only through
// Store.Update, cached with TTL.
type Config struct {
	TenantID             string          `json:"tenantId" yaml:"tenant_id"`
	KeywordSearchEnabled bool            `json:"keywordSearchEnabled" yaml:"keyword_search_enabled"`
	VectorWeight         float64         `json:"vectorWeight" yaml:"vector_weight"`
	KeywordWeight        float64         `json:"keywordWeight" yaml:"keyword_weight"`
	RRFK                 int             `json:"rrfK" yaml:"rrf_k"`
	RerankerEnabled      bool            `json:"rerankerEnabled" yaml:"reranker_enabled"`
	Reranker             *RerankerConfig `json:"rerankerConfig,omitempty" yaml:"reranker_config"`
	Guardrail            GuardrailConfig `json:"guardrail" yaml:"guardrail"`
}

// Read-only threshold presets.
var (
	presetStrict = Threshold{
		Type:           ThresholdStrict,
		MinConfidence:  0.75,
		MinTopScore:    0.7,
		MinMeanScore:   0.5,
		MaxStdDev:      0.25,
		MinResultCount: 3,
	}
	presetStandard = Threshold{
		Type:           ThresholdStandard,
		MinConfidence:  0.6,
		MinTopScore:    0.5,
		MinMeanScore:   0.3,
		MaxStdDev:      0.35,
		MinResultCount: 1,
	}
	presetPermissive = Threshold{
		Type:           ThresholdPermissive,
		MinConfidence:  0.4,
		MinTopScore:    0.3,
		MinMeanScore:   0.15,
		MaxStdDev:      0.5,
		MinResultCount: 1,
	}
)

// Preset returns a copy of the named threshold preset.
func Preset(t ThresholdType) (Threshold, bool) {
	switch t {
	case ThresholdStrict:
		return presetStrict, true
	case ThresholdStandard:
		return presetStandard, true
	case ThresholdPermissive:
		return presetPermissive, true
	}
	return Threshold{}, false
}

// DefaultAlgorithmWeights per the recognized configuration.
func DefaultAlgorithmWeights() AlgorithmWeights {
	return AlgorithmWeights{
		Statistical:        0.4,
		Threshold:          0.3,
		MLFeatures:         0.2,
		RerankerConfidence: 0.1,
	}
}

// DefaultIDKTemplates cover the built-in failure modes.
func DefaultIDKTemplates() []IDKTemplate {
	return []IDKTemplate{
		{
			ID:                 "idk-no-docs",
			ReasonCode:         ReasonNoRelevantDocs,
			Template:           "I couldn't find any documents relevant to your question.",
			IncludeSuggestions: false,
		},
		{
			ID:                 "idk-low-confidence",
			ReasonCode:         ReasonLowConfidence,
			Template:           "I don't have enough confidence in the retrieved material to answer this reliably.",
			IncludeSuggestions: true,
		},
		{
			ID:                 "idk-ambiguous",
			ReasonCode:         ReasonAmbiguousQuery,
			Template:           "The retrieved material points in several directions. Could you narrow the question?",
			IncludeSuggestions: true,
		},
	}
}

// Default returns the default config with the tenant id spliced in.
func Default(tenantID string) Config {
	return Config{
		TenantID:             tenantID,
		KeywordSearchEnabled: true,
		VectorWeight:         0.7,
		KeywordWeight:        0.3,
		RRFK:                 60,
		RerankerEnabled:      false,
		Guardrail: GuardrailConfig{
			Enabled:          true,
			Threshold:        presetStandard,
			AlgorithmWeights: DefaultAlgorithmWeights(),
			IDKTemplates:     DefaultIDKTemplates(),
			Fallback: FallbackConfig{
				Enabled:             true,
				MaxSuggestions:      3,
				SuggestionThreshold: 0.4,
			},
			BypassEnabled: false,
		},
	}
}

// Validate checks the structural invariants. Violations reject the whole
// config; partial updates are never applied.
func Validate(c Config) error {
	if c.TenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrConfigInvalid)
	}
	sum := c.VectorWeight + c.KeywordWeight
	if sum < 0.8 || sum > 1.2 {
		return fmt.Errorf("%w: vectorWeight+keywordWeight %.3f outside [0.8, 1.2]", ErrConfigInvalid, sum)
	}
	if c.VectorWeight < 0 || c.VectorWeight > 1 || c.KeywordWeight < 0 || c.KeywordWeight > 1 {
		return fmt.Errorf("%w: search weights must lie in [0,1]", ErrConfigInvalid)
	}
	if c.RRFK < 1 {
		return fmt.Errorf("%w: rrfK %d < 1", ErrConfigInvalid, c.RRFK)
	}
	t := c.Guardrail.Threshold
	for name, v := range map[string]float64{
		"minConfidence": t.MinConfidence,
		"minTopScore":   t.MinTopScore,
		"minMeanScore":  t.MinMeanScore,
		"maxStdDev":     t.MaxStdDev,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: threshold %s %.3f outside [0,1]", ErrConfigInvalid, name, v)
		}
	}
	if t.MinResultCount < 0 || t.MinResultCount > 100 {
		return fmt.Errorf("%w: minResultCount %d outside [0,100]", ErrConfigInvalid, t.MinResultCount)
	}
	for i, tpl := range c.Guardrail.IDKTemplates {
		if tpl.ID == "" || tpl.ReasonCode == "" || tpl.Template == "" {
			return fmt.Errorf("%w: idkTemplates[%d] missing id, reasonCode, or template", ErrConfigInvalid, i)
		}
	}
	return nil
}

// clone returns a value copy safe to hand to readers: slices and pointers
// are duplicated so cached snapshots stay immutable.
func clone(c Config) Config {
	out := c
	if c.Reranker != nil {
		r := *c.Reranker
		out.Reranker = &r
	}
	if c.Guardrail.IDKTemplates != nil {
		out.Guardrail.IDKTemplates = append([]IDKTemplate(nil), c.Guardrail.IDKTemplates...)
	}
	return out
}

// entry is one cached snapshot.
type entry struct {
	cfg     Config
	expires time.Time
}
