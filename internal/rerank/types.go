package rerank

import (
	"context"
	"time"
)

// Token caps applied before documents reach the cross-encoder. The model
// window is shared between query and document; the char-to-token ratio is
// the usual rough 4:1.
const (
	defaultQueryTokenCap = 300
	defaultDocTokenCap   = 512
	defaultModelMax      = 512
	charsPerToken        = 4
)

// Config controls reranking behavior.
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"` // "http" or "local"
	// BaseURL of the HTTP cross-encoder service
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	// TopK results kept after reranking
	TopK int `mapstructure:"top_k"`
	// TopNIn caps how many fused results are fed in
	TopNIn int `mapstructure:"top_n_in"`
	// BatchSize per scorer call; batches run sequentially
	BatchSize int `mapstructure:"batch_size"`
	// Timeout bounds the whole rerank call, not one batch
	Timeout time.Duration `mapstructure:"timeout"`
	// ScoreThreshold drops reranked results below it (0 keeps all)
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	// RatePerSecond paces batches against remote service limits; 0 = unpaced
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

func (c Config) withDefaults() Config {
	if c.TopK == 0 {
		c.TopK = 8
	}
	if c.TopNIn == 0 {
		c.TopNIn = 20
	}
	if c.BatchSize == 0 {
		c.BatchSize = 16
	}
	if c.Timeout == 0 {
		c.Timeout = 500 * time.Millisecond
	}
	return c
}

// Document is one (id, content) pair presented to the cross-encoder,
// carrying its pre-rerank score.
type Document struct {
	ID            string                 `json:"id"`
	Content       string                 `json:"content"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	OriginalScore float64                `json:"-"`
}

// Scorer scores query/document pairs jointly. Implementations must return
// one score per input document, normalized into [0,1].
type Scorer interface {
	Score(ctx context.Context, query string, docs []Document) ([]float64, error)
	Name() string
}

// capTokens truncates text to approximately maxTokens.
func capTokens(text string, maxTokens int) string {
	maxChars := maxTokens * charsPerToken
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}
