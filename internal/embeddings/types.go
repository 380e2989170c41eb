package embeddings

import "time"

// Config controls the embedding service behavior
type Config struct {
	// BaseURL points to the service providing POST /embeddings
	BaseURL string `mapstructure:"base_url"`
	// DefaultModel is the default embedding model
	DefaultModel string `mapstructure:"default_model"`
	// Dim validates returned vectors. Zero disables the check.
	Dim int `mapstructure:"dim"`
	// Timeout for outbound HTTP calls
	Timeout time.Duration `mapstructure:"timeout"`
	// EnableRedis enables the Redis-backed second cache layer
	EnableRedis bool `mapstructure:"enable_redis"`
	// RedisAddr in host:port form when EnableRedis is true
	RedisAddr string `mapstructure:"redis_addr"`
	// CacheTTL sets TTL for embedding cache entries
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// MaxLRU controls in-process LRU size
	MaxLRU int `mapstructure:"max_lru"`
}
