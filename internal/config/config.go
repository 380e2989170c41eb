// Package config loads the process configuration from YAML with RAGCORE_*
// environment overrides and code defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lumenworks/ragcore/internal/embeddings"
	"github.com/lumenworks/ragcore/internal/llm"
	"github.com/lumenworks/ragcore/internal/rerank"
	"github.com/lumenworks/ragcore/internal/retrieval"
	"github.com/lumenworks/ragcore/internal/search"
	"github.com/lumenworks/ragcore/internal/synthesis"
	"github.com/lumenworks/ragcore/internal/tracing"
	"github.com/lumenworks/ragcore/internal/vectordb"
)

// Config aggregates every component's settings.
type Config struct {
	Collection string `mapstructure:"collection"`

	VectorDB   vectordb.Config      `mapstructure:"vectordb"`
	Embeddings embeddings.Config    `mapstructure:"embeddings"`
	Keyword    search.KeywordConfig `mapstructure:"keyword"`
	Rerank     rerank.Config        `mapstructure:"rerank"`
	Retrieval  retrieval.Config     `mapstructure:"retrieval"`
	LLM        llm.Config           `mapstructure:"llm"`
	Synthesis  synthesis.Config     `mapstructure:"synthesis"`
	Tracing    tracing.Config       `mapstructure:"tracing"`

	Tenant struct {
		CacheTTL    time.Duration `mapstructure:"cache_ttl"`
		RedisAddr   string        `mapstructure:"redis_addr"`
		PresetsPath string        `mapstructure:"presets_path"`
	} `mapstructure:"tenant"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

// Load reads CONFIG_PATH (default ./config/ragcore.yaml) when present and
// applies environment overrides of the form RAGCORE_VECTORDB_HOST.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RAGCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/ragcore.yaml"
	}
	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env carry the config.
		if _, ok := err.(*os.PathError); !ok && !os.IsNotExist(err) {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("collection", "document_chunks")

	v.SetDefault("vectordb.host", "localhost")
	v.SetDefault("vectordb.port", 6333)
	v.SetDefault("vectordb.timeout", 5*time.Second)
	v.SetDefault("vectordb.expected_dim", 384)

	v.SetDefault("embeddings.base_url", "http://localhost:8090")
	v.SetDefault("embeddings.default_model", "all-MiniLM-L6-v2")
	v.SetDefault("embeddings.dim", 384)
	v.SetDefault("embeddings.timeout", 5*time.Second)
	v.SetDefault("embeddings.cache_ttl", time.Hour)
	v.SetDefault("embeddings.max_lru", 2048)

	v.SetDefault("keyword.scroll_limit", 200)
	v.SetDefault("keyword.discover_fallback", false)

	v.SetDefault("rerank.enabled", false)
	v.SetDefault("rerank.backend", "http")
	v.SetDefault("rerank.top_k", 8)
	v.SetDefault("rerank.top_n_in", 20)
	v.SetDefault("rerank.batch_size", 16)
	v.SetDefault("rerank.timeout", 500*time.Millisecond)

	v.SetDefault("retrieval.default_limit", 10)
	v.SetDefault("retrieval.candidate_limit", 20)
	v.SetDefault("retrieval.vector_search_timeout", 2*time.Second)
	v.SetDefault("retrieval.keyword_search_timeout", 2*time.Second)
	v.SetDefault("retrieval.guardrail_timeout", 50*time.Millisecond)
	v.SetDefault("retrieval.language_mismatch_factor", 0.7)

	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("synthesis.max_context_chars", 2000)
	v.SetDefault("synthesis.max_tokens", 1024)

	v.SetDefault("tenant.cache_ttl", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "ragcore")
}
