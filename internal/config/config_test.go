package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "document_chunks", cfg.Collection)
	assert.Equal(t, "localhost", cfg.VectorDB.Host)
	assert.Equal(t, 6333, cfg.VectorDB.Port)
	assert.Equal(t, 384, cfg.VectorDB.ExpectedDim)
	assert.Equal(t, 10, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, 20, cfg.Retrieval.CandidateLimit)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.VectorSearchTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Retrieval.GuardrailTimeout)
	assert.Equal(t, 0.7, cfg.Retrieval.LanguageMismatchFactor)
	assert.False(t, cfg.Rerank.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Rerank.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Tenant.CacheTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	yaml := `
collection: acme_chunks
vectordb:
  host: qdrant.internal
  port: 7333
rerank:
  enabled: true
  backend: local
retrieval:
  default_limit: 5
`
	path := filepath.Join(t.TempDir(), "ragcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "acme_chunks", cfg.Collection)
	assert.Equal(t, "qdrant.internal", cfg.VectorDB.Host)
	assert.Equal(t, 7333, cfg.VectorDB.Port)
	assert.True(t, cfg.Rerank.Enabled)
	assert.Equal(t, "local", cfg.Rerank.Backend)
	assert.Equal(t, 5, cfg.Retrieval.DefaultLimit)

	// Untouched keys keep their defaults.
	assert.Equal(t, 384, cfg.VectorDB.ExpectedDim)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("RAGCORE_VECTORDB_HOST", "env-host")
	t.Setenv("RAGCORE_COLLECTION", "env_chunks")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-host", cfg.VectorDB.Host)
	assert.Equal(t, "env_chunks", cfg.Collection)
}
