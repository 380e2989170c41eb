package tenant

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersistence is an in-memory Persistence for store tests.
type memPersistence struct {
	mu    sync.Mutex
	data  map[string]Config
	loads int
}

func newMemPersistence() *memPersistence {
	return &memPersistence{data: make(map[string]Config)}
}

func (m *memPersistence) Load(_ context.Context, tenantID string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	cfg, ok := m.data[tenantID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *memPersistence) Save(_ context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[cfg.TenantID] = cfg
	return nil
}

func (m *memPersistence) Remove(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, tenantID)
	return nil
}

func TestGetReturnsDefaultForUnknownTenant(t *testing.T) {
	s := NewStore(time.Minute, nil, nil)
	got := s.Get(context.Background(), "t-new")
	assert.Equal(t, Default("t-new"), got)
	assert.NoError(t, Validate(got))
}

func TestUpdateGetRoundTrip(t *testing.T) {
	s := NewStore(time.Minute, nil, nil)
	cfg := Default("t1")
	cfg.VectorWeight = 0.6
	cfg.KeywordWeight = 0.4
	cfg.RRFK = 80
	cfg.RerankerEnabled = true
	cfg.Reranker = &RerankerConfig{Model: "cross-encoder-v2", TopK: 5}
	cfg.Guardrail.Threshold, _ = Preset(ThresholdStrict)

	require.NoError(t, s.Update(context.Background(), cfg))
	got := s.Get(context.Background(), "t1")
	assert.Equal(t, cfg, got)
}

func TestUpdateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty tenant id", func(c *Config) { c.TenantID = "" }},
		{"weight sum too high", func(c *Config) { c.VectorWeight, c.KeywordWeight = 0.9, 0.9 }},
		{"weight sum too low", func(c *Config) { c.VectorWeight, c.KeywordWeight = 0.3, 0.3 }},
		{"negative weight", func(c *Config) { c.VectorWeight, c.KeywordWeight = -0.1, 1.1 }},
		{"rrf k below one", func(c *Config) { c.RRFK = 0 }},
		{"threshold out of range", func(c *Config) { c.Guardrail.Threshold.MinConfidence = 1.5 }},
		{"min result count out of range", func(c *Config) { c.Guardrail.Threshold.MinResultCount = 101 }},
		{"incomplete idk template", func(c *Config) {
			c.Guardrail.IDKTemplates = []IDKTemplate{{ID: "x", ReasonCode: ""}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(time.Minute, nil, nil)
			cfg := Default("t1")
			tt.mutate(&cfg)
			err := s.Update(context.Background(), cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfigInvalid)

			// Rejected updates leave the stored config untouched.
			assert.Equal(t, Default("t1"), s.Get(context.Background(), "t1"))
		})
	}
}

func TestWeightSumBoundsAccepted(t *testing.T) {
	for _, sum := range []struct{ vw, kw float64 }{{0.5, 0.3}, {0.7, 0.3}, {0.8, 0.4}} {
		s := NewStore(time.Minute, nil, nil)
		cfg := Default("t1")
		cfg.VectorWeight, cfg.KeywordWeight = sum.vw, sum.kw
		assert.NoError(t, s.Update(context.Background(), cfg))
	}
}

func TestResetRestoresDefault(t *testing.T) {
	persist := newMemPersistence()
	s := NewStore(time.Minute, persist, nil)
	cfg := Default("t1")
	cfg.VectorWeight, cfg.KeywordWeight = 0.5, 0.5
	require.NoError(t, s.Update(context.Background(), cfg))

	require.NoError(t, s.Reset(context.Background(), "t1"))
	got := s.Get(context.Background(), "t1")
	assert.Equal(t, Default("t1"), got)
	assert.Empty(t, persist.data)
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore(time.Minute, nil, nil)
	first := s.Get(context.Background(), "t1")
	first.VectorWeight = 0.99
	first.Guardrail.IDKTemplates[0].Template = "tampered"
	if first.Reranker != nil {
		first.Reranker.TopK = 99
	}

	second := s.Get(context.Background(), "t1")
	assert.Equal(t, Default("t1"), second)
}

func TestSubscribeNotifiesOnUpdateAndReset(t *testing.T) {
	s := NewStore(time.Minute, nil, nil)
	ch := s.Subscribe()

	require.NoError(t, s.Update(context.Background(), Default("t1")))
	select {
	case id := <-ch:
		assert.Equal(t, "t1", id)
	case <-time.After(time.Second):
		t.Fatal("no notification after update")
	}

	require.NoError(t, s.Reset(context.Background(), "t2"))
	select {
	case id := <-ch:
		assert.Equal(t, "t2", id)
	case <-time.After(time.Second):
		t.Fatal("no notification after reset")
	}
}

func TestTTLExpiryReloadsFromPersistence(t *testing.T) {
	persist := newMemPersistence()
	persist.data["t1"] = Default("t1")

	s := NewStore(time.Millisecond, persist, nil)
	s.Get(context.Background(), "t1")
	first := persist.loads

	time.Sleep(5 * time.Millisecond)
	s.Get(context.Background(), "t1")
	assert.Greater(t, persist.loads, first)
}

func TestUpdateSurvivesTTLExpiryWithoutPersistence(t *testing.T) {
	s := NewStore(time.Millisecond, nil, nil)
	cfg := Default("t1")
	cfg.VectorWeight = 0.5
	cfg.KeywordWeight = 0.5
	require.NoError(t, s.Update(context.Background(), cfg))

	// With no backing source the map is authoritative; the TTL must not
	// revert a committed update to defaults.
	time.Sleep(5 * time.Millisecond)
	got := s.Get(context.Background(), "t1")
	assert.Equal(t, 0.5, got.VectorWeight)
	assert.Equal(t, cfg, got)
}

func TestGetRejectsInvalidPersistedConfig(t *testing.T) {
	persist := newMemPersistence()
	bad := Default("t1")
	bad.VectorWeight, bad.KeywordWeight = 0.9, 0.9
	persist.data["t1"] = bad

	s := NewStore(time.Minute, persist, nil)
	got := s.Get(context.Background(), "t1")
	assert.Equal(t, Default("t1"), got)
	assert.NoError(t, Validate(got))
}

func TestGetSurvivesPersistenceFailure(t *testing.T) {
	s := NewStore(time.Minute, failingPersistence{}, nil)
	got := s.Get(context.Background(), "t1")
	assert.Equal(t, Default("t1"), got)
}

type failingPersistence struct{}

func (failingPersistence) Load(context.Context, string) (*Config, error) {
	return nil, assert.AnError
}
func (failingPersistence) Save(context.Context, Config) error { return assert.AnError }
func (failingPersistence) Remove(context.Context, string) error { return assert.AnError }

func TestLoadPresetFile(t *testing.T) {
	yaml := `
tenants:
  - tenant_id: t1
    keyword_search_enabled: true
    vector_weight: 0.6
    keyword_weight: 0.4
    rrf_k: 60
    guardrail:
      enabled: true
      threshold:
        type: standard
        min_confidence: 0.6
        min_top_score: 0.5
        min_mean_score: 0.3
        max_std_dev: 0.35
        min_result_count: 1
  - tenant_id: bad
    vector_weight: 0.1
    keyword_weight: 0.1
    rrf_k: 60
`
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	s := NewStore(time.Minute, nil, nil)
	require.NoError(t, s.LoadPresetFile(context.Background(), path))

	got := s.Get(context.Background(), "t1")
	assert.Equal(t, 0.6, got.VectorWeight)
	assert.Equal(t, 0.4, got.KeywordWeight)

	// The invalid entry is skipped; "bad" keeps the default.
	assert.Equal(t, Default("bad"), s.Get(context.Background(), "bad"))
}

func TestPresets(t *testing.T) {
	strict, ok := Preset(ThresholdStrict)
	require.True(t, ok)
	assert.Equal(t, 0.75, strict.MinConfidence)
	assert.Equal(t, 3, strict.MinResultCount)

	standard, ok := Preset(ThresholdStandard)
	require.True(t, ok)
	assert.Equal(t, 0.6, standard.MinConfidence)

	permissive, ok := Preset(ThresholdPermissive)
	require.True(t, ok)
	assert.Equal(t, 0.4, permissive.MinConfidence)

	_, ok = Preset(ThresholdCustom)
	assert.False(t, ok)
}

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Validate(Default("any")))
}
