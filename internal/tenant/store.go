// Package tenant holds per-tenant retrieval policy: search weights, the
// reranker toggle, and guardrail thresholds and templates. The store is the
// single authoritative map; readers always receive immutable snapshots.
package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lumenworks/ragcore/internal/metrics"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const defaultTTL = 10 * time.Minute

// Persistence saves configs across processes. Optional; the in-process map
// alone satisfies the store contract.
type Persistence interface {
	Load(ctx context.Context, tenantID string) (*Config, error)
	Save(ctx context.Context, cfg Config) error
	Remove(ctx context.Context, tenantID string) error
}

// Store holds per-tenant configs. Writes validate, then replace the entry
// atomically and notify subscribers; readers never see torn state. With a
// persistence backend the TTL bounds entry staleness; without one the map
// itself is authoritative and entries never expire.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	subs    []chan string
	ttl     time.Duration
	persist Persistence
	log     *zap.Logger
}

// NewStore builds a store. persist may be nil.
func NewStore(ttl time.Duration, persist Persistence, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		persist: persist,
		log:     logger,
	}
}

// Get returns the tenant's config snapshot, loading lazily on first
// reference. A missing tenant yields the default config with the tenant id
// spliced in.
func (s *Store) Get(ctx context.Context, tenantID string) Config {
	s.mu.RLock()
	e, ok := s.entries[tenantID]
	s.mu.RUnlock()
	if ok && (e.expires.IsZero() || time.Now().Before(e.expires)) {
		metrics.TenantConfigCacheHits.Inc()
		return clone(e.cfg)
	}
	metrics.TenantConfigCacheMisses.Inc()

	cfg := Default(tenantID)
	if s.persist != nil {
		if loaded, err := s.persist.Load(ctx, tenantID); err != nil {
			s.log.Warn("tenant config load failed, using default",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
		} else if loaded != nil {
			if verr := Validate(*loaded); verr != nil {
				s.log.Warn("persisted tenant config invalid, using default",
					zap.String("tenant_id", tenantID),
					zap.Error(verr),
				)
			} else {
				cfg = *loaded
			}
		}
	}

	s.mu.Lock()
	s.entries[tenantID] = entry{cfg: clone(cfg), expires: s.expiry()}
	s.mu.Unlock()
	return cfg
}

// expiry returns the cache deadline for a new entry. Without a persistence
// backend the in-process map is the authoritative store and entries never
// expire; expiring them would revert committed updates to defaults.
func (s *Store) expiry() time.Time {
	if s.persist == nil {
		return time.Time{}
	}
	return time.Now().Add(s.ttl)
}

// Update validates and atomically replaces the tenant's config, persists it
// when a backend is attached, and notifies subscribers.
func (s *Store) Update(ctx context.Context, cfg Config) error {
	if err := Validate(cfg); err != nil {
		metrics.TenantConfigUpdates.WithLabelValues("rejected").Inc()
		return err
	}
	if s.persist != nil {
		if err := s.persist.Save(ctx, cfg); err != nil {
			metrics.TenantConfigUpdates.WithLabelValues("persist_error").Inc()
			return fmt.Errorf("persist tenant config: %w", err)
		}
	}
	s.mu.Lock()
	s.entries[cfg.TenantID] = entry{cfg: clone(cfg), expires: s.expiry()}
	subs := append([]chan string(nil), s.subs...)
	s.mu.Unlock()

	s.notify(subs, cfg.TenantID)
	metrics.TenantConfigUpdates.WithLabelValues("ok").Inc()
	s.log.Info("tenant config updated", zap.String("tenant_id", cfg.TenantID))
	return nil
}

// Reset drops the tenant back to defaults. A following Get returns the
// default config with the tenant id spliced in.
func (s *Store) Reset(ctx context.Context, tenantID string) error {
	if s.persist != nil {
		if err := s.persist.Remove(ctx, tenantID); err != nil {
			return fmt.Errorf("remove tenant config: %w", err)
		}
	}
	s.mu.Lock()
	delete(s.entries, tenantID)
	subs := append([]chan string(nil), s.subs...)
	s.mu.Unlock()

	s.notify(subs, tenantID)
	return nil
}

// Validate exposes config validation without mutating the store.
func (s *Store) Validate(cfg Config) error { return Validate(cfg) }

// Subscribe returns a channel receiving tenant ids whose config changed.
// Long-lived callers use it to refresh their local view. Slow subscribers
// miss notifications rather than block writers.
func (s *Store) Subscribe() <-chan string {
	ch := make(chan string, 16)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notify(subs []chan string, tenantID string) {
	for _, ch := range subs {
		select {
		case ch <- tenantID:
		default:
		}
	}
}

// LoadPresetFile seeds the store from a YAML file of tenant configs.
// Entries that fail validation are skipped and logged.
func (s *Store) LoadPresetFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tenant presets: %w", err)
	}
	var file struct {
		Tenants []Config `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse tenant presets: %w", err)
	}
	for _, cfg := range file.Tenants {
		if err := s.Update(ctx, cfg); err != nil {
			s.log.Warn("skipping invalid tenant preset",
				zap.String("tenant_id", cfg.TenantID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// RedisPersistence stores configs as JSON under ragcore:tenant:<id>.
type RedisPersistence struct {
	cli *redis.Client
}

func NewRedisPersistence(addr string) (*RedisPersistence, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisPersistence{cli: cli}, nil
}

func (r *RedisPersistence) key(tenantID string) string {
	return "ragcore:tenant:" + tenantID
}

func (r *RedisPersistence) Load(ctx context.Context, tenantID string) (*Config, error) {
	data, err := r.cli.Get(ctx, r.key(tenantID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *RedisPersistence) Save(ctx context.Context, cfg Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.cli.Set(ctx, r.key(cfg.TenantID), data, 0).Err()
}

func (r *RedisPersistence) Remove(ctx context.Context, tenantID string) error {
	return r.cli.Del(ctx, r.key(tenantID)).Err()
}
