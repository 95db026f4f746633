// Package cache implements the namespaced cache manager: key derivation,
// per-namespace TTL defaults, pattern invalidation, and stampede-protected
// loads over the shared KV store. Reads fail open (a store outage is a miss)
// and writes fail quiet.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mlg-clan/platform-core/pkg/observability"
	"github.com/mlg-clan/platform-core/pkg/store"
)

// Namespace tags for the API families sharing the cache
const (
	NamespaceVoting      = "api:voting"
	NamespaceLeaderboard = "api:leaderboard"
	NamespaceClan        = "api:clan"
	NamespaceUser        = "api:user"
	NamespaceContent     = "api:content"
	NamespaceTournament  = "api:tournament"
	NamespaceSession     = "session"
	NamespaceGeneral     = "general"
	NamespaceStatic      = "static"
)

// DefaultNamespaceTTLs returns the per-namespace TTL table. Voting results
// have the tightest budget: burn-to-vote totals go stale in seconds.
func DefaultNamespaceTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		NamespaceVoting:      5 * time.Second,
		NamespaceLeaderboard: 30 * time.Second,
		NamespaceClan:        120 * time.Second,
		NamespaceUser:        300 * time.Second,
		NamespaceContent:     60 * time.Second,
		NamespaceTournament:  60 * time.Second,
		NamespaceSession:     300 * time.Second,
		NamespaceGeneral:     300 * time.Second,
		NamespaceStatic:      3600 * time.Second,
	}
}

// Config holds the cache manager configuration
type Config struct {
	// AppPrefix is the application tag leading every key
	AppPrefix string `mapstructure:"app_prefix" json:"app_prefix"`

	// EnvPrefix optionally scopes keys by environment (e.g. "staging")
	EnvPrefix string `mapstructure:"env_prefix" json:"env_prefix"`

	// DefaultTTL applies to namespaces absent from the TTL table
	DefaultTTL time.Duration `mapstructure:"default_ttl" json:"default_ttl"`

	// Namespaces overrides the default per-namespace TTL table
	Namespaces map[string]time.Duration `mapstructure:"namespaces" json:"namespaces"`

	// InvalidationBatchSize bounds each delete batch during pattern
	// invalidation
	InvalidationBatchSize int `mapstructure:"invalidation_batch_size" json:"invalidation_batch_size"`
}

// DefaultConfig returns the default manager configuration
func DefaultConfig() Config {
	return Config{
		AppPrefix:             "mlg",
		DefaultTTL:            300 * time.Second,
		Namespaces:            DefaultNamespaceTTLs(),
		InvalidationBatchSize: 100,
	}
}

// Manager routes namespaced cache operations through the shared store
type Manager struct {
	store   store.Store
	cfg     Config
	prefix  string
	metrics Metrics
	group   singleflight.Group

	logger        observability.Logger
	metricsClient observability.MetricsClient
}

// NewManager creates a cache manager over s
func NewManager(s store.Store, cfg Config, logger observability.Logger, metricsClient observability.MetricsClient) *Manager {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metricsClient == nil {
		metricsClient = observability.NewNoOpMetricsClient()
	}
	if cfg.AppPrefix == "" {
		cfg.AppPrefix = "mlg"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 300 * time.Second
	}
	if cfg.Namespaces == nil {
		cfg.Namespaces = DefaultNamespaceTTLs()
	}
	if cfg.InvalidationBatchSize <= 0 {
		cfg.InvalidationBatchSize = 100
	}

	prefix := cfg.AppPrefix
	if cfg.EnvPrefix != "" {
		prefix = cfg.EnvPrefix + ":" + prefix
	}

	return &Manager{
		store:         s,
		cfg:           cfg,
		prefix:        prefix,
		logger:        logger,
		metricsClient: metricsClient,
	}
}

// Key derives the full store key for a namespace and logical key:
// {envPrefix?}:{appPrefix}:{namespace}:{tail}. Tails over 100 chars are
// hashed; derivation is deterministic for equal inputs.
func (m *Manager) Key(namespace, key string) string {
	return m.prefix + ":" + namespace + ":" + boundTail(key)
}

// TTLFor resolves the TTL for a namespace: explicit > namespace default >
// global default
func (m *Manager) TTLFor(namespace string, explicit time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	if ttl, ok := m.cfg.Namespaces[namespace]; ok {
		return ttl
	}
	return m.cfg.DefaultTTL
}

// Get retrieves a cached value. A store outage or decode failure is reported
// as a miss: the cache layer never fails a read.
func (m *Manager) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	start := time.Now()
	defer func() { m.metrics.recordDuration(time.Since(start)) }()

	value, err := m.store.Get(ctx, m.Key(namespace, key))
	if err != nil {
		m.metrics.misses.Add(1)
		if !errors.Is(err, store.ErrNotFound) {
			m.metrics.errors.Add(1)
			m.logger.Debug("cache read failed open", map[string]interface{}{
				"namespace": namespace,
				"error":     err.Error(),
			})
		}
		m.metricsClient.RecordCacheOperation("get", false, time.Since(start).Seconds())
		return nil, false
	}

	m.metrics.hits.Add(1)
	m.metricsClient.RecordCacheOperation("get", true, time.Since(start).Seconds())
	return value, true
}

// GetJSON retrieves and unmarshals a cached value
func (m *Manager) GetJSON(ctx context.Context, namespace, key string, out interface{}) bool {
	data, ok := m.Get(ctx, namespace, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		m.metrics.errors.Add(1)
		return false
	}
	return true
}

// Set stores a value under a namespace. A zero TTL applies the namespace
// default. Store failures are logged and dropped.
func (m *Manager) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer func() { m.metrics.recordDuration(time.Since(start)) }()

	err := m.store.Set(ctx, m.Key(namespace, key), value, m.TTLFor(namespace, ttl))
	if err != nil {
		m.metrics.errors.Add(1)
		m.metricsClient.RecordCacheOperation("set", false, time.Since(start).Seconds())
		m.logger.Warn("cache write dropped", map[string]interface{}{
			"namespace": namespace,
			"error":     err.Error(),
		})
		return err
	}

	m.metrics.sets.Add(1)
	m.metricsClient.RecordCacheOperation("set", true, time.Since(start).Seconds())
	return nil
}

// SetJSON marshals and stores a value
func (m *Manager) SetJSON(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		m.metrics.errors.Add(1)
		return fmt.Errorf("%w: %v", store.ErrSerialization, err)
	}
	return m.Set(ctx, namespace, key, data, ttl)
}

// GetMultiple retrieves several keys from one namespace, positionally. Absent
// and failed entries are nil.
func (m *Manager) GetMultiple(ctx context.Context, namespace string, keys []string) [][]byte {
	if len(keys) == 0 {
		return nil
	}

	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = m.Key(namespace, k)
	}

	values, err := m.store.MGet(ctx, fullKeys)
	if err != nil {
		m.metrics.errors.Add(1)
		m.metrics.misses.Add(int64(len(keys)))
		return make([][]byte, len(keys))
	}

	for _, v := range values {
		if v != nil {
			m.metrics.hits.Add(1)
		} else {
			m.metrics.misses.Add(1)
		}
	}
	return values
}

// Delete removes keys from a namespace and returns the number deleted
func (m *Manager) Delete(ctx context.Context, namespace string, keys ...string) int {
	if len(keys) == 0 {
		return 0
	}

	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = m.Key(namespace, k)
	}

	n, err := m.store.Del(ctx, fullKeys...)
	if err != nil {
		m.metrics.errors.Add(1)
		m.logger.Warn("cache delete failed", map[string]interface{}{
			"namespace": namespace,
			"error":     err.Error(),
		})
		return 0
	}
	m.metrics.deletes.Add(int64(n))
	return n
}

// InvalidatePattern deletes every key matching pattern inside a namespace.
// The scan is scoped to the namespace prefix and deletions run in bounded
// batches so a broad pattern cannot monopolize the store.
func (m *Manager) InvalidatePattern(ctx context.Context, namespace, pattern string) (int, error) {
	fullPattern := m.prefix + ":" + namespace + ":" + pattern

	deleted := 0
	batch := make([]string, 0, m.cfg.InvalidationBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := m.store.Del(ctx, batch...)
		deleted += n
		batch = batch[:0]
		return err
	}

	err := m.store.Scan(ctx, fullPattern, func(key string) error {
		batch = append(batch, key)
		if len(batch) >= m.cfg.InvalidationBatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		m.metrics.errors.Add(1)
		return deleted, err
	}

	m.metrics.deletes.Add(int64(deleted))
	return deleted, nil
}

// GetOrSet returns the cached value for key, invoking loader on a miss.
// Concurrent misses for the same key share a single loader call.
func (m *Manager) GetOrSet(ctx context.Context, namespace, key string, ttl time.Duration, loader func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok := m.Get(ctx, namespace, key); ok {
		return value, nil
	}

	fullKey := m.Key(namespace, key)
	v, err, _ := m.group.Do(fullKey, func() (interface{}, error) {
		// Another flight may have populated the cache while we queued
		if value, ok := m.Get(ctx, namespace, key); ok {
			return value, nil
		}

		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		_ = m.Set(ctx, namespace, key, value, ttl)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Ping verifies connectivity of the backing store
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Metrics returns a snapshot of the manager counters
func (m *Manager) Metrics() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// HitRate returns hits / (hits + misses)
func (m *Manager) HitRate() float64 {
	return m.Metrics().HitRate
}
