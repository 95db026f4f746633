package store

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mlg-clan/platform-core/pkg/observability"
)

// TieredConfig tunes the in-process L1 tier and the compression codec
type TieredConfig struct {
	// L1Size is the maximum number of L1 entries
	L1Size int `mapstructure:"l1_size" json:"l1_size"`

	// L1MaxTTL caps how long an entry may live in L1 regardless of its
	// remote TTL
	L1MaxTTL time.Duration `mapstructure:"l1_max_ttl" json:"l1_max_ttl"`

	// L1MaxEntryBytes is the largest value admitted to L1
	L1MaxEntryBytes int `mapstructure:"l1_max_entry_bytes" json:"l1_max_entry_bytes"`

	// MaxValueBytes is the largest value accepted for storage at all
	MaxValueBytes int `mapstructure:"max_value_bytes" json:"max_value_bytes"`

	// CompressionThreshold is the minimum value size before compression
	CompressionThreshold int `mapstructure:"compression_threshold" json:"compression_threshold"`

	// CompressionLevel is the gzip level for the value codec
	CompressionLevel int `mapstructure:"compression_level" json:"compression_level"`
}

// DefaultTieredConfig returns the default tiering settings
func DefaultTieredConfig() TieredConfig {
	return TieredConfig{
		L1Size:               1000,
		L1MaxTTL:             60 * time.Second,
		L1MaxEntryBytes:      64 * 1024,
		MaxValueBytes:        1024 * 1024,
		CompressionThreshold: DefaultCompressionThreshold,
	}
}

type l1Entry struct {
	envelope  []byte
	expiresAt time.Time
}

// TieredStore layers an in-process LRU over a remote Store. Values are
// wrapped in compression envelopes before they reach either tier; compressed
// values never enter L1. L1 entries carry their own expiry, clamped to
// min(remote TTL, L1MaxTTL), and are lazily expired on read.
type TieredStore struct {
	remote Store
	l1     *expirable.LRU[string, l1Entry]
	codec  *Codec
	cfg    TieredConfig

	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewTieredStore creates a tiered store over remote
func NewTieredStore(remote Store, cfg TieredConfig, logger observability.Logger, metrics observability.MetricsClient) *TieredStore {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	if cfg.L1Size <= 0 {
		cfg.L1Size = 1000
	}
	if cfg.L1MaxTTL <= 0 {
		cfg.L1MaxTTL = 60 * time.Second
	}
	if cfg.L1MaxEntryBytes <= 0 {
		cfg.L1MaxEntryBytes = 64 * 1024
	}
	if cfg.MaxValueBytes <= 0 {
		cfg.MaxValueBytes = 1024 * 1024
	}

	return &TieredStore{
		remote:  remote,
		l1:      expirable.NewLRU[string, l1Entry](cfg.L1Size, nil, cfg.L1MaxTTL),
		codec:   NewCodec(cfg.CompressionThreshold, cfg.CompressionLevel),
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Get checks L1 first and falls through to the remote store, repopulating L1
// on a remote hit
func (s *TieredStore) Get(ctx context.Context, key string) ([]byte, error) {
	if entry, ok := s.l1.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			data, _, err := s.codec.Decode(entry.envelope)
			if err == nil {
				s.metrics.IncrementCounter("store_l1_hits", 1)
				return data, nil
			}
			// Unreadable L1 entry: drop it and fall through
			s.l1.Remove(key)
		} else {
			s.l1.Remove(key)
		}
	}

	envelope, err := s.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	data, compressed, err := s.codec.Decode(envelope)
	if err != nil {
		// A corrupt entry is evicted and reported as a decode failure so
		// the caller can treat it as a miss
		_, _ = s.remote.Del(ctx, key)
		s.metrics.IncrementCounter("store_decode_failures", 1)
		return nil, err
	}

	if !compressed && len(envelope) <= s.cfg.L1MaxEntryBytes {
		s.l1.Add(key, l1Entry{envelope: envelope, expiresAt: s.l1Expiry(ctx, key)})
	}

	s.metrics.IncrementCounter("store_remote_hits", 1)
	return data, nil
}

// l1Expiry computes min(remote TTL, L1MaxTTL) for a freshly fetched key
func (s *TieredStore) l1Expiry(ctx context.Context, key string) time.Time {
	ttl := s.cfg.L1MaxTTL
	if remote, err := s.remote.TTL(ctx, key); err == nil && remote > 0 && remote < ttl {
		ttl = remote
	}
	return time.Now().Add(ttl)
}

// Set writes to the remote store and mirrors small uncompressed values into L1
func (s *TieredStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > s.cfg.MaxValueBytes {
		return ErrValueTooLarge
	}

	envelope, compressed, err := s.codec.Encode(value)
	if err != nil {
		return err
	}
	if compressed {
		saved := len(value) - len(envelope)
		s.metrics.IncrementCounter("store_compression_saves", 1)
		s.metrics.RecordGauge("store_compression_saved_bytes", float64(saved), nil)
	}

	if err := s.remote.Set(ctx, key, envelope, ttl); err != nil {
		return err
	}

	if !compressed && len(envelope) <= s.cfg.L1MaxEntryBytes {
		l1TTL := s.cfg.L1MaxTTL
		if ttl > 0 && ttl < l1TTL {
			l1TTL = ttl
		}
		s.l1.Add(key, l1Entry{envelope: envelope, expiresAt: time.Now().Add(l1TTL)})
	} else {
		s.l1.Remove(key)
	}
	return nil
}

// MGet serves what it can from L1 and fetches the rest in one remote
// roundtrip, preserving input order
func (s *TieredStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	result := make([][]byte, len(keys))
	missing := make([]string, 0, len(keys))
	missingIdx := make([]int, 0, len(keys))

	now := time.Now()
	for i, key := range keys {
		if entry, ok := s.l1.Get(key); ok && now.Before(entry.expiresAt) {
			if data, _, err := s.codec.Decode(entry.envelope); err == nil {
				result[i] = data
				s.metrics.IncrementCounter("store_l1_hits", 1)
				continue
			}
			s.l1.Remove(key)
		}
		missing = append(missing, key)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return result, nil
	}

	envelopes, err := s.remote.MGet(ctx, missing)
	if err != nil {
		return nil, err
	}

	for j, envelope := range envelopes {
		if envelope == nil {
			continue
		}
		data, compressed, err := s.codec.Decode(envelope)
		if err != nil {
			_, _ = s.remote.Del(ctx, missing[j])
			continue
		}
		result[missingIdx[j]] = data
		if !compressed && len(envelope) <= s.cfg.L1MaxEntryBytes {
			s.l1.Add(missing[j], l1Entry{envelope: envelope, expiresAt: now.Add(s.cfg.L1MaxTTL)})
		}
		s.metrics.IncrementCounter("store_remote_hits", 1)
	}
	return result, nil
}

// Del removes keys from both tiers
func (s *TieredStore) Del(ctx context.Context, keys ...string) (int, error) {
	for _, key := range keys {
		s.l1.Remove(key)
	}
	return s.remote.Del(ctx, keys...)
}

// Scan passes through to the remote store; L1 is not enumerable
func (s *TieredStore) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	return s.remote.Scan(ctx, pattern, func(key string) error {
		return fn(key)
	})
}

// TTL returns the remote TTL for a key
func (s *TieredStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.remote.TTL(ctx, key)
}

// Info merges remote info with L1 statistics
func (s *TieredStore) Info(ctx context.Context) (map[string]string, error) {
	info, err := s.remote.Info(ctx)
	if err != nil {
		return nil, err
	}
	info["l1_entries"] = strconv.Itoa(s.l1.Len())
	return info, nil
}

// Ping verifies remote connectivity
func (s *TieredStore) Ping(ctx context.Context) error {
	return s.remote.Ping(ctx)
}

// Close purges L1 and closes the remote store
func (s *TieredStore) Close() error {
	s.l1.Purge()
	return s.remote.Close()
}
