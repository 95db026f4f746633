package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mlg-clan/platform-core/pkg/observability"
)

// RedisConfig holds connection settings for the shared store
type RedisConfig struct {
	Address      string        `mapstructure:"address" json:"address"`
	Password     string        `mapstructure:"password" json:"password"`
	DB           int           `mapstructure:"db" json:"db"`
	PoolSize     int           `mapstructure:"pool_size" json:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" json:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	ScanCount    int64         `mapstructure:"scan_count" json:"scan_count"`
}

// DefaultRedisConfig returns the default connection settings
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		PoolSize:     50,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		ScanCount:    100,
	}
}

// RedisStore implements Store over a Redis-compatible engine
type RedisStore struct {
	client    *redis.Client
	scanCount int64
	logger    observability.Logger
}

// NewRedisStore creates a Redis-backed store and verifies connectivity
func NewRedisStore(cfg RedisConfig, logger observability.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 50
	}
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = 100
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to store at %s: %w", cfg.Address, err)
	}

	return &RedisStore{
		client:    client,
		scanCount: cfg.ScanCount,
		logger:    logger,
	}, nil
}

// Get retrieves a value
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return data, nil
}

// Set stores a value with a TTL
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// MGet retrieves multiple keys in a single roundtrip
func (s *RedisStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result := make([][]byte, len(keys))
	for i, v := range values {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok {
			result[i] = []byte(str)
		}
	}
	return result, nil
}

// Del deletes keys from the store
func (s *RedisStore) Del(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// Scan iterates keys matching pattern with cursor-based SCAN. It never
// issues a blocking full-keyspace enumeration.
func (s *RedisStore) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := s.client.Scan(ctx, 0, pattern, s.scanCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// TTL returns the remaining lifetime of a key
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// go-redis reports -2 for missing keys and -1 for keys without expiry
	switch {
	case d == -2:
		return 0, ErrNotFound
	case d < 0:
		return 0, nil
	default:
		return d, nil
	}
}

// Info returns selected fields of the server INFO output
func (s *RedisStore) Info(ctx context.Context) (map[string]string, error) {
	raw, err := s.client.Info(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	info := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			info[k] = v
		}
	}
	return info, nil
}

// Ping verifies connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
