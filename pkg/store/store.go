// Package store implements the shared KV store adapter: a typed facade over
// a Redis-compatible engine with an in-process L1 LRU, transparent value
// compression, and resilience against store outages. The cache layer is
// fail-open for reads and fail-quiet for writes; a store outage degrades the
// platform to the uncached path but never fails a request.
package store

import (
	"context"
	"errors"
	"time"
)

// Store errors
var (
	// ErrNotFound is returned when a key does not exist or has expired
	ErrNotFound = errors.New("store: key not found")

	// ErrStoreUnavailable is returned when the shared store cannot be
	// reached. Callers treat it as a miss on reads and a no-op on writes.
	ErrStoreUnavailable = errors.New("store: unavailable")

	// ErrValueTooLarge is returned when a value exceeds the configured size cap
	ErrValueTooLarge = errors.New("store: value too large")

	// ErrDecompressFailed is returned when a stored envelope cannot be
	// decoded. The entry is evicted and the read treated as a miss.
	ErrDecompressFailed = errors.New("store: decompression failed")

	// ErrSerialization is returned when a value cannot be encoded for storage
	ErrSerialization = errors.New("store: serialization failed")
)

// Store defines the operations of the shared KV store. Implementations must
// be safe for concurrent use.
type Store interface {
	// Get retrieves the value for key. Expired or missing keys return
	// ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL. A zero TTL stores
	// without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// MGet retrieves multiple keys in one roundtrip. The result is
	// positional; absent keys are nil.
	MGet(ctx context.Context, keys []string) ([][]byte, error)

	// Del deletes the given keys and returns the number removed
	Del(ctx context.Context, keys ...string) (int, error)

	// Scan iterates keys matching pattern using non-blocking cursor
	// iteration, invoking fn for each. Iteration stops on the first error
	// from fn.
	Scan(ctx context.Context, pattern string, fn func(key string) error) error

	// TTL returns the remaining lifetime of key. Keys without expiry
	// return 0; missing keys return ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Info returns implementation-specific health and statistics fields
	Info(ctx context.Context) (map[string]string, error)

	// Ping verifies connectivity
	Ping(ctx context.Context) error

	// Close releases the underlying resources
	Close() error
}
