package store

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process Store used for development, tests, and as a
// degraded-mode fallback. Expiry is lazy on read plus a periodic sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryStore creates an in-memory store with a background expiry sweep
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, e := range s.entries {
				if e.expired(now) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

// Get retrieves a value
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// Set stores a value with a TTL
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)

	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// MGet retrieves multiple keys, positionally
func (s *MemoryStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	result := make([][]byte, len(keys))
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, key := range keys {
		if e, ok := s.entries[key]; ok && !e.expired(now) {
			out := make([]byte, len(e.data))
			copy(out, e.data)
			result[i] = out
		}
	}
	return result, nil
}

// Del deletes keys
func (s *MemoryStore) Del(ctx context.Context, keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, key := range keys {
		if _, ok := s.entries[key]; ok {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Scan iterates keys matching a glob pattern
func (s *MemoryStore) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	now := time.Now()

	// Snapshot matching keys so fn can delete while iterating
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if e.expired(now) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

// TTL returns the remaining lifetime of a key
func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		return 0, ErrNotFound
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	return time.Until(e.expiresAt), nil
}

// Info reports entry counts
func (s *MemoryStore) Info(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	n := len(s.entries)
	s.mu.RUnlock()
	return map[string]string{
		"backend": "memory",
		"keys":    strconv.Itoa(n),
	}, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the expiry sweep
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
