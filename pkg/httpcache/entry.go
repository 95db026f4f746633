// Package httpcache memoizes whole HTTP responses for safe methods: key
// derivation from the request, TTL policy by endpoint, conditional serving
// (ETag / Last-Modified), and proactive warming. It sits between the request
// optimizer and the handlers, backed by the namespaced cache manager.
package httpcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Entry is the serialized form of a memoized response
type Entry struct {
	Body         []byte    `json:"body"`
	Compressed   bool      `json:"compressed"`
	StatusCode   int       `json:"status_code"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
	CreatedAt    time.Time `json:"created_at"`
	TTLSeconds   int       `json:"ttl_seconds"`
	Namespace    string    `json:"namespace"`
	Endpoint     string    `json:"endpoint"`
}

// ComputeETag returns the strong entity tag for an uncompressed body: the
// first 16 hex chars of its SHA-256, quoted.
func ComputeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:])[:16] + `"`
}

// NewEntry builds a cache entry for a response body. The ETag is always
// computed over the uncompressed body; the body is stored gzip-compressed
// when it exceeds compressionThreshold and compression actually shrinks it.
func NewEntry(body []byte, status int, contentType, namespace, endpoint string, ttl time.Duration, compressionThreshold int) (*Entry, error) {
	now := time.Now().UTC()
	entry := &Entry{
		Body:         body,
		StatusCode:   status,
		ContentType:  contentType,
		ETag:         ComputeETag(body),
		LastModified: now,
		CreatedAt:    now,
		TTLSeconds:   int(ttl / time.Second),
		Namespace:    namespace,
		Endpoint:     endpoint,
	}

	if compressionThreshold > 0 && len(body) > compressionThreshold {
		var buf bytes.Buffer
		gz, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if err != nil {
			return nil, fmt.Errorf("compression setup failed: %w", err)
		}
		if _, err := gz.Write(body); err != nil {
			_ = gz.Close()
			return nil, fmt.Errorf("compression failed: %w", err)
		}
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("compression failed: %w", err)
		}
		if buf.Len() < len(body) {
			entry.Body = buf.Bytes()
			entry.Compressed = true
		}
	}

	return entry, nil
}

// DecodedBody returns the uncompressed response body
func (e *Entry) DecodedBody() ([]byte, error) {
	if !e.Compressed {
		return e.Body, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(e.Body))
	if err != nil {
		return nil, fmt.Errorf("entry decompression failed: %w", err)
	}
	defer func() { _ = gz.Close() }()
	return io.ReadAll(gz)
}

// Expired reports whether the entry has outlived its TTL
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}

// RemainingTTL returns the seconds of freshness left, clamped to zero
func (e *Entry) RemainingTTL(now time.Time) int {
	remaining := e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second).Sub(now)
	if remaining < 0 {
		return 0
	}
	return int(remaining / time.Second)
}
