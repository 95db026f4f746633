package httpcache

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mlg-clan/platform-core/pkg/cache"
	"github.com/mlg-clan/platform-core/pkg/observability"
)

// Result classifies the outcome of a cache lookup at the response boundary.
// The embedder decides the HTTP mapping; the cache never throws through the
// middleware chain.
type Result int

// Lookup outcomes
const (
	// Miss means no usable entry; the handler must run
	Miss Result = iota
	// Served means the response was written from cache
	Served
	// Failed means the lookup errored and the handler must run
	Failed
)

// Config holds the response cache configuration
type Config struct {
	// MaxResponseSize bounds cacheable body size in bytes
	MaxResponseSize int `mapstructure:"max_response_size" json:"max_response_size"`

	// CompressionThreshold is the minimum body size before stored bodies
	// are gzip-compressed
	CompressionThreshold int `mapstructure:"compression_threshold" json:"compression_threshold"`

	// EnableConditional turns on ETag / If-Modified-Since handling
	EnableConditional bool `mapstructure:"enable_conditional" json:"enable_conditional"`

	// PrincipalHeader names the header carrying the authenticated user id
	PrincipalHeader string `mapstructure:"principal_header" json:"principal_header"`

	// RouteTTLs maps path prefixes to explicit TTL overrides, consulted
	// before the endpoint pattern table
	RouteTTLs map[string]time.Duration `mapstructure:"route_ttls" json:"route_ttls"`
}

// DefaultConfig returns the default response cache configuration
func DefaultConfig() Config {
	return Config{
		MaxResponseSize:      1024 * 1024,
		CompressionThreshold: 1024,
		EnableConditional:    true,
		PrincipalHeader:      "X-User-ID",
	}
}

// ResponseCache memoizes whole HTTP responses through the cache manager
type ResponseCache struct {
	manager *cache.Manager
	cfg     Config

	logger  observability.Logger
	metrics observability.MetricsClient
}

// New creates a response cache over manager
func New(manager *cache.Manager, cfg Config, logger observability.Logger, metrics observability.MetricsClient) *ResponseCache {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = 1024 * 1024
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = 1024
	}
	if cfg.PrincipalHeader == "" {
		cfg.PrincipalHeader = "X-User-ID"
	}

	return &ResponseCache{
		manager: manager,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Principal extracts the requesting principal, defaulting to anonymous
func (rc *ResponseCache) Principal(r *http.Request) string {
	if p := r.Header.Get(rc.cfg.PrincipalHeader); p != "" {
		return p
	}
	return cache.AnonymousPrincipal
}

// keyFor derives the namespace and logical key for a request
func (rc *ResponseCache) keyFor(r *http.Request) (string, string) {
	namespace := NamespaceFor(r.URL.Path)
	key := r.URL.Path + ":" + cache.RequestKey(rc.Principal(r), r.URL.Query(), 0)
	return namespace, key
}

// ttlFor resolves the TTL with the documented precedence: explicit route
// override, endpoint pattern table, namespace default, global default
func (rc *ResponseCache) ttlFor(path, namespace string) time.Duration {
	for prefix, ttl := range rc.cfg.RouteTTLs {
		if strings.HasPrefix(path, prefix) {
			return ttl
		}
	}
	if ttl, ok := endpointTTL(path); ok {
		return ttl
	}
	return rc.manager.TTLFor(namespace, 0)
}

// TryServe attempts to satisfy the request from cache. It returns Served
// after writing a full or 304 response, Miss when the handler must run, and
// Failed when the lookup itself errored.
func (rc *ResponseCache) TryServe(w http.ResponseWriter, r *http.Request) Result {
	if !CacheableRequest(r) {
		return Miss
	}

	namespace, key := rc.keyFor(r)
	var entry Entry
	if !rc.manager.GetJSON(r.Context(), namespace, key, &entry) {
		return Miss
	}

	now := time.Now().UTC()
	if entry.Expired(now) {
		return Miss
	}

	body, err := entry.DecodedBody()
	if err != nil {
		// Unreadable entry: evict and fall through to the handler
		rc.manager.Delete(r.Context(), namespace, key)
		rc.metrics.IncrementCounter("response_cache_decode_failures", 1)
		return Failed
	}

	header := w.Header()
	header.Set("ETag", entry.ETag)
	header.Set("Last-Modified", entry.LastModified.Format(http.TimeFormat))
	header.Set("Cache-Control", fmt.Sprintf("max-age=%d", entry.RemainingTTL(now)))
	header.Set("X-Cache-TTL", fmt.Sprintf("%d", entry.RemainingTTL(now)))

	if rc.cfg.EnableConditional && rc.notModified(r, &entry) {
		header.Set("X-Cache", "HIT-304")
		w.WriteHeader(http.StatusNotModified)
		rc.metrics.IncrementCounter("response_cache_304", 1)
		return Served
	}

	header.Set("X-Cache", "HIT")
	if entry.ContentType != "" {
		header.Set("Content-Type", entry.ContentType)
	}

	// Vary is set iff the wire encoding depends on the request
	if entry.Compressed {
		header.Set("Vary", "Accept-Encoding")
		if acceptsGzip(r) {
			header.Set("Content-Encoding", "gzip")
			w.WriteHeader(entry.StatusCode)
			_, _ = w.Write(entry.Body)
			rc.metrics.IncrementCounter("response_cache_hits", 1)
			return Served
		}
	}

	w.WriteHeader(entry.StatusCode)
	_, _ = w.Write(body)
	rc.metrics.IncrementCounter("response_cache_hits", 1)
	return Served
}

// notModified evaluates the conditional request headers against the entry
func (rc *ResponseCache) notModified(r *http.Request, entry *Entry) bool {
	if match := r.Header.Get("If-None-Match"); match != "" {
		for _, candidate := range strings.Split(match, ",") {
			if strings.TrimSpace(candidate) == entry.ETag {
				return true
			}
		}
		return false
	}
	if since := r.Header.Get("If-Modified-Since"); since != "" {
		if t, err := http.ParseTime(since); err == nil {
			return !entry.LastModified.Truncate(time.Second).After(t)
		}
	}
	return false
}

// buildEntry evaluates the caching predicate and constructs the entry for a
// handler response. ok is false when the response must not be cached.
func (rc *ResponseCache) buildEntry(r *http.Request, status int, contentType string, body []byte) (entry *Entry, ttl time.Duration, ok bool) {
	if !CacheableRequest(r) || status != http.StatusOK {
		return nil, 0, false
	}
	if len(body) > rc.cfg.MaxResponseSize {
		rc.metrics.IncrementCounter("response_cache_too_large", 1)
		return nil, 0, false
	}

	namespace := NamespaceFor(r.URL.Path)
	ttl = rc.ttlFor(r.URL.Path, namespace)
	entry, err := NewEntry(body, status, contentType, namespace, r.URL.Path, ttl, rc.cfg.CompressionThreshold)
	if err != nil {
		rc.logger.Debug("response entry build failed", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		return nil, 0, false
	}
	return entry, ttl, true
}

// Write memoizes a response. It is idempotent and a no-op whenever the
// caching predicate fails; only 200 responses within the size bound are
// stored.
func (rc *ResponseCache) Write(ctx context.Context, r *http.Request, status int, contentType string, body []byte) error {
	entry, ttl, ok := rc.buildEntry(r, status, contentType, body)
	if !ok {
		return nil
	}
	namespace, key := rc.keyFor(r)
	return rc.manager.SetJSON(ctx, namespace, key, entry, ttl)
}

// Middleware adapts the response cache into the gin chain: serve from cache,
// or buffer the handler's response, stamp the cache headers, flush it to the
// client, and then write the entry.
func (rc *ResponseCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CacheableRequest(c.Request) {
			c.Next()
			return
		}

		if result := rc.TryServe(c.Writer, c.Request); result == Served {
			c.Abort()
			return
		}

		recorder := newBodyRecorder(c.Writer)
		c.Writer = recorder
		c.Next()
		c.Writer = recorder.ResponseWriter

		entry, ttl, ok := rc.buildEntry(c.Request, recorder.Status(), recorder.Header().Get("Content-Type"), recorder.body.Bytes())
		if ok {
			header := recorder.Header()
			header.Set("ETag", entry.ETag)
			header.Set("Last-Modified", entry.LastModified.Format(http.TimeFormat))
			header.Set("Cache-Control", fmt.Sprintf("max-age=%d", entry.TTLSeconds))
			header.Set("X-Cache", "MISS")
			header.Set("X-Cache-TTL", fmt.Sprintf("%d", entry.TTLSeconds))
		}
		recorder.flush()

		// The client has the response by now; the cache write happens out
		// of band of the user-visible latency.
		if ok {
			namespace, key := rc.keyFor(c.Request)
			if err := rc.manager.SetJSON(c.Request.Context(), namespace, key, entry, ttl); err != nil {
				rc.logger.Debug("response cache write dropped", map[string]interface{}{
					"path":  c.Request.URL.Path,
					"error": err.Error(),
				})
			}
		}
	}
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}
