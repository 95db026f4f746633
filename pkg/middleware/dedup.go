package middleware

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mlg-clan/platform-core/pkg/cache"
)

// DedupConfig holds the request deduplication configuration
type DedupConfig struct {
	// Window is how long a settled response remains replayable and how long
	// waiters coalesce behind an in-flight request
	Window time.Duration `mapstructure:"window" json:"window"`

	// PrincipalHeader names the header carrying the authenticated user id
	PrincipalHeader string `mapstructure:"principal_header" json:"principal_header"`
}

// DefaultDedupConfig returns the default deduplication configuration
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		Window:          time.Second,
		PrincipalHeader: "X-User-ID",
	}
}

// dedupEntry tracks one in-flight or recently settled request. Waiters block
// on done; the owner fills the response fields before closing it.
type dedupEntry struct {
	done      chan struct{}
	createdAt time.Time

	status int
	header http.Header
	body   []byte
}

// Deduplicator coalesces concurrent identical GET requests: one owner runs
// the handler, every peer arriving inside the window replays the owner's
// response with X-Cache: HIT-DEDUPLICATED.
type Deduplicator struct {
	cfg DedupConfig

	mu      sync.Mutex
	entries map[string]*dedupEntry

	deduplicated atomic.Int64
}

// NewDeduplicator creates a deduplicator with the given configuration
func NewDeduplicator(cfg DedupConfig) *Deduplicator {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.PrincipalHeader == "" {
		cfg.PrincipalHeader = "X-User-ID"
	}
	return &Deduplicator{
		cfg:     cfg,
		entries: make(map[string]*dedupEntry),
	}
}

// Deduplicated returns the number of requests served from a peer's response
func (d *Deduplicator) Deduplicated() int64 {
	return d.deduplicated.Load()
}

func (d *Deduplicator) keyFor(c *gin.Context) string {
	principal := c.GetHeader(d.cfg.PrincipalHeader)
	if principal == "" {
		principal = cache.AnonymousPrincipal
	}
	return c.Request.Method + "|" + c.Request.URL.Path + "|" +
		cache.CanonicalQuery(c.Request.URL.Query()) + "|" + principal
}

// Middleware returns the deduplication handler. Only GET requests
// participate; mutations always reach their handler.
func (d *Deduplicator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := d.keyFor(c)
		now := time.Now()

		d.mu.Lock()
		entry, ok := d.entries[key]
		if ok && now.Sub(entry.createdAt) < d.cfg.Window {
			d.mu.Unlock()
			d.wait(c, entry)
			return
		}

		entry = &dedupEntry{done: make(chan struct{}), createdAt: now}
		d.entries[key] = entry
		d.mu.Unlock()

		recorder := newBufferedWriter(c.Writer)
		c.Writer = recorder
		c.Next()
		c.Writer = recorder.ResponseWriter

		entry.status = recorder.Status()
		entry.header = recorder.Header().Clone()
		entry.body = append([]byte(nil), recorder.buf.Bytes()...)
		recorder.flush()
		close(entry.done)

		// The entry stays replayable for the remainder of the window
		time.AfterFunc(d.cfg.Window, func() {
			d.mu.Lock()
			if d.entries[key] == entry {
				delete(d.entries, key)
			}
			d.mu.Unlock()
		})
	}
}

// wait blocks until the owner settles, then replays its response. A caller
// deadline releases the waiter without disturbing the owner.
func (d *Deduplicator) wait(c *gin.Context, entry *dedupEntry) {
	select {
	case <-entry.done:
	case <-c.Request.Context().Done():
		c.AbortWithStatus(http.StatusGatewayTimeout)
		return
	}

	h := c.Writer.Header()
	for name, values := range entry.header {
		h[name] = values
	}
	h.Set("X-Cache", "HIT-DEDUPLICATED")
	c.Writer.WriteHeader(entry.status)
	_, _ = c.Writer.Write(entry.body)
	d.deduplicated.Add(1)
	c.Abort()
}
