package middleware

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// BatchingConfig holds the safe-read batching configuration. Batching is
// disabled by default; most deployments rely on caching and deduplication
// alone.
type BatchingConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// BatchWindow is how long a group accumulates peers before release
	BatchWindow time.Duration `mapstructure:"batch_window" json:"batch_window"`

	// BatchSize releases a group early once this many peers joined
	BatchSize int `mapstructure:"batch_size" json:"batch_size"`

	// MaxBatchWait is the hard ceiling on how long any request is held
	MaxBatchWait time.Duration `mapstructure:"max_batch_wait" json:"max_batch_wait"`
}

// DefaultBatchingConfig returns the default batching configuration
func DefaultBatchingConfig() BatchingConfig {
	return BatchingConfig{
		Enabled:      false,
		BatchWindow:  100 * time.Millisecond,
		BatchSize:    10,
		MaxBatchWait: 500 * time.Millisecond,
	}
}

// batchMember is one held request waiting for its group to release
type batchMember struct {
	priority int
	seq      int
	gate     chan struct{}
}

// batchGroup accumulates peers on one endpoint pattern
type batchGroup struct {
	members []*batchMember
	window  *time.Timer
	hard    *time.Timer
}

// RequestBatcher holds safe idempotent reads briefly so peers on the same
// endpoint dispatch together, highest priority first
type RequestBatcher struct {
	cfg BatchingConfig

	mu     sync.Mutex
	groups map[string]*batchGroup
}

// NewRequestBatcher creates a request batcher
func NewRequestBatcher(cfg BatchingConfig) *RequestBatcher {
	def := DefaultBatchingConfig()
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = def.BatchWindow
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = def.MaxBatchWait
	}
	return &RequestBatcher{
		cfg:    cfg,
		groups: make(map[string]*batchGroup),
	}
}

// batchablePattern returns the group key for a path, or false when the
// request must not be held. Voting and realtime traffic always passes
// straight through.
func batchablePattern(path string) (string, bool) {
	if strings.Contains(path, "/voting") || strings.Contains(path, "/live") || strings.Contains(path, "/realtime") {
		return "", false
	}
	for _, pattern := range []string{"/leaderboard", "/content", "/clan", "/user"} {
		if strings.Contains(path, pattern) {
			return pattern, true
		}
	}
	return "", false
}

// Middleware returns the batching handler. Held requests resume in
// priority-descending order when their group releases; a caller deadline
// frees the request immediately.
func (b *RequestBatcher) Middleware() gin.HandlerFunc {
	if !b.cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		pattern, ok := batchablePattern(c.Request.URL.Path)
		if !ok || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		member := b.join(pattern, requestPriority(c))
		select {
		case <-member.gate:
		case <-c.Request.Context().Done():
		}
		c.Next()
	}
}

// join adds a member to the group for pattern, creating the group and its
// timers on first join and releasing immediately at the size cap
func (b *RequestBatcher) join(pattern string, priority int) *batchMember {
	b.mu.Lock()
	group, ok := b.groups[pattern]
	if !ok {
		group = &batchGroup{}
		group.window = time.AfterFunc(b.cfg.BatchWindow, func() { b.release(pattern) })
		group.hard = time.AfterFunc(b.cfg.MaxBatchWait, func() { b.release(pattern) })
		b.groups[pattern] = group
	}
	member := &batchMember{
		priority: priority,
		seq:      len(group.members),
		gate:     make(chan struct{}),
	}
	group.members = append(group.members, member)
	full := len(group.members) >= b.cfg.BatchSize
	b.mu.Unlock()

	if full {
		b.release(pattern)
	}
	return member
}

// release dispatches the group for pattern, opening member gates from the
// highest priority down; equal priorities keep arrival order
func (b *RequestBatcher) release(pattern string) {
	b.mu.Lock()
	group, ok := b.groups[pattern]
	if ok {
		delete(b.groups, pattern)
		group.window.Stop()
		group.hard.Stop()
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	sortMembers(group.members)
	for _, member := range group.members {
		close(member.gate)
	}
}

// sortMembers orders a batch for release: priority descending, arrival order
// within equal priorities
func sortMembers(members []*batchMember) {
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].priority != members[j].priority {
			return members[i].priority > members[j].priority
		}
		return members[i].seq < members[j].seq
	})
}
