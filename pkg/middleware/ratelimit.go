package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds the per-client rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained per-client rate
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second"`

	// Burst is the short-term allowance above the sustained rate
	Burst int `mapstructure:"burst" json:"burst"`

	// Expiration evicts idle client limiters
	Expiration time.Duration `mapstructure:"expiration" json:"expiration"`
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		Expiration:        10 * time.Minute,
	}
}

// limiterStore keeps one token bucket per client with idle eviction
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	cfg      RateLimitConfig
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		cfg:      cfg,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.limiters) > 1024 {
		s.evictLocked(now)
	}

	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)
		s.limiters[key] = limiter
	}
	s.lastSeen[key] = now
	return limiter
}

func (s *limiterStore) evictLocked(now time.Time) {
	for key, seen := range s.lastSeen {
		if now.Sub(seen) > s.cfg.Expiration {
			delete(s.limiters, key)
			delete(s.lastSeen, key)
		}
	}
}

// RateLimit rejects clients above their per-IP budget with 429 and a
// Retry-After hint
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	def := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = def.Expiration
	}
	store := newLimiterStore(cfg)

	return func(c *gin.Context) {
		limiter := store.get(c.ClientIP())
		if !limiter.Allow() {
			retryAfter := int(time.Second / time.Duration(cfg.RequestsPerSecond))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
