package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/mlg-clan/platform-core/pkg/observability"
)

// ChainConfig aggregates the configuration for the full optimizer chain
type ChainConfig struct {
	Security    SecurityConfig    `mapstructure:"security" json:"security"`
	Dedup       DedupConfig       `mapstructure:"dedup" json:"dedup"`
	Batching    BatchingConfig    `mapstructure:"batching" json:"batching"`
	Compression CompressionConfig `mapstructure:"compression" json:"compression"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" json:"rate_limit"`

	EnableRateLimit bool `mapstructure:"enable_rate_limit" json:"enable_rate_limit"`
	EnableTracing   bool `mapstructure:"enable_tracing" json:"enable_tracing"`
}

// DefaultChainConfig returns the default chain configuration
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		Security:        DefaultSecurityConfig(),
		Dedup:           DefaultDedupConfig(),
		Batching:        DefaultBatchingConfig(),
		Compression:     DefaultCompressionConfig(),
		RateLimit:       DefaultRateLimitConfig(),
		EnableRateLimit: true,
	}
}

// Chain assembles the optimizer middleware in the documented order:
// security, request id, logging, tracing, rate limiting, deduplication,
// priority, batching, compression, metrics
func Chain(cfg ChainConfig, logger observability.Logger, metrics observability.MetricsClient) []gin.HandlerFunc {
	handlers := []gin.HandlerFunc{
		SecurityHeaders(cfg.Security),
		RequestID(),
		RequestLogger(logger),
	}
	if cfg.EnableTracing {
		handlers = append(handlers, Tracing())
	}
	if cfg.EnableRateLimit {
		handlers = append(handlers, RateLimit(cfg.RateLimit))
	}
	handlers = append(handlers,
		NewDeduplicator(cfg.Dedup).Middleware(),
		Priority(),
		NewRequestBatcher(cfg.Batching).Middleware(),
		Compression(cfg.Compression),
		Metrics(metrics),
	)
	return handlers
}
