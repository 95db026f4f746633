// Package config loads the platform configuration from an optional YAML
// file and MLG_-prefixed environment variables, with defaults for every
// recognized option.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mlg-clan/platform-core/pkg/cache"
	"github.com/mlg-clan/platform-core/pkg/httpcache"
	"github.com/mlg-clan/platform-core/pkg/invalidation"
	"github.com/mlg-clan/platform-core/pkg/middleware"
	"github.com/mlg-clan/platform-core/pkg/observability"
	"github.com/mlg-clan/platform-core/pkg/queryperf"
	"github.com/mlg-clan/platform-core/pkg/store"
)

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	ListenAddress    string        `mapstructure:"listen_address"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
}

// Config holds the complete application configuration
type Config struct {
	Environment string `mapstructure:"environment"`

	Server        ServerConfig           `mapstructure:"server"`
	Redis         store.RedisConfig      `mapstructure:"redis"`
	Tiered        store.TieredConfig     `mapstructure:"tiered"`
	Resilience    store.ResilientConfig  `mapstructure:"resilience"`
	Cache         cache.Config           `mapstructure:"cache"`
	ResponseCache httpcache.Config       `mapstructure:"response_cache"`
	Warmer        httpcache.WarmerConfig `mapstructure:"warmer"`
	Invalidation  invalidation.Config    `mapstructure:"invalidation"`
	Optimizer     middleware.ChainConfig `mapstructure:"optimizer"`
	QueryPerf     queryperf.Config       `mapstructure:"query_perf"`
	Database      DatabaseConfig         `mapstructure:"database"`
	Observability observability.Config   `mapstructure:"observability"`
}

// Load reads configuration from the file named by MLG_CONFIG_FILE (optional)
// and from MLG_-prefixed environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MLG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile := os.Getenv("MLG_CONFIG_FILE"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets the default for every recognized option
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("environment", "development")
	v.SetDefault("server.listen_address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 90*time.Second)
	v.SetDefault("server.keep_alive_timeout", 65*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Shared store defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.scan_count", 100)

	// Tiered store defaults
	v.SetDefault("tiered.l1_size", 1000)
	v.SetDefault("tiered.l1_max_ttl", time.Minute)
	v.SetDefault("tiered.l1_max_entry_bytes", 64*1024)
	v.SetDefault("tiered.max_value_bytes", 1024*1024)
	v.SetDefault("tiered.compression_threshold", 1024)
	v.SetDefault("tiered.compression_level", 6)

	// Resilience defaults
	v.SetDefault("resilience.max_retries", 3)
	v.SetDefault("resilience.retry_base_delay", 50*time.Millisecond)
	v.SetDefault("resilience.degraded_threshold", 5)
	v.SetDefault("resilience.probe_max_interval", 30*time.Second)

	// Cache manager defaults
	v.SetDefault("cache.app_prefix", "mlg")
	v.SetDefault("cache.default_ttl", 300*time.Second)
	v.SetDefault("cache.invalidation_batch_size", 100)

	// Response cache defaults
	v.SetDefault("response_cache.max_response_size", 1024*1024)
	v.SetDefault("response_cache.compression_threshold", 1024)
	v.SetDefault("response_cache.enable_conditional", true)
	v.SetDefault("response_cache.principal_header", "X-User-ID")

	// Warmer defaults
	v.SetDefault("warmer.queue_size", 1000)
	v.SetDefault("warmer.concurrency", 5)
	v.SetDefault("warmer.drain_interval", time.Second)
	v.SetDefault("warmer.refresh_interval", time.Duration(0))

	// Invalidation defaults
	v.SetDefault("invalidation.buffer_size", 1024)
	v.SetDefault("invalidation.invalidation_delay", 50*time.Millisecond)
	v.SetDefault("invalidation.batch_window", time.Second)
	v.SetDefault("invalidation.max_batch_size", 100)
	v.SetDefault("invalidation.max_retries", 3)
	v.SetDefault("invalidation.retry_delay", 100*time.Millisecond)
	v.SetDefault("invalidation.enable_filtering", true)
	v.SetDefault("invalidation.filter_window", time.Second)
	v.SetDefault("invalidation.max_concurrent_invalidations", 10)
	v.SetDefault("invalidation.dead_letter_capacity", 256)
	v.SetDefault("invalidation.shutdown_timeout", 5*time.Second)

	// Optimizer defaults
	v.SetDefault("optimizer.security.allow_credentials", true)
	v.SetDefault("optimizer.dedup.window", time.Second)
	v.SetDefault("optimizer.dedup.principal_header", "X-User-ID")
	v.SetDefault("optimizer.batching.enabled", false)
	v.SetDefault("optimizer.batching.batch_window", 100*time.Millisecond)
	v.SetDefault("optimizer.batching.batch_size", 10)
	v.SetDefault("optimizer.batching.max_batch_wait", 500*time.Millisecond)
	v.SetDefault("optimizer.compression.threshold", 1024)
	v.SetDefault("optimizer.compression.level", 6)
	v.SetDefault("optimizer.rate_limit.requests_per_second", 100)
	v.SetDefault("optimizer.rate_limit.burst", 200)
	v.SetDefault("optimizer.rate_limit.expiration", 10*time.Minute)
	v.SetDefault("optimizer.enable_rate_limit", true)
	v.SetDefault("optimizer.enable_tracing", false)

	// Query monitor defaults
	v.SetDefault("query_perf.enable_sampling", true)
	v.SetDefault("query_perf.sampling_rate", 0.1)
	v.SetDefault("query_perf.buffer_size", 4096)
	v.SetDefault("query_perf.recent_size", 1000)
	v.SetDefault("query_perf.slow_size", 100)
	v.SetDefault("query_perf.min_samples", 10)
	v.SetDefault("query_perf.regression_window", 10)
	v.SetDefault("query_perf.regression_threshold", 0.5)
	v.SetDefault("query_perf.alert_window", 5*time.Minute)
	v.SetDefault("query_perf.alert_threshold", 10)
	v.SetDefault("query_perf.retention_period", 24*time.Hour)
	v.SetDefault("query_perf.retention_sweep_interval", time.Hour)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Observability defaults
	v.SetDefault("observability.logging.level", "INFO")
	v.SetDefault("observability.logging.prefix", "platform")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.type", "prometheus")
	v.SetDefault("observability.metrics.namespace", "mlg")
	v.SetDefault("observability.metrics.subsystem", "platform")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.service_name", "platform-core")
}
