package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityConfig holds the CORS and security header configuration
type SecurityConfig struct {
	// AllowedOrigins is the CORS allow-list; empty means same-origin only
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins"`

	// AllowCredentials permits cookies and authorization headers cross-origin
	AllowCredentials bool `mapstructure:"allow_credentials" json:"allow_credentials"`

	AllowedMethods []string `mapstructure:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers" json:"allowed_headers"`
}

// DefaultSecurityConfig returns the default security configuration
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "X-User-ID", "X-Gaming-Priority"},
	}
}

// SecurityHeaders applies the security headers and handles CORS, answering
// preflight requests with a 24 hour cache
func SecurityHeaders(cfg SecurityConfig) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = struct{}{}
	}
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")

		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := allowed[origin]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", "86400")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
