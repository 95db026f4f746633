package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mlg-clan/platform-core/pkg/observability"
)

// RequestLogger emits one structured line per request with latency, status,
// client, and the assigned request id
func RequestLogger(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	logger = logger.WithPrefix("http")

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString(RequestIDKey),
		}
		if cached := c.Writer.Header().Get("X-Cache"); cached != "" {
			fields["cache"] = cached
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
			logger.Error("request failed", fields)
			return
		}
		logger.Info("request", fields)
	}
}
