package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mlg-clan/platform-core/pkg/observability"
)

// Tracing opens a span per request and annotates it with the route, status,
// and cache outcome
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := observability.StartSpan(c.Request.Context(), "http "+c.Request.Method+" "+c.FullPath())
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		span.SetAttribute("http.method", c.Request.Method)
		span.SetAttribute("http.target", c.Request.URL.Path)

		c.Next()

		span.SetAttribute("http.status_code", c.Writer.Status())
		if cached := c.Writer.Header().Get("X-Cache"); cached != "" {
			span.SetAttribute("cache.result", cached)
		}
		if c.Writer.Status() >= 500 {
			span.SetStatus(2, "server error "+strconv.Itoa(c.Writer.Status()))
		}
	}
}
