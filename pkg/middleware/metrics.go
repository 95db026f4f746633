package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mlg-clan/platform-core/pkg/observability"
)

// timingWriter stamps X-Response-Time the moment the status line is written,
// which is the last point the header can still change
type timingWriter struct {
	gin.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (w *timingWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.Header().Set("X-Response-Time", fmt.Sprintf("%dms", time.Since(w.start).Milliseconds()))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *timingWriter) WriteString(s string) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.WriteString(s)
}

// Metrics records per-request duration, status, response size, and whether
// the response came from cache, and sets the X-Response-Time header
func Metrics(metrics observability.MetricsClient) gin.HandlerFunc {
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}

	return func(c *gin.Context) {
		start := time.Now()
		writer := &timingWriter{ResponseWriter: c.Writer, start: start}
		c.Writer = writer

		c.Next()

		c.Writer = writer.ResponseWriter
		duration := time.Since(start)
		status := c.Writer.Status()
		cached := c.Writer.Header().Get("X-Cache")
		if cached == "" {
			cached = "NONE"
		}

		metrics.RecordAPIOperation(c.FullPath(), c.Request.Method, strconv.Itoa(status), duration.Seconds())
		metrics.RecordHistogram("http_response_bytes", float64(c.Writer.Size()), map[string]string{
			"method": c.Request.Method,
		})
		metrics.IncrementCounterWithLabels("http_requests", 1, map[string]string{
			"status": strconv.Itoa(status),
			"cache":  cached,
		})
	}
}
