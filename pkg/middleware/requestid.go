package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestIDKey is the gin context key for the assigned request identifier
const RequestIDKey = "request_id"

var requestSeq atomic.Uint64

// newRequestID builds an identifier from the wall clock, a per-process
// monotonic sequence, and 9 random hex characters
func newRequestID() string {
	var b [5]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("req_%d_%d_%s",
		time.Now().UnixMilli(),
		requestSeq.Add(1),
		hex.EncodeToString(b[:])[:9])
}

// RequestID assigns each request a unique identifier, exposed both as the
// X-Request-ID response header and under RequestIDKey in the context
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := newRequestID()
		c.Set(RequestIDKey, id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}
