// Package middleware provides the request optimizer chain: security headers,
// request identifiers, deduplication of concurrent identical reads, priority
// classification, optional read batching, response compression, rate
// limiting, and per-request metrics. Constructors return gin handlers meant
// to be installed in the documented order.
package middleware

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
)

// bufferedWriter captures the handler's response so a middleware can inspect
// or transform the full body before anything reaches the client
type bufferedWriter struct {
	gin.ResponseWriter
	buf     bytes.Buffer
	status  int
	flushed bool
}

func newBufferedWriter(w gin.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	return w.buf.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.flushed
}

// flush releases the buffered status and body unchanged
func (w *bufferedWriter) flush() {
	if w.flushed {
		return
	}
	w.flushed = true
	w.ResponseWriter.WriteHeader(w.status)
	_, _ = w.ResponseWriter.Write(w.buf.Bytes())
}
