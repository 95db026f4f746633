package httpcache

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
)

// bodyRecorder is a pre-declared response writer wrapper that buffers the
// handler's response so cache headers derived from the full body (ETag,
// Last-Modified) can be set before anything reaches the client. The caching
// decision happens on completion; the entry itself is written after the
// buffered response has been flushed.
type bodyRecorder struct {
	gin.ResponseWriter
	body    bytes.Buffer
	status  int
	flushed bool
}

func newBodyRecorder(w gin.ResponseWriter) *bodyRecorder {
	return &bodyRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *bodyRecorder) WriteHeader(code int) {
	if code > 0 {
		r.status = code
	}
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	return r.body.Write(b)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	return r.body.WriteString(s)
}

func (r *bodyRecorder) Status() int {
	return r.status
}

func (r *bodyRecorder) Size() int {
	return r.body.Len()
}

func (r *bodyRecorder) Written() bool {
	return r.flushed
}

// flush releases the buffered status and body to the client
func (r *bodyRecorder) flush() {
	if r.flushed {
		return
	}
	r.flushed = true
	r.ResponseWriter.WriteHeader(r.status)
	_, _ = r.ResponseWriter.Write(r.body.Bytes())
}
