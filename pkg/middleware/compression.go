package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds the response compression configuration
type CompressionConfig struct {
	// Threshold is the minimum body size in bytes before compression applies
	Threshold int `mapstructure:"threshold" json:"threshold"`

	// Level is the gzip level
	Level int `mapstructure:"level" json:"level"`
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		Threshold: 1024,
		Level:     6,
	}
}

// compressibleType reports whether a content type is worth compressing
func compressibleType(contentType string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	for _, t := range []string{"application/json", "application/javascript", "application/xml"} {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return strings.Contains(contentType, "+json") || strings.Contains(contentType, "+xml")
}

// Compression gzip-encodes text-like responses at or above the threshold for
// clients that accept it. Responses already carrying a Content-Encoding pass
// through untouched.
func Compression(cfg CompressionConfig) gin.HandlerFunc {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1024
	}
	if cfg.Level < gzip.BestSpeed || cfg.Level > gzip.BestCompression {
		cfg.Level = 6
	}

	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		recorder := newBufferedWriter(c.Writer)
		c.Writer = recorder
		c.Next()
		c.Writer = recorder.ResponseWriter

		header := recorder.Header()
		if recorder.buf.Len() < cfg.Threshold ||
			header.Get("Content-Encoding") != "" ||
			!compressibleType(header.Get("Content-Type")) {
			recorder.flush()
			return
		}

		header.Set("Content-Encoding", "gzip")
		header.Set("Vary", "Accept-Encoding")
		header.Del("Content-Length")
		c.Writer.WriteHeader(recorder.status)

		gz, err := gzip.NewWriterLevel(c.Writer, cfg.Level)
		if err != nil {
			_, _ = c.Writer.Write(recorder.buf.Bytes())
			return
		}
		_, _ = gz.Write(recorder.buf.Bytes())
		_ = gz.Close()
	}
}
