package store

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Envelope flags. The first byte of every stored value records whether the
// remainder is raw or gzip-compressed.
const (
	flagRaw  byte = 0x00
	flagGzip byte = 0x01
)

const (
	// DefaultCompressionThreshold is the minimum value size, in bytes,
	// before compression is attempted
	DefaultCompressionThreshold = 1024

	// DefaultMaxDecompressedBytes bounds inflation to guard against
	// decompression bombs
	DefaultMaxDecompressedBytes = 10 * 1024 * 1024
)

// Codec encodes values into self-describing envelopes, compressing them
// transparently when it pays off.
type Codec struct {
	// Threshold is the minimum payload size before compression is attempted
	Threshold int

	// Level is the gzip compression level
	Level int

	// MaxDecompressedBytes bounds the size of an inflated payload
	MaxDecompressedBytes int64
}

// NewCodec creates a codec with the given threshold and compression level.
// Non-positive arguments fall back to defaults.
func NewCodec(threshold, level int) *Codec {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	if level <= 0 || level > gzip.BestCompression {
		level = gzip.BestSpeed
	}
	return &Codec{
		Threshold:            threshold,
		Level:                level,
		MaxDecompressedBytes: DefaultMaxDecompressedBytes,
	}
}

// Encode wraps data in an envelope, compressing it when it exceeds the
// threshold and compression actually reduces size. It returns the envelope
// and whether the payload was compressed.
func (c *Codec) Encode(data []byte) ([]byte, bool, error) {
	if len(data) <= c.Threshold {
		return c.wrap(flagRaw, data), false, nil
	}

	var buf bytes.Buffer
	buf.WriteByte(flagGzip)
	gz, err := gzip.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if _, err := gz.Write(data); err != nil {
		_ = gz.Close()
		return nil, false, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := gz.Close(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	// Keep the raw form when compression did not help
	if buf.Len() >= len(data)+1 {
		return c.wrap(flagRaw, data), false, nil
	}

	return buf.Bytes(), true, nil
}

// Decode unwraps an envelope, inflating it when flagged compressed. It
// returns the payload and whether it was stored compressed.
func (c *Codec) Decode(envelope []byte) ([]byte, bool, error) {
	if len(envelope) == 0 {
		return nil, false, ErrDecompressFailed
	}

	switch envelope[0] {
	case flagRaw:
		return envelope[1:], false, nil
	case flagGzip:
		payload := envelope[1:]
		if !isGzip(payload) {
			return nil, false, ErrDecompressFailed
		}
		gz, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, false, ErrDecompressFailed
		}
		defer func() { _ = gz.Close() }()

		max := c.MaxDecompressedBytes
		if max <= 0 {
			max = DefaultMaxDecompressedBytes
		}
		data, err := io.ReadAll(io.LimitReader(gz, max))
		if err != nil {
			return nil, false, ErrDecompressFailed
		}
		if len(data) == 0 {
			return nil, false, ErrDecompressFailed
		}
		return data, true, nil
	default:
		return nil, false, ErrDecompressFailed
	}
}

func (c *Codec) wrap(flag byte, data []byte) []byte {
	out := make([]byte, 0, len(data)+1)
	out = append(out, flag)
	return append(out, data...)
}

func isGzip(data []byte) bool {
	// gzip magic bytes
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
