package store

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(0, 0)

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"small", []byte("hello")},
		{"exactly threshold", bytes.Repeat([]byte("x"), DefaultCompressionThreshold)},
		{"compressible", []byte(strings.Repeat("leaderboard ", 1000))},
		{"binary", func() []byte {
			b := make([]byte, 4096)
			_, _ = rand.Read(b)
			return b
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			envelope, _, err := codec.Encode(tc.data)
			require.NoError(t, err)

			decoded, _, err := codec.Decode(envelope)
			require.NoError(t, err)
			assert.Equal(t, tc.data, decoded)
		})
	}
}

func TestCodec_CompressesAboveThreshold(t *testing.T) {
	codec := NewCodec(1024, 0)

	data := []byte(strings.Repeat("vote ", 2000))
	envelope, compressed, err := codec.Encode(data)
	require.NoError(t, err)
	assert.True(t, compressed)
	assert.Equal(t, flagGzip, envelope[0])
	assert.Less(t, len(envelope), len(data))
}

func TestCodec_SmallValuesStayRaw(t *testing.T) {
	codec := NewCodec(1024, 0)

	data := []byte(strings.Repeat("x", 900))
	envelope, compressed, err := codec.Encode(data)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, flagRaw, envelope[0])
	assert.Equal(t, data, envelope[1:])
}

func TestCodec_IncompressibleStaysRaw(t *testing.T) {
	codec := NewCodec(64, 0)

	// Random bytes do not compress; the envelope must keep the raw form
	data := make([]byte, 2048)
	_, err := rand.Read(data)
	require.NoError(t, err)

	envelope, compressed, err := codec.Encode(data)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, flagRaw, envelope[0])
}

func TestCodec_DecodeRejectsCorruptEnvelopes(t *testing.T) {
	codec := NewCodec(0, 0)

	cases := []struct {
		name     string
		envelope []byte
	}{
		{"empty", nil},
		{"unknown flag", []byte{0x7f, 1, 2, 3}},
		{"gzip flag without magic", []byte{flagGzip, 0x00, 0x01, 0x02}},
		{"gzip flag with truncated stream", []byte{flagGzip, 0x1f, 0x8b, 0x08}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := codec.Decode(tc.envelope)
			assert.ErrorIs(t, err, ErrDecompressFailed)
		})
	}
}
