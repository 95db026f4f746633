package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTieredStore(t *testing.T, cfg TieredConfig) (*TieredStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	redisStore, err := NewRedisStore(RedisConfig{Address: mr.Addr()}, nil)
	require.NoError(t, err)

	ts := NewTieredStore(redisStore, cfg, nil, nil)
	t.Cleanup(func() { _ = ts.Close() })
	return ts, mr
}

func TestTieredStore_SetGetRoundTrip(t *testing.T) {
	ts, _ := newTestTieredStore(t, DefaultTieredConfig())
	ctx := context.Background()

	require.NoError(t, ts.Set(ctx, "k1", []byte("value"), time.Minute))

	got, err := ts.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)
}

func TestTieredStore_L1ServesWithoutRemote(t *testing.T) {
	ts, mr := newTestTieredStore(t, DefaultTieredConfig())
	ctx := context.Background()

	require.NoError(t, ts.Set(ctx, "k1", []byte("value"), time.Minute))

	// Delete behind the store's back: a small value stays servable from L1
	mr.Del("k1")

	got, err := ts.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)
}

func TestTieredStore_CompressedValuesSkipL1(t *testing.T) {
	ts, mr := newTestTieredStore(t, DefaultTieredConfig())
	ctx := context.Background()

	big := []byte(strings.Repeat("leaderboard ", 1000))
	require.NoError(t, ts.Set(ctx, "big", big, time.Minute))

	// Compressed values are never mirrored into L1, so a remote delete
	// makes them unreachable.
	mr.Del("big")
	_, err := ts.Get(ctx, "big")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTieredStore_CompressionRoundTrip(t *testing.T) {
	ts, _ := newTestTieredStore(t, DefaultTieredConfig())
	ctx := context.Background()

	big := []byte(strings.Repeat("tournament bracket ", 500))
	require.NoError(t, ts.Set(ctx, "big", big, time.Minute))

	got, err := ts.Get(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestTieredStore_TTLHonoured(t *testing.T) {
	ts, mr := newTestTieredStore(t, TieredConfig{L1MaxTTL: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, ts.Set(ctx, "k1", []byte("value"), 5*time.Second))

	mr.FastForward(6 * time.Second)
	time.Sleep(20 * time.Millisecond) // let the L1 entry expire too

	_, err := ts.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTieredStore_MGetPreservesOrder(t *testing.T) {
	ts, _ := newTestTieredStore(t, DefaultTieredConfig())
	ctx := context.Background()

	require.NoError(t, ts.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, ts.Set(ctx, "c", []byte("3"), time.Minute))

	got, err := ts.MGet(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []byte("1"), got[0])
	assert.Nil(t, got[1])
	assert.Equal(t, []byte("3"), got[2])
}

func TestTieredStore_MGetMixesTiers(t *testing.T) {
	ts, mr := newTestTieredStore(t, DefaultTieredConfig())
	ctx := context.Background()

	require.NoError(t, ts.Set(ctx, "l1only", []byte("local"), time.Minute))
	mr.Del("l1only")

	// Written directly to the remote, bypassing L1
	envelope, _, err := ts.codec.Encode([]byte("remote"))
	require.NoError(t, err)
	require.NoError(t, mr.Set("remoteonly", string(envelope)))

	got, err := ts.MGet(ctx, []string{"l1only", "remoteonly", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), got[0])
	assert.Equal(t, []byte("remote"), got[1])
	assert.Nil(t, got[2])
}

func TestTieredStore_DelClearsBothTiers(t *testing.T) {
	ts, _ := newTestTieredStore(t, DefaultTieredConfig())
	ctx := context.Background()

	require.NoError(t, ts.Set(ctx, "k1", []byte("value"), time.Minute))

	n, err := ts.Del(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = ts.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTieredStore_CorruptEntryEvictedOnRead(t *testing.T) {
	ts, mr := newTestTieredStore(t, DefaultTieredConfig())
	ctx := context.Background()

	require.NoError(t, mr.Set("bad", string([]byte{flagGzip, 0x00, 0x01})))

	_, err := ts.Get(ctx, "bad")
	assert.ErrorIs(t, err, ErrDecompressFailed)

	// The corrupt entry must have been evicted
	assert.False(t, mr.Exists("bad"))
}

func TestTieredStore_RejectsOversizedValues(t *testing.T) {
	ts, _ := newTestTieredStore(t, TieredConfig{MaxValueBytes: 128})
	ctx := context.Background()

	err := ts.Set(ctx, "huge", make([]byte, 256), time.Minute)
	assert.ErrorIs(t, err, ErrValueTooLarge)
}

func TestTieredStore_ScanPassesThrough(t *testing.T) {
	ts, _ := newTestTieredStore(t, DefaultTieredConfig())
	ctx := context.Background()

	require.NoError(t, ts.Set(ctx, "mlg:api:voting:a", []byte("1"), time.Minute))
	require.NoError(t, ts.Set(ctx, "mlg:api:voting:b", []byte("2"), time.Minute))
	require.NoError(t, ts.Set(ctx, "mlg:api:user:c", []byte("3"), time.Minute))

	var keys []string
	err := ts.Scan(ctx, "mlg:api:voting:*", func(key string) error {
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mlg:api:voting:a", "mlg:api:voting:b"}, keys)
}
