package invalidation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mlg-clan/platform-core/pkg/cache"
	"github.com/mlg-clan/platform-core/pkg/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type invCall struct {
	namespace string
	pattern   string
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls []invCall
	err   error
}

func (f *fakeInvalidator) InvalidatePattern(ctx context.Context, namespace, pattern string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invCall{namespace, pattern})
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func (f *fakeInvalidator) patterns(namespace string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.namespace == namespace {
			out = append(out, c.pattern)
		}
	}
	return out
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InvalidationDelay = 5 * time.Millisecond
	cfg.BatchWindow = 20 * time.Millisecond
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.EnableFiltering = false
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestBus_HighPriorityEventExecutesRule(t *testing.T) {
	inv := &fakeInvalidator{}
	bus := NewBus(inv, fastConfig(), nil, nil)
	defer func() { require.NoError(t, bus.Close()) }()

	require.True(t, bus.Publish(VoteCast{UserID: "U7", ContentID: "C42", ClanID: "CL9"}))

	require.Eventually(t, func() bool {
		return len(inv.patterns(cache.NamespaceVoting)) > 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Contains(t, inv.patterns(cache.NamespaceVoting), "*results/C42*")
	assert.Contains(t, inv.patterns(cache.NamespaceContent), "*stats/C42*")
	assert.Contains(t, inv.patterns(cache.NamespaceLeaderboard), "*")
	assert.Contains(t, inv.patterns(cache.NamespaceUser), "*stats/U7*")
	assert.Contains(t, inv.patterns(cache.NamespaceClan), "*stats/CL9*")
}

func TestBus_BatchableEventsCoalesce(t *testing.T) {
	inv := &fakeInvalidator{}
	bus := NewBus(inv, fastConfig(), nil, nil)
	defer func() { require.NoError(t, bus.Close()) }()

	for i := 0; i < 5; i++ {
		require.True(t, bus.Publish(UserProfileUpdated{UserID: "U7", ClanIDs: []string{"CL1"}}))
	}

	require.Eventually(t, func() bool {
		return bus.Stats().BatchesFlushed == 1
	}, 2*time.Second, 5*time.Millisecond)

	// One flush, and the profile pattern was cleared exactly once
	assert.Equal(t, int64(4), bus.Stats().BatchesMerged)
	count := 0
	for _, p := range inv.patterns(cache.NamespaceUser) {
		if p == "*profile/U7*" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestBus_FilterDropsRepeatEvents(t *testing.T) {
	inv := &fakeInvalidator{}
	cfg := fastConfig()
	cfg.EnableFiltering = true
	cfg.FilterWindow = time.Second
	bus := NewBus(inv, cfg, nil, nil)
	defer func() { require.NoError(t, bus.Close()) }()

	for i := 0; i < 3; i++ {
		require.True(t, bus.Publish(VoteCast{UserID: "U7", ContentID: "C42"}))
	}

	require.Eventually(t, func() bool {
		return bus.Stats().Filtered == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBus_ExhaustedRetriesDeadLetter(t *testing.T) {
	inv := &fakeInvalidator{err: errors.New("redis down")}
	bus := NewBus(inv, fastConfig(), nil, nil)
	defer func() { require.NoError(t, bus.Close()) }()

	require.True(t, bus.Publish(LeaderboardRefresh{}))

	require.Eventually(t, func() bool {
		return len(bus.DeadLetters()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	entry := bus.DeadLetters()[0]
	assert.Equal(t, EventLeaderboardRefresh, entry.EventType)
	assert.Equal(t, cache.NamespaceLeaderboard, entry.Namespace)
	assert.Contains(t, entry.Error, "redis down")
	assert.NotZero(t, entry.ID)

	// Three attempts against the store, no re-queue afterwards
	assert.Len(t, inv.patterns(cache.NamespaceLeaderboard), 3)
	assert.Equal(t, int64(1), bus.Stats().ActionsFailed)
}

func TestBus_CloseFlushesPendingBatches(t *testing.T) {
	inv := &fakeInvalidator{}
	cfg := fastConfig()
	cfg.BatchWindow = time.Hour
	bus := NewBus(inv, cfg, nil, nil)

	require.True(t, bus.Publish(ClanMemberAdded{ClanID: "CL1", UserID: "U1"}))
	require.NoError(t, bus.Close())

	assert.Contains(t, inv.patterns(cache.NamespaceClan), "*members/CL1*")
}

func TestBus_PublishAfterCloseRejected(t *testing.T) {
	bus := NewBus(&fakeInvalidator{}, fastConfig(), nil, nil)
	require.NoError(t, bus.Close())
	assert.False(t, bus.Publish(LeaderboardRefresh{}))
	// Close is idempotent
	require.NoError(t, bus.Close())
}

func TestBus_VoteCastClearsCachedEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	redisStore, err := store.NewRedisStore(store.RedisConfig{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	tiered := store.NewTieredStore(redisStore, store.DefaultTieredConfig(), nil, nil)
	t.Cleanup(func() { _ = tiered.Close() })
	manager := cache.NewManager(tiered, cache.DefaultConfig(), nil, nil)

	ctx := context.Background()
	seed := []struct {
		namespace string
		key       string
	}{
		{cache.NamespaceVoting, "results/C42:anonymous:limit=50"},
		{cache.NamespaceContent, "stats/C42:anonymous"},
		{cache.NamespaceLeaderboard, "users:anonymous"},
		{cache.NamespaceUser, "stats/U7:anonymous"},
		{cache.NamespaceClan, "stats/CL9:anonymous"},
	}
	for _, s := range seed {
		require.NoError(t, manager.Set(ctx, s.namespace, s.key, []byte("cached"), time.Minute))
	}
	// Unrelated content survives the event
	require.NoError(t, manager.Set(ctx, cache.NamespaceVoting, "results/C99:anonymous", []byte("cached"), time.Minute))

	bus := NewBus(manager, fastConfig(), nil, nil)
	defer func() { require.NoError(t, bus.Close()) }()

	require.True(t, bus.Publish(VoteCast{UserID: "U7", ContentID: "C42", ClanID: "CL9"}))

	require.Eventually(t, func() bool {
		for _, s := range seed {
			if _, ok := manager.Get(ctx, s.namespace, s.key); ok {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := manager.Get(ctx, cache.NamespaceVoting, "results/C99:anonymous")
	assert.True(t, ok)
}
