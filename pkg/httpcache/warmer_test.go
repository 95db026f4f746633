package httpcache

import (
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu    sync.Mutex
	paths []string
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.paths = append(h.paths, r.URL.Path)
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (h *recordingHandler) served() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

func TestWarmer_ExecutesQueuedRequests(t *testing.T) {
	handler := &recordingHandler{}
	cfg := DefaultWarmerConfig()
	cfg.DrainInterval = 10 * time.Millisecond
	w := NewWarmer(handler, cfg, nil)
	w.Start()
	defer w.Stop()

	require.True(t, w.Enqueue(WarmupRequest{Path: "/api/leaderboard/users", Query: url.Values{"limit": {"50"}}, Priority: 8}))
	require.True(t, w.Enqueue(WarmupRequest{Path: "/api/content/trending", Priority: 3}))

	require.Eventually(t, func() bool {
		return len(handler.served()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	warmed, dropped := w.Stats()
	assert.Equal(t, int64(2), warmed)
	assert.Equal(t, int64(0), dropped)
}

func TestWarmer_DropsWhenQueueFull(t *testing.T) {
	handler := &recordingHandler{}
	cfg := DefaultWarmerConfig()
	cfg.QueueSize = 2
	w := NewWarmer(handler, cfg, nil) // not started: nothing drains

	assert.True(t, w.Enqueue(WarmupRequest{Path: "/a"}))
	assert.True(t, w.Enqueue(WarmupRequest{Path: "/b"}))
	assert.False(t, w.Enqueue(WarmupRequest{Path: "/c"}))

	_, dropped := w.Stats()
	assert.Equal(t, int64(1), dropped)
}

func TestScheduledRefresher_ReenqueuesOnInterval(t *testing.T) {
	handler := &recordingHandler{}
	cfg := DefaultWarmerConfig()
	cfg.DrainInterval = 5 * time.Millisecond
	w := NewWarmer(handler, cfg, nil)
	w.Start()
	defer w.Stop()

	refresher := NewScheduledRefresher(w, []WarmupRequest{
		{Path: "/api/leaderboard/users", Priority: 8},
	}, 10*time.Millisecond, nil)
	refresher.Start()
	defer refresher.Stop()

	require.Eventually(t, func() bool {
		return len(handler.served()) >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduledRefresher_DisabledWithZeroInterval(t *testing.T) {
	handler := &recordingHandler{}
	w := NewWarmer(handler, DefaultWarmerConfig(), nil)
	refresher := NewScheduledRefresher(w, []WarmupRequest{{Path: "/x"}}, 0, nil)

	refresher.Start() // no-op
	refresher.Stop()
	assert.Empty(t, handler.served())
}
