package httpcache

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlg-clan/platform-core/pkg/cache"
	"github.com/mlg-clan/platform-core/pkg/store"
)

func newTestManager(t *testing.T) *cache.Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	redisStore, err := store.NewRedisStore(store.RedisConfig{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	tiered := store.NewTieredStore(redisStore, store.DefaultTieredConfig(), nil, nil)
	t.Cleanup(func() { _ = tiered.Close() })
	return cache.NewManager(tiered, cache.DefaultConfig(), nil, nil)
}

func newTestEngine(t *testing.T, rc *ResponseCache, handlerCalls *atomic.Int64, body string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(rc.Middleware())
	engine.GET("/api/leaderboard/users", func(c *gin.Context) {
		handlerCalls.Add(1)
		c.Data(http.StatusOK, "application/json", []byte(body))
	})
	return engine
}

func TestCacheableRequest(t *testing.T) {
	cases := []struct {
		name     string
		method   string
		target   string
		headers  map[string]string
		eligible bool
	}{
		{"plain GET", http.MethodGet, "/api/leaderboard/users", nil, true},
		{"POST", http.MethodPost, "/api/leaderboard/users", nil, false},
		{"no-cache header", http.MethodGet, "/api/leaderboard/users", map[string]string{"Cache-Control": "no-cache"}, false},
		{"nocache query", http.MethodGet, "/api/leaderboard/users?nocache=true", nil, false},
		{"admin path", http.MethodGet, "/api/admin/users", nil, false},
		{"private path", http.MethodGet, "/api/private/keys", nil, false},
		{"auth me", http.MethodGet, "/api/auth/me", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, tc.target, nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.eligible, CacheableRequest(r))
		})
	}
}

func TestResponseCache_HitFlow(t *testing.T) {
	rc := New(newTestManager(t), DefaultConfig(), nil, nil)
	var calls atomic.Int64
	body := `{"users":[` + strings.Repeat(`{"id":1},`, 1500) + `{"id":2}]}`
	engine := newTestEngine(t, rc, &calls, body)

	// First call: handler runs, MISS
	w1 := httptest.NewRecorder()
	engine.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/api/leaderboard/users?limit=50", nil))
	require.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, "MISS", w1.Header().Get("X-Cache"))
	assert.Equal(t, int64(1), calls.Load())
	etag := w1.Header().Get("ETag")

	// Second call: served from cache, no handler invocation
	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/api/leaderboard/users?limit=50", nil))
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "HIT", w2.Header().Get("X-Cache"))
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, w1.Body.String(), w2.Body.String())
	assert.NotEmpty(t, w2.Header().Get("ETag"))
	assert.Contains(t, w2.Header().Get("Cache-Control"), "max-age=")

	// Third call with matching If-None-Match: 304, no body
	r3 := httptest.NewRequest(http.MethodGet, "/api/leaderboard/users?limit=50", nil)
	r3.Header.Set("If-None-Match", etag)
	w3 := httptest.NewRecorder()
	engine.ServeHTTP(w3, r3)
	assert.Equal(t, http.StatusNotModified, w3.Code)
	assert.Equal(t, "HIT-304", w3.Header().Get("X-Cache"))
	assert.Empty(t, w3.Body.String())
	assert.Equal(t, int64(1), calls.Load())
}

func TestResponseCache_ETagMatchesBody(t *testing.T) {
	rc := New(newTestManager(t), DefaultConfig(), nil, nil)
	var calls atomic.Int64
	body := strings.Repeat("payload ", 600)
	engine := newTestEngine(t, rc, &calls, body)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/leaderboard/users", nil))

	assert.Equal(t, ComputeETag([]byte(body)), w.Header().Get("ETag"))
}

func TestResponseCache_IfModifiedSince(t *testing.T) {
	rc := New(newTestManager(t), DefaultConfig(), nil, nil)
	var calls atomic.Int64
	engine := newTestEngine(t, rc, &calls, `{"ok":true}`)

	w1 := httptest.NewRecorder()
	engine.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/api/leaderboard/users", nil))
	lastModified := w1.Header().Get("Last-Modified")
	require.NotEmpty(t, lastModified)

	r2 := httptest.NewRequest(http.MethodGet, "/api/leaderboard/users", nil)
	r2.Header.Set("If-Modified-Since", lastModified)
	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, r2)
	assert.Equal(t, http.StatusNotModified, w2.Code)

	// A mismatched ETag returns the full body
	r3 := httptest.NewRequest(http.MethodGet, "/api/leaderboard/users", nil)
	r3.Header.Set("If-None-Match", `"other"`)
	w3 := httptest.NewRecorder()
	engine.ServeHTTP(w3, r3)
	assert.Equal(t, http.StatusOK, w3.Code)
	assert.NotEmpty(t, w3.Body.String())
}

func TestResponseCache_ErrorsNotCached(t *testing.T) {
	rc := New(newTestManager(t), DefaultConfig(), nil, nil)
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(rc.Middleware())

	var calls atomic.Int64
	engine.GET("/api/content/broken", func(c *gin.Context) {
		calls.Add(1)
		c.Data(http.StatusInternalServerError, "application/json", []byte(`{"error":"boom"}`))
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/content/broken", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	}
	assert.Equal(t, int64(2), calls.Load())
}

func TestResponseCache_PrincipalsIsolated(t *testing.T) {
	rc := New(newTestManager(t), DefaultConfig(), nil, nil)
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(rc.Middleware())
	engine.GET("/api/user/profile", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(`{"user":"`+c.GetHeader("X-User-ID")+`"}`))
	})

	get := func(principal string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
		r.Header.Set("X-User-ID", principal)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, r)
		return w
	}

	w1 := get("U7")
	w2 := get("U8")
	assert.Contains(t, w1.Body.String(), "U7")
	assert.Contains(t, w2.Body.String(), "U8")
	// Each principal got a fresh entry, not the other's
	assert.Equal(t, "MISS", w2.Header().Get("X-Cache"))
}

func TestResponseCache_SmallBodyStoredUncompressed(t *testing.T) {
	rc := New(newTestManager(t), DefaultConfig(), nil, nil)
	var calls atomic.Int64
	engine := newTestEngine(t, rc, &calls, strings.Repeat("x", 900))

	w1 := httptest.NewRecorder()
	engine.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/api/leaderboard/users", nil))

	r2 := httptest.NewRequest(http.MethodGet, "/api/leaderboard/users", nil)
	r2.Header.Set("Accept-Encoding", "gzip")
	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, r2)
	assert.Equal(t, "HIT", w2.Header().Get("X-Cache"))
	assert.Empty(t, w2.Header().Get("Content-Encoding"))
	assert.Empty(t, w2.Header().Get("Vary"))
}

func TestResponseCache_LargeBodyServedCompressed(t *testing.T) {
	rc := New(newTestManager(t), DefaultConfig(), nil, nil)
	var calls atomic.Int64
	body := strings.Repeat("leaderboard entry ", 250) // ~4KB, highly compressible
	engine := newTestEngine(t, rc, &calls, body)

	w1 := httptest.NewRecorder()
	engine.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/api/leaderboard/users", nil))

	r2 := httptest.NewRequest(http.MethodGet, "/api/leaderboard/users", nil)
	r2.Header.Set("Accept-Encoding", "gzip")
	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, r2)
	require.Equal(t, "HIT", w2.Header().Get("X-Cache"))
	assert.Equal(t, "gzip", w2.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", w2.Header().Get("Vary"))

	gz, err := gzip.NewReader(w2.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, body, string(decoded))

	// A client without gzip support gets the plain body
	w3 := httptest.NewRecorder()
	engine.ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/api/leaderboard/users", nil))
	assert.Equal(t, "HIT", w3.Header().Get("X-Cache"))
	assert.Empty(t, w3.Header().Get("Content-Encoding"))
	assert.Equal(t, body, w3.Body.String())
}

func TestResponseCache_OversizedBodyNotCached(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxResponseSize = 1024
	rc := New(newTestManager(t), cfg, nil, nil)
	var calls atomic.Int64
	engine := newTestEngine(t, rc, &calls, strings.Repeat("x", 2048))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/leaderboard/users", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, int64(2), calls.Load())
}

func TestEndpointTTLTable(t *testing.T) {
	cases := []struct {
		path string
		ttl  time.Duration
	}{
		{"/api/voting/results/C42", 5 * time.Second},
		{"/api/leaderboard/users", 30 * time.Second},
		{"/api/clan/stats/42", 120 * time.Second},
		{"/api/user/profile/U7", 300 * time.Second},
		{"/static/bundle.js", 3600 * time.Second},
		{"/api/live/matches", 60 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			ttl, ok := endpointTTL(tc.path)
			require.True(t, ok)
			assert.Equal(t, tc.ttl, ttl)
		})
	}
}
