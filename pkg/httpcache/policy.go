package httpcache

import (
	"net/http"
	"strings"
	"time"

	"github.com/mlg-clan/platform-core/pkg/cache"
)

// privateMarkers are path fragments that exclude an endpoint from caching
var privateMarkers = []string{"admin", "private", "auth/me", "health", "metrics"}

// CacheableRequest reports whether a request is eligible for response
// caching: GET only, no explicit cache opt-out, and not a private or
// administrative endpoint.
func CacheableRequest(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if strings.Contains(strings.ToLower(r.Header.Get("Cache-Control")), "no-cache") {
		return false
	}
	if r.URL.Query().Get("nocache") == "true" {
		return false
	}
	path := strings.ToLower(r.URL.Path)
	for _, marker := range privateMarkers {
		if strings.Contains(path, marker) {
			return false
		}
	}
	return true
}

// endpointTTL resolves the TTL for a path from the closed endpoint pattern
// table. The boolean reports whether a pattern matched.
func endpointTTL(path string) (time.Duration, bool) {
	p := strings.ToLower(path)
	switch {
	case strings.Contains(p, "voting"):
		return 5 * time.Second, true
	case strings.Contains(p, "leaderboard"):
		return 30 * time.Second, true
	case strings.Contains(p, "clan") && strings.Contains(p, "stats"):
		return 120 * time.Second, true
	case strings.Contains(p, "user"):
		return 300 * time.Second, true
	case strings.Contains(p, "static"):
		return 3600 * time.Second, true
	case strings.Contains(p, "live"), strings.Contains(p, "realtime"):
		return 60 * time.Second, true
	}
	return 0, false
}

// NamespaceFor maps a request path to its cache namespace
func NamespaceFor(path string) string {
	p := strings.ToLower(path)
	switch {
	case strings.Contains(p, "voting"), strings.Contains(p, "vote"):
		return cache.NamespaceVoting
	case strings.Contains(p, "leaderboard"):
		return cache.NamespaceLeaderboard
	case strings.Contains(p, "clan"):
		return cache.NamespaceClan
	case strings.Contains(p, "user"):
		return cache.NamespaceUser
	case strings.Contains(p, "content"):
		return cache.NamespaceContent
	case strings.Contains(p, "tournament"):
		return cache.NamespaceTournament
	case strings.Contains(p, "static"):
		return cache.NamespaceStatic
	default:
		return cache.NamespaceGeneral
	}
}
