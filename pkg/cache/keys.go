package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// AnonymousPrincipal is the principal tag for unauthenticated requests
const AnonymousPrincipal = "anonymous"

// MaxKeyTailLength is the longest key tail stored verbatim. Longer tails are
// replaced by a hash so keys stay bounded while the namespace prefix remains
// readable for observability.
const MaxKeyTailLength = 100

// CanonicalQuery serializes query parameters deterministically: keys sorted
// lexicographically, values joined as k=v pairs with '&'. Two semantically
// equivalent query objects always canonicalize identically.
func CanonicalQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for j, v := range vs {
			if i > 0 || j > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(v)
		}
	}
	return sb.String()
}

// RequestKey builds the logical key for a request-scoped cache entry:
// {principal|anonymous}:{canonicalQuery}[:v{version}]. An empty principal
// maps to anonymous; version 0 omits the suffix.
func RequestKey(principal string, query url.Values, version int) string {
	if principal == "" {
		principal = AnonymousPrincipal
	}

	key := principal
	if q := CanonicalQuery(query); q != "" {
		key += ":" + q
	}
	if version > 0 {
		key += fmt.Sprintf(":v%d", version)
	}
	return key
}

// hashTail returns the first 16 hex chars of the SHA-256 of s
func hashTail(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// boundTail replaces tails longer than MaxKeyTailLength with their hash
func boundTail(tail string) string {
	if len(tail) > MaxKeyTailLength {
		return hashTail(tail)
	}
	return tail
}
