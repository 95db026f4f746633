package cache

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalQuery_Deterministic(t *testing.T) {
	a := url.Values{}
	a.Set("page", "2")
	a.Set("limit", "50")
	a.Set("sort", "desc")

	b := url.Values{}
	b.Set("sort", "desc")
	b.Set("limit", "50")
	b.Set("page", "2")

	assert.Equal(t, CanonicalQuery(a), CanonicalQuery(b))
	assert.Equal(t, "limit=50&page=2&sort=desc", CanonicalQuery(a))
}

func TestCanonicalQuery_MultiValue(t *testing.T) {
	v := url.Values{}
	v.Add("tag", "fps")
	v.Add("tag", "clutch")

	assert.Equal(t, "tag=clutch&tag=fps", CanonicalQuery(v))
}

func TestRequestKey(t *testing.T) {
	q := url.Values{}
	q.Set("limit", "50")

	assert.Equal(t, "U7:limit=50", RequestKey("U7", q, 0))
	assert.Equal(t, "anonymous:limit=50", RequestKey("", q, 0))
	assert.Equal(t, "U7:limit=50:v2", RequestKey("U7", q, 2))
	assert.Equal(t, "anonymous", RequestKey("", nil, 0))
}

func TestBoundTail_HashesLongTails(t *testing.T) {
	short := "anonymous:limit=50"
	assert.Equal(t, short, boundTail(short))

	long := "anonymous:" + strings.Repeat("x=1&", 60)
	bounded := boundTail(long)
	assert.Len(t, bounded, 16)
	// Hashing is stable
	assert.Equal(t, bounded, boundTail(long))
}

func TestManagerKey_Determinism(t *testing.T) {
	m := NewManager(nil, Config{AppPrefix: "mlg", EnvPrefix: "prod"}, nil, nil)

	k1 := m.Key(NamespaceVoting, "U7:contentId=C42")
	k2 := m.Key(NamespaceVoting, "U7:contentId=C42")
	assert.Equal(t, k1, k2)
	assert.Equal(t, "prod:mlg:api:voting:U7:contentId=C42", k1)
}
