package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// PriorityKey is the gin context key for the classified request priority
const PriorityKey = "request_priority"

// PriorityHeader overrides the endpoint classification when present
const PriorityHeader = "X-Gaming-Priority"

// PriorityFor classifies a path against the closed endpoint table. Voting
// traffic outranks everything; static and unknown paths sit at the floor.
func PriorityFor(path string) int {
	switch {
	case strings.Contains(path, "/voting"):
		return 10
	case strings.Contains(path, "/leaderboard"), strings.Contains(path, "/tournament"):
		return 8
	case strings.Contains(path, "/live"), strings.Contains(path, "/realtime"):
		return 7
	case strings.Contains(path, "/user"), strings.Contains(path, "/clan"):
		return 5
	case strings.Contains(path, "/content"):
		return 3
	default:
		return 1
	}
}

// Priority classifies each request and exposes the result under PriorityKey
// and as a response header. An explicit X-Gaming-Priority request header
// wins, clipped to [0, 10].
func Priority() gin.HandlerFunc {
	return func(c *gin.Context) {
		priority := PriorityFor(c.Request.URL.Path)
		if raw := c.GetHeader(PriorityHeader); raw != "" {
			if override, err := strconv.Atoi(raw); err == nil {
				if override < 0 {
					override = 0
				}
				if override > 10 {
					override = 10
				}
				priority = override
			}
		}
		c.Set(PriorityKey, priority)
		c.Writer.Header().Set(PriorityHeader, strconv.Itoa(priority))
		c.Next()
	}
}

// requestPriority reads the classified priority from the context, falling
// back to the path table when Priority did not run
func requestPriority(c *gin.Context) int {
	if v, ok := c.Get(PriorityKey); ok {
		if p, ok := v.(int); ok {
			return p
		}
	}
	return PriorityFor(c.Request.URL.Path)
}
