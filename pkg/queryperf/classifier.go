package queryperf

import (
	"strings"
	"time"
)

// QueryClass labels a query by the gaming domain it serves
type QueryClass string

// Query classes, from the ordered substring rules
const (
	ClassVoting      QueryClass = "voting"
	ClassLeaderboard QueryClass = "leaderboard"
	ClassTournament  QueryClass = "tournament"
	ClassUser        QueryClass = "user"
	ClassClan        QueryClass = "clan"
	ClassContent     QueryClass = "content"
	ClassOtherRead   QueryClass = "other_read"
	ClassOtherWrite  QueryClass = "other_write"
)

// Classify assigns a class by ordered substring rules; the first match wins
func Classify(normalized string) QueryClass {
	switch {
	case strings.Contains(normalized, "voting"):
		return ClassVoting
	case strings.Contains(normalized, "leaderboard"),
		strings.Contains(normalized, "order by") && strings.Contains(normalized, "desc"):
		return ClassLeaderboard
	case strings.Contains(normalized, "tournament"):
		return ClassTournament
	case strings.Contains(normalized, "users"), strings.Contains(normalized, "user_"):
		return ClassUser
	case strings.Contains(normalized, "clan"):
		return ClassClan
	case strings.Contains(normalized, "content"):
		return ClassContent
	case strings.HasPrefix(normalized, "select"):
		return ClassOtherRead
	default:
		return ClassOtherWrite
	}
}

// ClassPriority returns the attention tier for a class
func ClassPriority(class QueryClass) string {
	switch class {
	case ClassVoting, ClassLeaderboard:
		return "high"
	case ClassTournament, ClassUser, ClassClan:
		return "medium"
	default:
		return "low"
	}
}

// verySlowThreshold flags pathological queries regardless of class
const verySlowThreshold = 5000 * time.Millisecond

// SLAFor returns the slow-query threshold for a class
func SLAFor(class QueryClass) time.Duration {
	switch class {
	case ClassVoting:
		return 100 * time.Millisecond
	case ClassLeaderboard:
		return 500 * time.Millisecond
	default:
		return 1000 * time.Millisecond
	}
}
