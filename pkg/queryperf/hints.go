package queryperf

import (
	"regexp"
	"strings"
)

// Hint is an optimization suggestion derived purely from the normalized SQL
// and its timing
type Hint struct {
	Impact  string `json:"impact"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// nplusOneLiteralThreshold is the IN-list size above which the query likely
// replaces a join
const nplusOneLiteralThreshold = 10

var (
	inListRe           = regexp.MustCompile(`in \(([^)]*)\)`)
	nonSargableWhereRe = regexp.MustCompile(`where[^;]*\b(?:lower|upper|coalesce|cast|substr|date|extract)\s*\(`)
)

// HintsFor evaluates every hint rule against a normalized query and returns
// the ones that apply
func HintsFor(normalized string, execMillis float64, class QueryClass) []Hint {
	var hints []Hint

	isSelect := strings.HasPrefix(normalized, "select")
	hasWhere := strings.Contains(normalized, "where")
	hasLimit := strings.Contains(normalized, "limit")

	if isSelect && !hasWhere && !hasLimit {
		hints = append(hints, Hint{
			Impact:  "high",
			Kind:    "bounded_scan",
			Message: "unbounded select: add a WHERE clause or LIMIT to cap the scan",
		})
	}

	if m := inListRe.FindStringSubmatch(normalized); m != nil {
		if strings.Count(m[1], ",")+1 > nplusOneLiteralThreshold {
			hints = append(hints, Hint{
				Impact:  "medium",
				Kind:    "n_plus_one",
				Message: "large IN list suggests an N+1 access pattern: prefer a join or batched lookup",
			})
		}
	}

	if nonSargableWhereRe.MatchString(normalized) {
		hints = append(hints, Hint{
			Impact:  "medium",
			Kind:    "non_sargable",
			Message: "function call in WHERE defeats index use: move the computation to the parameter side",
		})
	}

	if strings.Contains(normalized, "order by") && execMillis > 2000 {
		hints = append(hints, Hint{
			Impact:  "high",
			Kind:    "missing_index",
			Message: "slow ORDER BY: add an index covering the sort columns",
		})
	}

	if class == ClassVoting && execMillis > 500 {
		hints = append(hints, Hint{
			Impact:  "high",
			Kind:    "cache_voting",
			Message: "slow voting query: serve results from cache or a materialized view",
		})
	}
	if class == ClassLeaderboard && execMillis > 1000 {
		hints = append(hints, Hint{
			Impact:  "high",
			Kind:    "precompute_leaderboard",
			Message: "slow leaderboard query: precompute standings in a table or sorted set",
		})
	}

	return hints
}
