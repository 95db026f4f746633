package invalidation

import (
	"strings"

	"github.com/mlg-clan/platform-core/pkg/cache"
)

// Action names a cache region to clear: a namespace plus a key pattern that
// may contain {placeholder} segments resolved from event bindings. A resolved
// pattern is matched as a substring of the stored key, so one action clears
// every principal and query variant of an endpoint.
type Action struct {
	Namespace string
	Pattern   string
}

// Rule is the ordered action list for one event type
type Rule struct {
	Actions []Action
}

// DefaultRules returns the invalidation rule table. The mapping is exhaustive
// over the event types; an unknown type resolves to no actions.
func DefaultRules() map[EventType]Rule {
	return map[EventType]Rule{
		EventUserProfileUpdated: {Actions: []Action{
			{Namespace: cache.NamespaceUser, Pattern: "profile/{userId}"},
			{Namespace: cache.NamespaceClan, Pattern: "members/{clanId}"},
			{Namespace: cache.NamespaceLeaderboard, Pattern: "users"},
		}},
		EventVoteCast: {Actions: []Action{
			{Namespace: cache.NamespaceVoting, Pattern: "results/{contentId}"},
			{Namespace: cache.NamespaceContent, Pattern: "stats/{contentId}"},
			{Namespace: cache.NamespaceLeaderboard, Pattern: "*"},
			{Namespace: cache.NamespaceUser, Pattern: "stats/{userId}"},
			{Namespace: cache.NamespaceClan, Pattern: "stats/{clanId}"},
		}},
		EventClanMemberAdded: {Actions: []Action{
			{Namespace: cache.NamespaceClan, Pattern: "members/{clanId}"},
			{Namespace: cache.NamespaceClan, Pattern: "stats/{clanId}"},
			{Namespace: cache.NamespaceUser, Pattern: "profile/{userId}"},
			{Namespace: cache.NamespaceLeaderboard, Pattern: "clans"},
		}},
		EventContentCreated: {Actions: []Action{
			{Namespace: cache.NamespaceContent, Pattern: "trending"},
			{Namespace: cache.NamespaceContent, Pattern: "tag/{tag}"},
		}},
		EventTournamentUpdated: {Actions: []Action{
			{Namespace: cache.NamespaceTournament, Pattern: "brackets/{tournamentId}"},
			{Namespace: cache.NamespaceTournament, Pattern: "leaderboard/{tournamentId}"},
			{Namespace: cache.NamespaceUser, Pattern: "profile/{userId}"},
		}},
		EventLeaderboardRefresh: {Actions: []Action{
			{Namespace: cache.NamespaceLeaderboard, Pattern: "*"},
		}},
	}
}

// resolvedAction is an action with all placeholders substituted
type resolvedAction struct {
	Namespace string
	Pattern   string
}

func (a resolvedAction) key() string {
	return a.Namespace + "|" + a.Pattern
}

// globPattern widens a resolved pattern into the glob matched against stored
// keys. Patterns are substrings, so they get surrounding wildcards unless the
// pattern already is the universal one.
func (a resolvedAction) globPattern() string {
	if a.Pattern == "*" || a.Pattern == "" {
		return "*"
	}
	return "*" + a.Pattern + "*"
}

// resolve expands an action's placeholders against the event bindings.
// A multi-valued binding yields one resolved action per value; an action
// whose placeholder has no binding is skipped.
func resolve(action Action, bindings map[string][]string) []resolvedAction {
	patterns := []string{action.Pattern}

	for {
		name, ok := nextPlaceholder(patterns[0])
		if !ok {
			break
		}
		values := bindings[name]
		if len(values) == 0 {
			return nil
		}
		expanded := make([]string, 0, len(patterns)*len(values))
		for _, p := range patterns {
			for _, v := range values {
				expanded = append(expanded, strings.Replace(p, "{"+name+"}", v, 1))
			}
		}
		patterns = expanded
	}

	out := make([]resolvedAction, len(patterns))
	for i, p := range patterns {
		out[i] = resolvedAction{Namespace: action.Namespace, Pattern: p}
	}
	return out
}

// nextPlaceholder returns the first {name} placeholder in pattern
func nextPlaceholder(pattern string) (string, bool) {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		return "", false
	}
	end := strings.IndexByte(pattern[open:], '}')
	if end < 0 {
		return "", false
	}
	return pattern[open+1 : open+end], true
}
