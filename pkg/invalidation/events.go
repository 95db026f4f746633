// Package invalidation translates domain events into cache-key deletions:
// a rule table maps each event type to its target patterns, a dependency
// graph cascades to related caches, and a batcher coalesces high-frequency
// events. Failed deletions retry with linear backoff and land in a
// dead-letter log when the budget is exhausted.
package invalidation

// EventType identifies a domain event
type EventType string

// Domain event types
const (
	EventUserProfileUpdated EventType = "user:profile:updated"
	EventVoteCast           EventType = "vote:cast"
	EventClanMemberAdded    EventType = "clan:member:added"
	EventContentCreated     EventType = "content:created"
	EventTournamentUpdated  EventType = "tournament:updated"
	EventLeaderboardRefresh EventType = "leaderboard:refresh"
)

// Event is a tagged domain event. Each variant carries an explicit payload
// shape; the rule table is an exhaustive mapping over the closed set of
// types.
type Event interface {
	// Type returns the event type tag
	Type() EventType

	// EntityID returns the primary entity the event concerns, used as the
	// batching key
	EntityID() string

	// Bindings returns the named placeholder values for rule patterns.
	// Multi-valued bindings expand into one action per value.
	Bindings() map[string][]string

	// HighPriority reports whether the event bypasses batching. Voting,
	// leaderboard refreshes, and tournament updates carry the tightest
	// staleness budget.
	HighPriority() bool
}

// VoteCast is emitted after a burn-to-vote transaction completes
type VoteCast struct {
	UserID    string
	ContentID string
	ClanID    string
}

// Type returns the event type tag
func (e VoteCast) Type() EventType { return EventVoteCast }

// EntityID returns the voting user; repeated votes by one user batch together
func (e VoteCast) EntityID() string { return e.UserID }

// Bindings returns the rule placeholder values
func (e VoteCast) Bindings() map[string][]string {
	b := map[string][]string{
		"userId":    {e.UserID},
		"contentId": {e.ContentID},
	}
	if e.ClanID != "" {
		b["clanId"] = []string{e.ClanID}
	}
	return b
}

// HighPriority reports that votes are never batched behind the window
func (e VoteCast) HighPriority() bool { return true }

// UserProfileUpdated is emitted when a user edits their profile
type UserProfileUpdated struct {
	UserID  string
	ClanIDs []string
}

// Type returns the event type tag
func (e UserProfileUpdated) Type() EventType { return EventUserProfileUpdated }

// EntityID returns the updated user
func (e UserProfileUpdated) EntityID() string { return e.UserID }

// Bindings returns the rule placeholder values
func (e UserProfileUpdated) Bindings() map[string][]string {
	b := map[string][]string{"userId": {e.UserID}}
	if len(e.ClanIDs) > 0 {
		b["clanId"] = e.ClanIDs
	}
	return b
}

// HighPriority reports that profile edits are batchable
func (e UserProfileUpdated) HighPriority() bool { return false }

// ClanMemberAdded is emitted when a user joins a clan
type ClanMemberAdded struct {
	ClanID string
	UserID string
}

// Type returns the event type tag
func (e ClanMemberAdded) Type() EventType { return EventClanMemberAdded }

// EntityID returns the clan gaining the member
func (e ClanMemberAdded) EntityID() string { return e.ClanID }

// Bindings returns the rule placeholder values
func (e ClanMemberAdded) Bindings() map[string][]string {
	return map[string][]string{
		"clanId": {e.ClanID},
		"userId": {e.UserID},
	}
}

// HighPriority reports that membership changes are batchable
func (e ClanMemberAdded) HighPriority() bool { return false }

// ContentCreated is emitted when new content is submitted
type ContentCreated struct {
	ContentID string
	AuthorID  string
	Tags      []string
}

// Type returns the event type tag
func (e ContentCreated) Type() EventType { return EventContentCreated }

// EntityID returns the new content id
func (e ContentCreated) EntityID() string { return e.ContentID }

// Bindings returns the rule placeholder values
func (e ContentCreated) Bindings() map[string][]string {
	b := map[string][]string{
		"contentId": {e.ContentID},
		"userId":    {e.AuthorID},
	}
	if len(e.Tags) > 0 {
		b["tag"] = e.Tags
	}
	return b
}

// HighPriority reports that content submissions are batchable
func (e ContentCreated) HighPriority() bool { return false }

// TournamentUpdated is emitted when brackets or standings change
type TournamentUpdated struct {
	TournamentID   string
	ParticipantIDs []string
}

// Type returns the event type tag
func (e TournamentUpdated) Type() EventType { return EventTournamentUpdated }

// EntityID returns the tournament id
func (e TournamentUpdated) EntityID() string { return e.TournamentID }

// Bindings returns the rule placeholder values
func (e TournamentUpdated) Bindings() map[string][]string {
	b := map[string][]string{"tournamentId": {e.TournamentID}}
	if len(e.ParticipantIDs) > 0 {
		b["userId"] = e.ParticipantIDs
	}
	return b
}

// HighPriority reports that tournament updates bypass batching
func (e TournamentUpdated) HighPriority() bool { return true }

// LeaderboardRefresh forces every leaderboard cache out
type LeaderboardRefresh struct{}

// Type returns the event type tag
func (e LeaderboardRefresh) Type() EventType { return EventLeaderboardRefresh }

// EntityID returns the fixed refresh key
func (e LeaderboardRefresh) EntityID() string { return "leaderboard" }

// Bindings returns no placeholder values
func (e LeaderboardRefresh) Bindings() map[string][]string { return nil }

// HighPriority reports that refreshes bypass batching
func (e LeaderboardRefresh) HighPriority() bool { return true }
