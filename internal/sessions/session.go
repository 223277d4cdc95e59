// Package sessions owns per-user conversational state.
//
// The store is the only shared mutable resource in the process. All
// reads and writes of a session's fields go through the store's
// synchronized accessors; no caller ever holds a raw mutable reference.
package sessions

import (
	"time"

	"github.com/solacebot/solace/pkg/models"
)

// Session is the conversational state for one user.
type Session struct {
	// UserID is the stable platform identifier.
	UserID string

	// History is the ordered turn sequence sent verbatim to the
	// completion service. When non-empty, the first turn is always the
	// single system turn for this session lifetime.
	History []models.Turn

	// LastActive is the timestamp of the most recent activity.
	// Monotonically non-decreasing.
	LastActive time.Time

	// AutoPrompts counts idle nudges sent since the user last spoke
	// or the session was reset.
	AutoPrompts int

	// Ended is set when the user explicitly closes the conversation.
	// An ended session is excluded from nudging but keeps its history;
	// any new user message clears the flag.
	Ended bool
}

// Append adds a turn to the history.
func (s *Session) Append(role models.Role, content string) {
	s.History = append(s.History, models.Turn{Role: role, Content: content})
}

// EnsureSystemTurn inserts the system turn if the history is empty.
// It is a no-op otherwise, so the system turn exists exactly once per
// session lifetime.
func (s *Session) EnsureSystemTurn(prompt string) {
	if len(s.History) == 0 {
		s.History = append(s.History, models.Turn{Role: models.RoleSystem, Content: prompt})
	}
}

// Touch advances LastActive, never moving it backwards.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActive) {
		s.LastActive = now
	}
}

// clone returns a deep copy safe to hand out of the store.
func (s *Session) clone() *Session {
	copied := *s
	copied.History = make([]models.Turn, len(s.History))
	copy(copied.History, s.History)
	return &copied
}
