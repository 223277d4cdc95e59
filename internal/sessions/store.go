package sessions

import (
	"sync"
	"time"
)

// Store is the in-memory session store. It is safe for concurrent use
// by the message handlers and the idle scheduler.
//
// Mutation happens only inside With, which holds a per-session lock so
// read-modify-write sequences (append a turn, then read the counter)
// are atomic relative to the scheduler sweep. Sessions for different
// users never contend with each other.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (st *Store) entryFor(userID string) *entry {
	st.mu.RLock()
	e, ok := st.entries[userID]
	st.mu.RUnlock()
	if ok {
		return e
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if e, ok = st.entries[userID]; ok {
		return e
	}
	e = &entry{session: Session{UserID: userID}}
	st.entries[userID] = e
	return e
}

// With executes fn against the user's session with no other mutator
// interleaved, creating an empty session on first use. fn must not
// block on network or hold the session beyond the call.
func (st *Store) With(userID string, fn func(*Session)) {
	e := st.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.session)
}

// Get returns a copy of the user's session for inspection, or false if
// it does not exist. The copy is detached; mutating it has no effect.
func (st *Store) Get(userID string) (*Session, bool) {
	st.mu.RLock()
	e, ok := st.entries[userID]
	st.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone(), true
}

// GetOrCreate returns a copy of the user's session, creating an empty
// one if needed.
func (st *Store) GetOrCreate(userID string) *Session {
	e := st.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone()
}

// Reset clears history and counters and un-ends the session, keeping
// the identity. LastActive is preserved at the call time.
func (st *Store) Reset(userID string, now time.Time) {
	st.With(userID, func(s *Session) {
		s.History = nil
		s.AutoPrompts = 0
		s.Ended = false
		s.Touch(now)
	})
}

// MarkActivity records real user activity: advances LastActive, zeroes
// the nudge counter, and clears the ended flag.
func (st *Store) MarkActivity(userID string, now time.Time) {
	st.With(userID, func(s *Session) {
		s.Touch(now)
		s.AutoPrompts = 0
		s.Ended = false
	})
}

// SnapshotEligible returns the identifiers of sessions that look
// nudge-eligible at now: silent longer than idleThreshold, not ended,
// under the nudge cap, and with history to continue.
//
// The result is a snapshot; a session may become ineligible before it
// is processed (the user just replied). Callers must re-validate at
// mutation time with ClaimNudge rather than trusting the snapshot.
func (st *Store) SnapshotEligible(now time.Time, idleThreshold time.Duration, maxPrompts int) []string {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.entries))
	for _, e := range st.entries {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	var eligible []string
	for _, e := range entries {
		e.mu.Lock()
		if nudgeEligible(&e.session, now, idleThreshold, maxPrompts) {
			eligible = append(eligible, e.session.UserID)
		}
		e.mu.Unlock()
	}
	return eligible
}

// ClaimNudge atomically re-validates eligibility and, if still
// eligible, increments the nudge counter and advances LastActive so
// concurrent sweeps cannot double-claim the same session. It returns
// whether the nudge was claimed.
func (st *Store) ClaimNudge(userID string, now time.Time, idleThreshold time.Duration, maxPrompts int) bool {
	claimed := false
	st.With(userID, func(s *Session) {
		if !nudgeEligible(s, now, idleThreshold, maxPrompts) {
			return
		}
		s.AutoPrompts++
		s.Touch(now)
		claimed = true
	})
	return claimed
}

// Len returns the number of tracked sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

func nudgeEligible(s *Session, now time.Time, idleThreshold time.Duration, maxPrompts int) bool {
	if s.Ended || s.AutoPrompts >= maxPrompts {
		return false
	}
	if len(s.History) == 0 {
		return false
	}
	return now.Sub(s.LastActive) > idleThreshold
}
