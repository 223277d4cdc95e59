package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when acquiring a conversation lock times out.
var ErrLockTimeout = errors.New("sessions: lock acquisition timeout")

// conversationLock is the lock state for one user. The semaphore
// channel has capacity one; holding the token is holding the lock.
type conversationLock struct {
	sem chan struct{}

	mu       sync.Mutex
	holder   string
	acquired time.Time
}

// LockManager serializes whole engine calls per user, so a user
// message and a scheduler nudge for the same user never interleave
// their turns. Different users acquire independent locks and proceed
// in parallel.
//
// This is distinct from Store.With: the store lock covers only the
// brief state access, while a conversation lock is held across the
// outbound completion call.
//
// Entries are retained for the process lifetime, matching session
// retention; the population is one small struct per chatting user.
type LockManager struct {
	locks      map[string]*conversationLock
	mu         sync.RWMutex
	defaultTTL time.Duration
}

// NewLockManager creates a conversation lock manager. defaultTTL is
// the acquisition timeout used when Acquire is called with zero.
func NewLockManager(defaultTTL time.Duration) *LockManager {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &LockManager{
		locks:      make(map[string]*conversationLock),
		defaultTTL: defaultTTL,
	}
}

func (m *LockManager) lockFor(userID string) *conversationLock {
	m.mu.RLock()
	lock, ok := m.locks[userID]
	m.mu.RUnlock()
	if ok {
		return lock
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lock, ok = m.locks[userID]; ok {
		return lock
	}
	lock = &conversationLock{sem: make(chan struct{}, 1)}
	m.locks[userID] = lock
	return lock
}

// Acquire takes the conversation lock for a user, waiting up to
// timeout if another holder is active. It returns a release function
// that must be called exactly once when the engine call completes.
func (m *LockManager) Acquire(ctx context.Context, userID, holder string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = m.defaultTTL
	}
	lock := m.lockFor(userID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrLockTimeout
	}

	lock.mu.Lock()
	lock.holder = holder
	lock.acquired = time.Now()
	lock.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			lock.mu.Lock()
			lock.holder = ""
			lock.mu.Unlock()
			<-lock.sem
		})
	}

	return release, nil
}

// IsLocked reports whether the user's conversation lock is held.
func (m *LockManager) IsLocked(userID string) bool {
	m.mu.RLock()
	lock, ok := m.locks[userID]
	m.mu.RUnlock()

	if !ok {
		return false
	}
	return len(lock.sem) > 0
}

// Holder returns the current holder tag and acquisition time, if the
// lock is held.
func (m *LockManager) Holder(userID string) (string, time.Time, bool) {
	m.mu.RLock()
	lock, ok := m.locks[userID]
	m.mu.RUnlock()

	if !ok {
		return "", time.Time{}, false
	}

	lock.mu.Lock()
	defer lock.mu.Unlock()
	if lock.holder == "" {
		return "", time.Time{}, false
	}
	return lock.holder, lock.acquired, true
}
