package sessions

import (
	"sync"
	"testing"
	"time"

	"github.com/solacebot/solace/pkg/models"
)

func TestStoreGetOrCreate(t *testing.T) {
	store := NewStore()

	s := store.GetOrCreate("42")
	if s.UserID != "42" {
		t.Fatalf("expected user id 42, got %q", s.UserID)
	}
	if len(s.History) != 0 {
		t.Fatalf("expected empty history, got %d turns", len(s.History))
	}

	store.With("42", func(s *Session) {
		s.Append(models.RoleUser, "hello")
	})

	again := store.GetOrCreate("42")
	if len(again.History) != 1 {
		t.Fatalf("expected existing session to be returned, got %d turns", len(again.History))
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", store.Len())
	}
}

func TestStoreHandlesAreDetached(t *testing.T) {
	store := NewStore()
	store.With("1", func(s *Session) {
		s.Append(models.RoleSystem, "prompt")
	})

	copy := store.GetOrCreate("1")
	copy.History[0].Content = "mutated"
	copy.Ended = true

	original, ok := store.Get("1")
	if !ok {
		t.Fatalf("expected session to exist")
	}
	if original.History[0].Content != "prompt" {
		t.Fatalf("store state mutated through a handed-out copy")
	}
	if original.Ended {
		t.Fatalf("store state mutated through a handed-out copy")
	}
}

func TestStoreResetIsIdempotent(t *testing.T) {
	store := NewStore()
	now := time.Now()

	store.With("7", func(s *Session) {
		s.EnsureSystemTurn("prompt")
		s.Append(models.RoleUser, "hi")
		s.AutoPrompts = 2
		s.Ended = true
	})

	store.Reset("7", now)
	store.Reset("7", now)

	s, _ := store.Get("7")
	if len(s.History) != 0 {
		t.Fatalf("expected empty history after reset, got %d turns", len(s.History))
	}
	if s.AutoPrompts != 0 || s.Ended {
		t.Fatalf("expected counters cleared, got prompts=%d ended=%v", s.AutoPrompts, s.Ended)
	}

	// A turn after reset must get exactly one system turn again.
	store.With("7", func(sess *Session) {
		sess.EnsureSystemTurn("prompt")
		sess.EnsureSystemTurn("prompt")
		sess.Append(models.RoleUser, "hi")
	})
	s, _ = store.Get("7")
	systemTurns := 0
	for _, turn := range s.History {
		if turn.Role == models.RoleSystem {
			systemTurns++
		}
	}
	if systemTurns != 1 {
		t.Fatalf("expected exactly one system turn, got %d", systemTurns)
	}
	if s.History[0].Role != models.RoleSystem {
		t.Fatalf("expected system turn first, got %q", s.History[0].Role)
	}
}

func TestTouchIsMonotonic(t *testing.T) {
	store := NewStore()
	later := time.Now()
	earlier := later.Add(-time.Minute)

	store.With("1", func(s *Session) { s.Touch(later) })
	store.With("1", func(s *Session) { s.Touch(earlier) })

	s, _ := store.Get("1")
	if !s.LastActive.Equal(later) {
		t.Fatalf("LastActive moved backwards: %v", s.LastActive)
	}
}

func TestSnapshotEligible(t *testing.T) {
	store := NewStore()
	now := time.Now()
	threshold := 120 * time.Second

	seed := func(id string, idle time.Duration, prompts int, ended bool, turns int) {
		store.With(id, func(s *Session) {
			for i := 0; i < turns; i++ {
				s.Append(models.RoleUser, "x")
			}
			s.LastActive = now.Add(-idle)
			s.AutoPrompts = prompts
			s.Ended = ended
		})
	}

	seed("idle", 121*time.Second, 0, false, 1)
	seed("fresh", 10*time.Second, 0, false, 1)
	seed("ended", 300*time.Second, 0, true, 1)
	seed("capped", 300*time.Second, 3, false, 1)
	seed("empty", 300*time.Second, 0, false, 0)

	eligible := store.SnapshotEligible(now, threshold, 3)
	if len(eligible) != 1 || eligible[0] != "idle" {
		t.Fatalf("SnapshotEligible() = %v, want [idle]", eligible)
	}
}

func TestClaimNudgeRevalidates(t *testing.T) {
	store := NewStore()
	now := time.Now()
	threshold := 120 * time.Second

	store.With("1", func(s *Session) {
		s.Append(models.RoleUser, "x")
		s.LastActive = now.Add(-200 * time.Second)
	})

	if !store.ClaimNudge("1", now, threshold, 3) {
		t.Fatalf("expected first claim to succeed")
	}

	// The claim advanced LastActive, so an immediate re-claim from a
	// concurrent sweep must fail.
	if store.ClaimNudge("1", now, threshold, 3) {
		t.Fatalf("expected stale re-claim to fail")
	}

	s, _ := store.Get("1")
	if s.AutoPrompts != 1 {
		t.Fatalf("expected 1 auto prompt, got %d", s.AutoPrompts)
	}
}

func TestClaimNudgeRespectsCapUnderConcurrency(t *testing.T) {
	store := NewStore()
	base := time.Now()
	threshold := 120 * time.Second

	store.With("1", func(s *Session) {
		s.Append(models.RoleUser, "x")
		s.LastActive = base.Add(-10 * time.Minute)
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		// Each simulated sweep uses a later clock so idleness alone
		// never blocks the claim; only the cap should.
		now := base.Add(time.Duration(i+1) * 10 * time.Minute)
		go func(now time.Time) {
			defer wg.Done()
			if store.ClaimNudge("1", now, threshold, 3) {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}(now)
	}
	wg.Wait()

	if claims != 3 {
		t.Fatalf("expected exactly 3 successful claims, got %d", claims)
	}
	s, _ := store.Get("1")
	if s.AutoPrompts != 3 {
		t.Fatalf("expected counter at cap, got %d", s.AutoPrompts)
	}
}

func TestWithSerializesMutations(t *testing.T) {
	store := NewStore()
	const writers = 50
	const perWriter = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				store.With("1", func(s *Session) {
					s.Append(models.RoleUser, "turn")
				})
			}
		}()
	}
	wg.Wait()

	s, _ := store.Get("1")
	if len(s.History) != writers*perWriter {
		t.Fatalf("expected %d turns, got %d", writers*perWriter, len(s.History))
	}
}
