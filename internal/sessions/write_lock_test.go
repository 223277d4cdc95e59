package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLockManagerAcquireRelease(t *testing.T) {
	mgr := NewLockManager(time.Second)

	release, err := mgr.Acquire(context.Background(), "1", "test", 0)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !mgr.IsLocked("1") {
		t.Fatalf("expected lock to be held")
	}
	holder, _, ok := mgr.Holder("1")
	if !ok || holder != "test" {
		t.Fatalf("Holder() = %q, %v; want test, true", holder, ok)
	}

	release()
	if mgr.IsLocked("1") {
		t.Fatalf("expected lock to be released")
	}

	// Double release must be a no-op.
	release()
}

func TestLockManagerTimeout(t *testing.T) {
	mgr := NewLockManager(time.Second)

	release, err := mgr.Acquire(context.Background(), "1", "first", 0)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	_, err = mgr.Acquire(context.Background(), "1", "second", 20*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestLockManagerContextCancellation(t *testing.T) {
	mgr := NewLockManager(time.Second)

	release, err := mgr.Acquire(context.Background(), "1", "first", 0)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = mgr.Acquire(ctx, "1", "second", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLockManagerIndependentUsers(t *testing.T) {
	mgr := NewLockManager(time.Second)

	releaseA, err := mgr.Acquire(context.Background(), "a", "test", 0)
	if err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}
	defer releaseA()

	// A held lock for one user must not block another user.
	releaseB, err := mgr.Acquire(context.Background(), "b", "test", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire(b) error = %v", err)
	}
	releaseB()
}

func TestLockManagerSerializesHolders(t *testing.T) {
	mgr := NewLockManager(time.Second)

	var mu sync.Mutex
	var order []string
	inCritical := false

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			release, err := mgr.Acquire(context.Background(), "1", "worker", 5*time.Second)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			mu.Lock()
			if inCritical {
				t.Error("two holders inside the critical section")
			}
			inCritical = true
			order = append(order, "enter")
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical = false
			order = append(order, "exit")
			mu.Unlock()
			release()
		}(i)
	}
	wg.Wait()

	if len(order) != 20 {
		t.Fatalf("expected 20 events, got %d", len(order))
	}
	for i := 0; i < len(order); i += 2 {
		if order[i] != "enter" || order[i+1] != "exit" {
			t.Fatalf("critical sections interleaved: %v", order)
		}
	}
}
