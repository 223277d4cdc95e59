// Package scheduler implements the idle-engagement sweep: a single
// background loop that scans all sessions on a fixed period and nudges
// the ones that have gone silent.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/solacebot/solace/internal/engine"
	"github.com/solacebot/solace/internal/sessions"
)

// Nudger dispatches a scheduler-initiated nudge for one user.
type Nudger interface {
	HandleNudge(ctx context.Context, userID string) (string, error)
}

// TypingFunc signals a typing indicator before the nudge lands.
type TypingFunc func(ctx context.Context, userID string) error

// Config configures a Scheduler.
type Config struct {
	Store  *sessions.Store
	Nudger Nudger

	// Typing is optional; when set it is called best-effort before
	// each nudge dispatch.
	Typing TypingFunc

	// SweepPeriod is the interval between sweeps.
	SweepPeriod time.Duration

	// IdleThreshold is the minimum silence before a session becomes
	// nudge-eligible.
	IdleThreshold time.Duration

	// MaxAutoPrompts caps nudges sent since the user last spoke.
	MaxAutoPrompts int

	// DispatchTimeout bounds a single nudge dispatch so a hung
	// completion call cannot wedge shutdown.
	DispatchTimeout time.Duration

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Scheduler runs the sweep loop. One instance per process.
type Scheduler struct {
	store           *sessions.Store
	nudger          Nudger
	typing          TypingFunc
	sweepPeriod     time.Duration
	idleThreshold   time.Duration
	maxAutoPrompts  int
	dispatchTimeout time.Duration
	logger          *slog.Logger
	now             func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}

	// wg tracks in-flight nudge dispatches across sweeps.
	wg sync.WaitGroup
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.SweepPeriod <= 0 {
		cfg.SweepPeriod = 30 * time.Second
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = 120 * time.Second
	}
	if cfg.MaxAutoPrompts <= 0 {
		cfg.MaxAutoPrompts = 3
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		store:           cfg.Store,
		nudger:          cfg.Nudger,
		typing:          cfg.Typing,
		sweepPeriod:     cfg.SweepPeriod,
		idleThreshold:   cfg.IdleThreshold,
		maxAutoPrompts:  cfg.MaxAutoPrompts,
		dispatchTimeout: cfg.DispatchTimeout,
		logger:          cfg.Logger.With("component", "scheduler"),
		now:             cfg.Now,
	}
}

// Start launches the sweep loop in the background. Calling Start on a
// running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doneCh = make(chan struct{})
	s.running = true

	s.logger.Info("idle scheduler started",
		"sweep_period", s.sweepPeriod,
		"idle_threshold", s.idleThreshold,
		"max_auto_prompts", s.maxAutoPrompts)

	go s.run(ctx)
}

// run executes sweep cycles until cancellation. The wait between
// cycles is a cancellable select, so Stop wakes it immediately.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	timer := time.NewTimer(s.sweepPeriod)
	defer timer.Stop()

	for {
		s.sweep(ctx)

		timer.Reset(s.sweepPeriod)
		select {
		case <-ctx.Done():
			s.logger.Info("idle scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

// sweep runs one scan-and-dispatch cycle. The snapshot is advisory:
// eligibility is re-validated atomically in ClaimNudge, closing the
// race where a user who just replied would still get a stale nudge.
// Dispatches run outside the session lock so one slow completion call
// never blocks the sweep for other users.
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now()
	eligible := s.store.SnapshotEligible(now, s.idleThreshold, s.maxAutoPrompts)
	if len(eligible) == 0 {
		return
	}
	s.logger.Debug("sweep found idle sessions", "count", len(eligible))

	for _, userID := range eligible {
		if ctx.Err() != nil {
			return
		}
		if !s.store.ClaimNudge(userID, now, s.idleThreshold, s.maxAutoPrompts) {
			continue
		}
		s.wg.Add(1)
		go s.dispatch(ctx, userID)
	}
}

// dispatch sends one nudge. Failures are logged and discarded; one
// user's failure never aborts the sweep or affects other users.
func (s *Scheduler) dispatch(ctx context.Context, userID string) {
	defer s.wg.Done()

	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	if s.typing != nil {
		if err := s.typing(dctx, userID); err != nil {
			s.logger.Debug("typing indicator failed", "user_id", userID, "error", err)
		}
	}

	if _, err := s.nudger.HandleNudge(dctx, userID); err != nil {
		if errors.Is(err, engine.ErrNothingToContinue) {
			// Session was reset between claim and dispatch; nothing to do.
			return
		}
		s.logger.Warn("idle nudge failed", "user_id", userID, "error", err)
		return
	}
	s.logger.Info("idle nudge sent", "user_id", userID)
}

// Stop cancels the loop and waits for it and any in-flight dispatches
// to drain, bounded by ctx. Idempotent: a second Stop while the first
// is draining returns immediately.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	doneCh := s.doneCh
	s.mu.Unlock()

	cancel()

	drained := make(chan struct{})
	go func() {
		<-doneCh
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
