// Package engine implements the conversation engine: it owns the turn
// flow from inbound text through the completion service and back out
// to the delivery sink.
//
// Ingress-triggered messages and scheduler-triggered nudges go through
// the same code path. The engine serializes concurrent calls for the
// same user with a conversation lock, so the two paths can never
// interleave turns in a session's history.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solacebot/solace/internal/sessions"
	"github.com/solacebot/solace/pkg/models"
)

// SystemPrompt is the persona inserted once per session lifetime as
// the first history turn.
const SystemPrompt = "Ты — добрый и тёплый психолог, который помогает трейдерам. " +
	"Говори простыми словами, как хороший друг. " +
	"Избегай сложных фраз. Поддерживай человека, задавай вопросы, если он молчит. " +
	"Пиши без форматирования. Используй эмодзи, чтобы было тепло и понятно."

// Synthesized prompts. They enter the history as user turns but are
// authored by the system; their wording is not shown to the user.
const (
	continuePrompt = "Пользователь не знает, что написать. Помоги продолжить разговор, задай простой, добрый вопрос в контексте."
	nudgePrompt    = "Пользователь молчит. Задай добрый, поддерживающий вопрос, чтобы мягко продолжить разговор."
)

// Completer is the completion service client. Implementations return
// ErrAuthUnavailable when the credential fetch fails and a
// *CompletionError for failed or malformed completion calls.
type Completer interface {
	Complete(ctx context.Context, history []models.Turn) (string, error)
}

// DeliverFunc sends a rendered reply to a user. Both ingress-triggered
// and scheduler-triggered replies go through this capability, so the
// engine never fabricates platform-specific wrapper objects.
type DeliverFunc func(ctx context.Context, userID, text string) error

// Config configures an Engine.
type Config struct {
	Store     *sessions.Store
	Completer Completer

	// Deliver is the reply delivery capability. Optional; when nil the
	// reply is only returned to the caller.
	Deliver DeliverFunc

	// CompletionTimeout bounds a single completion call.
	CompletionTimeout time.Duration

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine routes conversation turns between the session store, the
// completion service, and the delivery sink.
type Engine struct {
	store     *sessions.Store
	locks     *sessions.LockManager
	completer Completer
	deliver   DeliverFunc
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:     cfg.Store,
		locks:     sessions.NewLockManager(cfg.CompletionTimeout + 5*time.Second),
		completer: cfg.Completer,
		deliver:   cfg.Deliver,
		timeout:   cfg.CompletionTimeout,
		logger:    cfg.Logger.With("component", "engine"),
		now:       cfg.Now,
	}
}

// HandleTurn processes real user text: appends the user turn (inserting
// the system turn first if the history is empty), clears the ended
// flag, zeroes the nudge counter, calls the completion service, and
// appends and delivers the sanitized reply.
//
// On failure the user's turn stays in history; no assistant turn is
// fabricated.
func (e *Engine) HandleTurn(ctx context.Context, userID, text string) (string, error) {
	release, err := e.locks.Acquire(ctx, userID, "ingress", 0)
	if err != nil {
		return "", fmt.Errorf("acquire conversation lock: %w", err)
	}
	defer release()

	return e.converse(ctx, userID, text, true)
}

// HandleContinue handles the user-invoked "continue" control phrase.
// With no prior conversation it returns ErrNothingToContinue without
// calling the completion service; otherwise it synthesizes the
// continue prompt and routes it like a user turn.
func (e *Engine) HandleContinue(ctx context.Context, userID string) (string, error) {
	release, err := e.locks.Acquire(ctx, userID, "continue", 0)
	if err != nil {
		return "", fmt.Errorf("acquire conversation lock: %w", err)
	}
	defer release()

	if e.historyEmpty(userID) {
		return "", ErrNothingToContinue
	}
	return e.converse(ctx, userID, continuePrompt, true)
}

// HandleNudge handles a scheduler-initiated idle nudge. Unlike
// HandleTurn it does not count as real user activity: the nudge
// counter and ended flag are left untouched (the scheduler already
// claimed the nudge under the session lock).
func (e *Engine) HandleNudge(ctx context.Context, userID string) (string, error) {
	release, err := e.locks.Acquire(ctx, userID, "scheduler", 0)
	if err != nil {
		return "", fmt.Errorf("acquire conversation lock: %w", err)
	}
	defer release()

	if e.historyEmpty(userID) {
		return "", ErrNothingToContinue
	}
	return e.converse(ctx, userID, nudgePrompt, false)
}

// HandleEnd marks the session ended. History is kept; the session is
// excluded from nudging until the user speaks again.
func (e *Engine) HandleEnd(userID string) {
	now := e.now()
	e.store.With(userID, func(s *sessions.Session) {
		s.Ended = true
		s.Touch(now)
	})
}

// HandleReset clears history and counters, keeping the identity.
// Idempotent.
func (e *Engine) HandleReset(userID string) {
	e.store.Reset(userID, e.now())
}

// converse appends the user turn, invokes the completion service, and
// appends and delivers the reply. The caller holds the conversation
// lock. activity marks the turn as real user activity.
func (e *Engine) converse(ctx context.Context, userID, text string, activity bool) (string, error) {
	now := e.now()
	var history []models.Turn
	e.store.With(userID, func(s *sessions.Session) {
		s.EnsureSystemTurn(SystemPrompt)
		s.Append(models.RoleUser, text)
		if activity {
			s.AutoPrompts = 0
			s.Ended = false
		}
		s.Touch(now)
		history = append([]models.Turn(nil), s.History...)
	})

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reply, err := e.completer.Complete(cctx, history)
	if err != nil {
		// The user turn already appended above is kept.
		return "", err
	}

	reply = SanitizeReply(reply)
	e.store.With(userID, func(s *sessions.Session) {
		s.Append(models.RoleAssistant, reply)
	})

	if e.deliver != nil {
		if derr := e.deliver(ctx, userID, reply); derr != nil {
			// Delivery is fire-and-forget: logged, not retried, and the
			// stored history is unaffected.
			e.logger.Warn("reply delivery failed", "user_id", userID, "error", derr)
		}
	}
	return reply, nil
}

func (e *Engine) historyEmpty(userID string) bool {
	empty := true
	e.store.With(userID, func(s *sessions.Session) {
		empty = len(s.History) == 0
	})
	return empty
}

var markupReplacer = strings.NewReplacer("*", "", "_", "", "`", "", "#", "")

// SanitizeReply strips the markup control characters the completion
// service tends to emit (exactly *, _, `, #) so replies render as
// plain text on the platform.
func SanitizeReply(text string) string {
	return markupReplacer.Replace(text)
}
