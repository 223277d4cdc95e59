// Package gateway wires the ingress channel, the conversation engine,
// and the idle scheduler together, and owns process lifecycle:
// ordered startup, message routing, and idempotent shutdown with a
// bounded drain.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solacebot/solace/internal/channels"
	"github.com/solacebot/solace/internal/channels/telegram"
	"github.com/solacebot/solace/internal/config"
	"github.com/solacebot/solace/internal/engine"
	"github.com/solacebot/solace/internal/gigachat"
	"github.com/solacebot/solace/internal/scheduler"
	"github.com/solacebot/solace/internal/sessions"
	"github.com/solacebot/solace/pkg/models"
)

// Server coordinates the adapter, engine, and scheduler.
type Server struct {
	config    *config.Config
	logger    *slog.Logger
	adapter   channels.Adapter
	store     *sessions.Store
	engine    *engine.Engine
	scheduler *scheduler.Scheduler

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	adapter, err := telegram.NewAdapter(telegram.Config{
		Token:      cfg.Telegram.Token,
		Mode:       telegram.Mode(cfg.Telegram.Mode),
		WebhookURL: cfg.Telegram.WebhookURL,
		ListenAddr: cfg.Telegram.ListenAddr,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram adapter: %w", err)
	}

	s := &Server{
		config:  cfg,
		logger:  logger.With("component", "gateway"),
		adapter: adapter,
		store:   sessions.NewStore(),
	}

	s.engine = engine.New(engine.Config{
		Store:             s.store,
		Completer:         gigachat.NewClient(cfg.GigaChat),
		Deliver:           s.deliver,
		CompletionTimeout: cfg.GigaChat.RequestTimeout.Std(),
		Logger:            logger,
	})

	s.scheduler = scheduler.New(scheduler.Config{
		Store:           s.store,
		Nudger:          s.engine,
		Typing:          adapter.Typing,
		SweepPeriod:     cfg.Engagement.SweepPeriod.Std(),
		IdleThreshold:   cfg.Engagement.IdleThreshold.Std(),
		MaxAutoPrompts:  cfg.Engagement.MaxAutoPrompts,
		DispatchTimeout: cfg.GigaChat.RequestTimeout.Std(),
		Logger:          logger,
	})

	return s, nil
}

// Start brings the service up: ingress first, then the scheduler once
// ingress is ready to deliver, then the inbound consumer loop. A
// failure here is fatal to startup.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.adapter.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start ingress: %w", err)
	}

	s.scheduler.Start(ctx)

	s.wg.Add(1)
	go s.consume(ctx)

	s.logger.Info("gateway started", "mode", s.config.Telegram.Mode)
	return nil
}

// consume routes inbound messages, one short-lived goroutine per
// message so a slow completion for one user never blocks another's.
func (s *Server) consume(ctx context.Context) {
	defer s.wg.Done()

	for msg := range s.adapter.Messages() {
		s.wg.Add(1)
		go func(m *models.Message) {
			defer s.wg.Done()
			s.handleInbound(ctx, m)
		}(msg)
	}
}

// handleInbound dispatches one inbound event: a command, a control
// phrase, or free text. All failures are recovered here and converted
// to a user-visible notice or a log line.
func (s *Server) handleInbound(ctx context.Context, msg *models.Message) {
	userID := msg.UserID
	text := strings.TrimSpace(msg.Content)

	s.logger.Debug("inbound message", "user_id", userID, "length", len(text))

	switch {
	case strings.HasPrefix(text, "/start"):
		s.engine.HandleReset(userID)
		s.reply(ctx, userID, greetingText)

	case strings.HasPrefix(text, "/help"):
		s.store.With(userID, func(sess *sessions.Session) {
			sess.Touch(time.Now())
		})
		s.reply(ctx, userID, helpText)

	case text == models.ControlStart:
		s.engine.HandleReset(userID)
		s.reply(ctx, userID, startPromptText)

	case text == models.ControlEnd:
		s.engine.HandleEnd(userID)
		s.reply(ctx, userID, thanksText)

	case text == models.ControlContinue:
		s.store.MarkActivity(userID, time.Now())
		if _, err := s.engine.HandleContinue(ctx, userID); err != nil {
			s.replyError(ctx, userID, err)
		}

	default:
		if _, err := s.engine.HandleTurn(ctx, userID, text); err != nil {
			s.replyError(ctx, userID, err)
		}
	}
}

// deliver is the reply delivery capability handed to the engine; both
// ingress-triggered and scheduler-triggered replies flow through it.
func (s *Server) deliver(ctx context.Context, userID, text string) error {
	return s.adapter.Send(ctx, &models.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Channel:   s.adapter.Type(),
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   text,
		Metadata:  map[string]any{"keyboard": true},
		CreatedAt: time.Now(),
	})
}

func (s *Server) reply(ctx context.Context, userID, text string) {
	if err := s.deliver(ctx, userID, text); err != nil {
		// Delivery failures are logged, never retried; session state is
		// unaffected.
		s.logger.Warn("reply delivery failed",
			"user_id", userID,
			"error", err,
			"code", channels.GetErrorCode(err))
	}
}

func (s *Server) replyError(ctx context.Context, userID string, err error) {
	if !errors.Is(err, engine.ErrNothingToContinue) {
		s.logger.Warn("turn failed", "user_id", userID, "error", err)
	}
	s.reply(ctx, userID, errorText(err))
}

// Stop shuts the service down: the scheduler stops accepting cycles
// and drains in-flight dispatches, ingress closes, and remaining
// handlers get a bounded grace period. Idempotent; a second call while
// the first is draining returns the first result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.logger.Info("gateway stopping")

		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Warn("scheduler drain incomplete", "error", err)
			s.stopErr = err
		}

		if err := s.adapter.Stop(ctx); err != nil {
			s.logger.Warn("adapter stop incomplete", "error", err)
			if s.stopErr == nil {
				s.stopErr = err
			}
		}

		drained := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-ctx.Done():
			if s.stopErr == nil {
				s.stopErr = ctx.Err()
			}
		}

		if s.cancel != nil {
			s.cancel()
		}
		s.logger.Info("gateway stopped")
	})
	return s.stopErr
}

// Sessions exposes the session store for inspection.
func (s *Server) Sessions() *sessions.Store {
	return s.store
}
