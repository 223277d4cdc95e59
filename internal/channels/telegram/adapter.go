// Package telegram implements the channels.Adapter interface for
// Telegram, with long polling and webhook modes behind one adapter.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/solacebot/solace/internal/channels"
	"github.com/solacebot/solace/pkg/models"
)

// Mode represents the operation mode of the Telegram adapter.
type Mode string

const (
	// ModeLongPolling uses long polling to receive updates
	ModeLongPolling Mode = "long_polling"

	// ModeWebhook uses a webhook endpoint to receive updates
	ModeWebhook Mode = "webhook"
)

const webhookPath = "/webhook"

// Config holds configuration for the Telegram adapter.
type Config struct {
	// Token is the bot token from @BotFather (required)
	Token string

	// Mode determines whether to use long polling or webhooks
	Mode Mode

	// WebhookURL is the HTTPS URL for webhook mode (required if Mode is ModeWebhook)
	WebhookURL string

	// ListenAddr is the address for the webhook server, e.g. ":8443"
	ListenAddr string

	// MaxReconnectAttempts is the maximum number of reconnection attempts
	MaxReconnectAttempts int

	// ReconnectDelay is the delay between reconnection attempts
	ReconnectDelay time.Duration

	// Logger is an optional slog.Logger instance
	Logger *slog.Logger
}

// Validate checks if the configuration is valid and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return channels.ErrConfig("token is required", nil)
	}

	if c.Mode == "" {
		c.Mode = ModeLongPolling
	}

	if c.Mode == ModeWebhook && c.WebhookURL == "" {
		return channels.ErrConfig("webhook_url is required for webhook mode", nil)
	}

	if c.ListenAddr == "" {
		c.ListenAddr = ":8443"
	}

	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}

	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 5 * time.Second
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return nil
}

// Adapter implements the channels.Adapter interface for Telegram.
type Adapter struct {
	config   Config
	bot      *bot.Bot
	messages chan *models.Message
	status   channels.Status
	statusMu sync.RWMutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	metrics  *channels.Metrics
	logger   *slog.Logger
}

// NewAdapter creates a new Telegram adapter with the given configuration.
func NewAdapter(config Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Adapter{
		config:   config,
		messages: make(chan *models.Message, 100),
		status:   channels.Status{Connected: false},
		metrics:  channels.NewMetrics(models.ChannelTelegram),
		logger:   config.Logger.With("adapter", "telegram"),
	}, nil
}

// Start begins listening for messages from Telegram.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.logger.Info("starting telegram adapter", "mode", a.config.Mode)

	b, err := bot.New(a.config.Token)
	if err != nil {
		a.updateStatus(false, fmt.Sprintf("failed to create bot: %v", err))
		a.metrics.RecordError(channels.ErrCodeAuthentication)
		return channels.ErrAuthentication("failed to create bot", err)
	}

	a.bot = b
	a.metrics.RecordConnectionOpened()

	b.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, a.handleUpdate)

	a.wg.Add(1)
	go a.runWithReconnection(ctx)

	a.logger.Info("telegram adapter started")
	return nil
}

// runWithReconnection handles the main receive loop with automatic
// reconnection.
func (a *Adapter) runWithReconnection(ctx context.Context) {
	defer a.wg.Done()
	defer close(a.messages)

	attempts := 0
	maxAttempts := a.config.MaxReconnectAttempts

	for {
		select {
		case <-ctx.Done():
			a.updateStatus(false, "")
			a.logger.Info("telegram adapter stopped")
			return
		default:
		}

		if err := a.run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				a.updateStatus(false, "")
				return
			}

			attempts++
			a.metrics.RecordReconnectAttempt()
			a.updateStatus(false, fmt.Sprintf("receive error (attempt %d/%d)", attempts, maxAttempts))
			a.logger.Error("telegram receive error",
				"error", err,
				"attempt", attempts,
				"max_attempts", maxAttempts)

			if attempts >= maxAttempts {
				a.logger.Error("max reconnection attempts reached, stopping adapter")
				a.metrics.RecordError(channels.ErrCodeConnection)
				return
			}

			select {
			case <-ctx.Done():
				a.updateStatus(false, "")
				return
			case <-time.After(a.config.ReconnectDelay):
				a.logger.Info("attempting to reconnect")
			}
			continue
		}

		a.updateStatus(false, "")
		return
	}
}

// run executes the receive loop for the configured mode, blocking
// until the context is cancelled.
func (a *Adapter) run(ctx context.Context) error {
	a.updateStatus(true, "")

	if a.config.Mode == ModeWebhook {
		return a.runWebhook(ctx)
	}

	a.logger.Info("starting long polling")
	a.bot.Start(ctx)
	return nil
}

// runWebhook registers the webhook with Telegram and serves the update
// endpoint until the context is cancelled.
func (a *Adapter) runWebhook(ctx context.Context) error {
	a.logger.Info("starting webhook mode", "url", a.config.WebhookURL, "listen_addr", a.config.ListenAddr)

	_, err := a.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL: a.config.WebhookURL + webhookPath,
	})
	if err != nil {
		a.metrics.RecordError(channels.ErrCodeConnection)
		return channels.ErrConnection("failed to set webhook", err)
	}

	mux := http.NewServeMux()
	mux.Handle(webhookPath, a.bot.WebhookHandler())

	srv := &http.Server{Addr: a.config.ListenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go a.bot.StartWebhook(ctx)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return channels.ErrConnection("webhook server failed", err)
	}
}

// handleUpdate processes incoming Telegram messages.
func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}

	a.logger.Debug("received message",
		"chat_id", update.Message.Chat.ID,
		"message_id", update.Message.ID)

	msg := convertTelegramMessage(update.Message)
	a.metrics.RecordMessageReceived()

	select {
	case a.messages <- msg:
		a.updateLastPing()
	case <-ctx.Done():
	default:
		a.logger.Warn("messages channel full, dropping message",
			"chat_id", update.Message.Chat.ID)
		a.metrics.RecordMessageFailed()
	}
}

// Stop gracefully shuts down the adapter, waiting for the receive
// loop to drain or the context to expire.
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info("stopping telegram adapter")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("telegram adapter stopped gracefully")
		return nil
	case <-ctx.Done():
		a.metrics.RecordError(channels.ErrCodeTimeout)
		return channels.ErrTimeout("stop timeout", ctx.Err())
	}
}

// Send delivers a reply to Telegram. When msg.Metadata["keyboard"] is
// true the fixed control-phrase reply keyboard is attached.
func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	if a.bot == nil {
		a.metrics.RecordMessageFailed()
		a.metrics.RecordError(channels.ErrCodeInternal)
		return channels.ErrInternal("bot not initialized", nil)
	}

	chatID, err := strconv.ParseInt(msg.UserID, 10, 64)
	if err != nil {
		a.metrics.RecordMessageFailed()
		a.metrics.RecordError(channels.ErrCodeInvalidInput)
		return channels.ErrInvalidInput("invalid chat id", err)
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   msg.Content,
	}
	if want, ok := msg.Metadata["keyboard"].(bool); ok && want {
		params.ReplyMarkup = controlKeyboard()
	}

	sent, err := a.bot.SendMessage(ctx, params)
	if err != nil {
		a.logger.Error("failed to send message", "error", err, "chat_id", chatID)
		a.metrics.RecordMessageFailed()
		a.metrics.RecordError(channels.ErrCodeInternal)
		return channels.ErrInternal("failed to send message", err)
	}

	msg.ChannelID = strconv.Itoa(sent.ID)
	a.metrics.RecordMessageSent()
	return nil
}

// Typing signals the Telegram typing indicator. Best effort.
func (a *Adapter) Typing(ctx context.Context, userID string) error {
	if a.bot == nil {
		return channels.ErrInternal("bot not initialized", nil)
	}
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return channels.ErrInvalidInput("invalid chat id", err)
	}
	_, err = a.bot.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: tgmodels.ChatActionTyping,
	})
	return err
}

// Messages returns a channel of inbound messages.
func (a *Adapter) Messages() <-chan *models.Message {
	return a.messages
}

// Type returns the channel type.
func (a *Adapter) Type() models.ChannelType {
	return models.ChannelTelegram
}

// Status returns the current connection status.
func (a *Adapter) Status() channels.Status {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

// Metrics returns the current metrics snapshot.
func (a *Adapter) Metrics() channels.MetricsSnapshot {
	return a.metrics.Snapshot()
}

func (a *Adapter) updateStatus(connected bool, errMsg string) {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.status.Connected = connected
	a.status.Error = errMsg
}

func (a *Adapter) updateLastPing() {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.status.LastPing = time.Now().Unix()
}

// controlKeyboard builds the fixed reply keyboard offering the three
// control phrases.
func controlKeyboard() *tgmodels.ReplyKeyboardMarkup {
	return &tgmodels.ReplyKeyboardMarkup{
		Keyboard: [][]tgmodels.KeyboardButton{
			{
				{Text: models.ControlStart},
				{Text: models.ControlEnd},
			},
			{
				{Text: models.ControlContinue},
			},
		},
		ResizeKeyboard: true,
	}
}

// convertTelegramMessage converts a Telegram message to the unified
// format. The chat ID doubles as the stable user identifier.
func convertTelegramMessage(msg *tgmodels.Message) *models.Message {
	m := &models.Message{
		ID:        fmt.Sprintf("tg_%d", msg.ID),
		UserID:    strconv.FormatInt(msg.Chat.ID, 10),
		Channel:   models.ChannelTelegram,
		ChannelID: strconv.Itoa(msg.ID),
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   msg.Text,
		Metadata:  map[string]any{"chat_id": msg.Chat.ID},
		CreatedAt: time.Unix(int64(msg.Date), 0),
	}
	if msg.From != nil {
		m.Metadata["user_id"] = msg.From.ID
		m.Metadata["user_first"] = msg.From.FirstName
		m.Metadata["user_last"] = msg.From.LastName
	}
	return m
}
