package telegram

import (
	"context"
	"testing"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/solacebot/solace/internal/channels"
	"github.com/solacebot/solace/pkg/models"
)

func TestConfigValidate(t *testing.T) {
	cfg := Config{Token: "123:abc"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Mode != ModeLongPolling {
		t.Errorf("default mode = %q", cfg.Mode)
	}
	if cfg.ListenAddr != ":8443" {
		t.Errorf("default listen addr = %q", cfg.ListenAddr)
	}
	if cfg.MaxReconnectAttempts != 5 {
		t.Errorf("default max attempts = %d", cfg.MaxReconnectAttempts)
	}
}

func TestConfigValidateMissingToken(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error for missing token")
	}
	if channels.GetErrorCode(err) != channels.ErrCodeConfig {
		t.Fatalf("expected config error code, got %v", err)
	}
}

func TestConfigValidateWebhookRequiresURL(t *testing.T) {
	cfg := Config{Token: "123:abc", Mode: ModeWebhook}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for webhook mode without URL")
	}

	cfg.WebhookURL = "https://example.onrender.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestConvertTelegramMessage(t *testing.T) {
	msg := &tgmodels.Message{
		ID:   42,
		Text: "мне тревожно",
		Date: 1700000000,
		Chat: tgmodels.Chat{ID: 987654321},
		From: &tgmodels.User{ID: 555, FirstName: "Ivan", LastName: "Petrov"},
	}

	m := convertTelegramMessage(msg)

	if m.UserID != "987654321" {
		t.Errorf("UserID = %q; chat id must be the user key", m.UserID)
	}
	if m.Channel != models.ChannelTelegram {
		t.Errorf("Channel = %q", m.Channel)
	}
	if m.Direction != models.DirectionInbound || m.Role != models.RoleUser {
		t.Errorf("Direction/Role = %q/%q", m.Direction, m.Role)
	}
	if m.Content != "мне тревожно" {
		t.Errorf("Content = %q", m.Content)
	}
	if m.CreatedAt.Unix() != 1700000000 {
		t.Errorf("CreatedAt = %v", m.CreatedAt)
	}
	if m.Metadata["user_first"] != "Ivan" {
		t.Errorf("Metadata = %v", m.Metadata)
	}
}

func TestConvertTelegramMessageWithoutSender(t *testing.T) {
	msg := &tgmodels.Message{
		ID:   1,
		Text: "hi",
		Chat: tgmodels.Chat{ID: 10},
	}
	m := convertTelegramMessage(msg)
	if m.UserID != "10" {
		t.Errorf("UserID = %q", m.UserID)
	}
	if _, ok := m.Metadata["user_first"]; ok {
		t.Errorf("unexpected sender metadata: %v", m.Metadata)
	}
}

func TestControlKeyboardLayout(t *testing.T) {
	kb := controlKeyboard()
	if !kb.ResizeKeyboard {
		t.Errorf("expected resized keyboard")
	}
	if len(kb.Keyboard) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(kb.Keyboard))
	}
	if kb.Keyboard[0][0].Text != models.ControlStart || kb.Keyboard[0][1].Text != models.ControlEnd {
		t.Errorf("first row = %v", kb.Keyboard[0])
	}
	if kb.Keyboard[1][0].Text != models.ControlContinue {
		t.Errorf("second row = %v", kb.Keyboard[1])
	}
}

func TestSendBeforeStart(t *testing.T) {
	a, err := NewAdapter(Config{Token: "123:abc"})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}

	err = a.Send(context.Background(),&models.Message{UserID: "42", Content: "x"})
	if channels.GetErrorCode(err) != channels.ErrCodeInternal {
		t.Fatalf("expected internal error before Start, got %v", err)
	}
	if a.Metrics().MessagesFailed != 1 {
		t.Fatalf("expected failure recorded, got %+v", a.Metrics())
	}
}
