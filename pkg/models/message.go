package models

import "time"

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
)

// Direction indicates if a message is inbound or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Control phrases offered on the reply keyboard. The gateway routes
// them; the Telegram adapter renders them as keyboard buttons.
const (
	ControlStart    = "🟢 Начать"
	ControlEnd      = "🙏 Спасибо"
	ControlContinue = "🔁 Продолжить"
)

// Turn is one role-tagged entry in a session's history. The ordered
// sequence of turns is the prompt sent to the completion service.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is the unified message format between channel adapters and
// the gateway.
type Message struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"` // stable platform identifier (Telegram chat ID)
	Channel   ChannelType    `json:"channel"`
	ChannelID string         `json:"channel_id"` // platform-specific message ID
	Direction Direction      `json:"direction"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
