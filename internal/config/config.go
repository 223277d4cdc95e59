// Package config loads and validates the service configuration.
//
// Configuration is a YAML file with environment variable expansion, so
// secrets can be supplied as ${TG_BOT_TOKEN}-style references and kept
// out of the file itself.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reference defaults for the engagement scheduler. These bound how
// intrusive automatic re-engagement can be.
const (
	DefaultIdleThreshold  = 120 * time.Second
	DefaultSweepPeriod    = 30 * time.Second
	DefaultMaxAutoPrompts = 3
)

// DefaultCompletionTimeout bounds a single completion call so a hung
// upstream cannot wedge the scheduler or shutdown.
const DefaultCompletionTimeout = 30 * time.Second

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	GigaChat   GigaChatConfig   `yaml:"gigachat"`
	Engagement EngagementConfig `yaml:"engagement"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TelegramConfig configures the ingress channel.
type TelegramConfig struct {
	// Token is the bot token from @BotFather (required).
	Token string `yaml:"token"`

	// Mode selects how updates are received: "long_polling" or "webhook".
	Mode string `yaml:"mode"`

	// WebhookURL is the public HTTPS URL registered with Telegram
	// (required in webhook mode).
	WebhookURL string `yaml:"webhook_url"`

	// ListenAddr is the local address the webhook server binds, e.g. ":8443".
	ListenAddr string `yaml:"listen_addr"`
}

// GigaChatConfig configures the completion service and its OAuth
// token endpoint.
type GigaChatConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// Scope is the OAuth scope form value, e.g. "GIGACHAT_API_PERS".
	Scope string `yaml:"scope"`

	// Model is the completion model identifier.
	Model string `yaml:"model"`

	// BaseURL is the OpenAI-compatible API root.
	BaseURL string `yaml:"base_url"`

	// AuthURL is the OAuth token endpoint.
	AuthURL string `yaml:"auth_url"`

	// InsecureSkipVerify disables TLS certificate verification for
	// deployments without the Sber root CA installed.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// RequestTimeout bounds a single completion call.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// EngagementConfig configures the idle-engagement scheduler.
type EngagementConfig struct {
	// IdleThreshold is the minimum silence before a session becomes
	// eligible for an automatic follow-up.
	IdleThreshold Duration `yaml:"idle_threshold"`

	// SweepPeriod is the interval between scheduler sweeps.
	SweepPeriod Duration `yaml:"sweep_period"`

	// MaxAutoPrompts caps follow-ups sent since the user last spoke.
	MaxAutoPrompts int `yaml:"max_auto_prompts"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Load reads a YAML config file, expanding ${VAR} references from the
// environment before parsing.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = "long_polling"
	}
	if c.Telegram.Mode != "long_polling" && c.Telegram.Mode != "webhook" {
		return fmt.Errorf("telegram.mode must be long_polling or webhook, got %q", c.Telegram.Mode)
	}
	if c.Telegram.Mode == "webhook" && c.Telegram.WebhookURL == "" {
		return fmt.Errorf("telegram.webhook_url is required for webhook mode")
	}
	if c.Telegram.ListenAddr == "" {
		c.Telegram.ListenAddr = ":8443"
	}

	if c.GigaChat.ClientID == "" || c.GigaChat.ClientSecret == "" {
		return fmt.Errorf("gigachat.client_id and gigachat.client_secret are required")
	}
	if c.GigaChat.Scope == "" {
		c.GigaChat.Scope = "GIGACHAT_API_PERS"
	}
	if c.GigaChat.Model == "" {
		c.GigaChat.Model = "GigaChat"
	}
	if c.GigaChat.BaseURL == "" {
		c.GigaChat.BaseURL = "https://gigachat.devices.sberbank.ru/api/v1"
	}
	if c.GigaChat.AuthURL == "" {
		c.GigaChat.AuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	}
	if c.GigaChat.RequestTimeout <= 0 {
		c.GigaChat.RequestTimeout = Duration(DefaultCompletionTimeout)
	}

	if c.Engagement.IdleThreshold <= 0 {
		c.Engagement.IdleThreshold = Duration(DefaultIdleThreshold)
	}
	if c.Engagement.SweepPeriod <= 0 {
		c.Engagement.SweepPeriod = Duration(DefaultSweepPeriod)
	}
	if c.Engagement.MaxAutoPrompts <= 0 {
		c.Engagement.MaxAutoPrompts = DefaultMaxAutoPrompts
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	return nil
}
