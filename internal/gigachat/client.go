package gigachat

import (
	"context"
	"errors"
	"net/http"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/solacebot/solace/internal/config"
	"github.com/solacebot/solace/internal/engine"
	"github.com/solacebot/solace/pkg/models"
)

// Client implements engine.Completer against the GigaChat API using
// the go-openai SDK pointed at the GigaChat base URL.
//
// Thread safety: Client is safe for concurrent use. The underlying SDK
// client is rebuilt when the bearer token rotates.
type Client struct {
	model   string
	baseURL string
	tokens  *TokenProvider
	http    *http.Client

	mu       sync.Mutex
	api      *openai.Client
	apiToken string
}

// NewClient creates a GigaChat completion client.
func NewClient(cfg config.GigaChatConfig) *Client {
	return &Client{
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		tokens:  NewTokenProvider(cfg),
		http: &http.Client{
			Transport: newTransport(cfg.InsecureSkipVerify),
		},
	}
}

// Complete sends the full ordered history to the completion service
// and returns the assistant text. Errors are typed: credential
// failures wrap engine.ErrAuthUnavailable, everything else is an
// *engine.CompletionError with a coarse status class.
func (c *Client) Complete(ctx context.Context, history []models.Turn) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	resp, err := c.apiFor(token).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toChatMessages(history),
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &engine.CompletionError{
			Class: engine.StatusInvalid,
			Err:   errors.New("no choices in completion response"),
		}
	}
	return resp.Choices[0].Message.Content, nil
}

// apiFor returns an SDK client bound to the given bearer token,
// rebuilding the cached one only when the token rotates.
func (c *Client) apiFor(token string) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.api == nil || c.apiToken != token {
		cfg := openai.DefaultConfig(token)
		cfg.BaseURL = c.baseURL
		cfg.HTTPClient = c.http
		c.api = openai.NewClientWithConfig(cfg)
		c.apiToken = token
	}
	return c.api
}

func toChatMessages(history []models.Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, turn := range history {
		out = append(out, openai.ChatCompletionMessage{
			Role:    chatRole(turn.Role),
			Content: turn.Content,
		})
	}
	return out
}

func chatRole(role models.Role) string {
	switch role {
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return engine.NewCompletionError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return engine.NewCompletionError(reqErr.HTTPStatusCode, err)
	}
	// Transport failure or timeout; no HTTP status to report.
	return engine.NewCompletionError(0, err)
}
