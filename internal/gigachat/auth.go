// Package gigachat implements the completion service client for the
// GigaChat API. The completions surface is OpenAI-compatible; the
// token endpoint is a client-credentials OAuth flow with a couple of
// Sber-specific quirks (RqUID request header, expires_at instead of
// expires_in).
package gigachat

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/solacebot/solace/internal/config"
	"github.com/solacebot/solace/internal/engine"
)

// GigaChat access tokens live about 30 minutes. The endpoint reports
// expires_at in epoch milliseconds, which oauth2 does not parse, so a
// conservative fixed lifetime is applied instead.
const tokenLifetime = 25 * time.Minute

// expirySkew refreshes the token slightly before its recorded expiry.
const expirySkew = time.Minute

// TokenProvider obtains and caches a bearer token for the GigaChat
// API. Safe for concurrent use; concurrent callers during a refresh
// serialize on the provider mutex.
type TokenProvider struct {
	oauth  clientcredentials.Config
	client *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenProvider creates a token provider for the given credentials.
func NewTokenProvider(cfg config.GigaChatConfig) *TokenProvider {
	return &TokenProvider{
		oauth: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.AuthURL,
			Scopes:       []string{cfg.Scope},
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		client: &http.Client{
			Transport: &rqUIDTransport{base: newTransport(cfg.InsecureSkipVerify)},
			Timeout:   30 * time.Second,
		},
	}
}

// Token returns a valid bearer token, fetching a fresh one when the
// cached token is missing or near expiry. On failure it returns an
// error wrapping engine.ErrAuthUnavailable.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != nil && p.token.Expiry.After(time.Now().Add(expirySkew)) {
		return p.token.AccessToken, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	tok, err := p.oauth.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", engine.ErrAuthUnavailable, err)
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = time.Now().Add(tokenLifetime)
	}
	p.token = tok
	return tok.AccessToken, nil
}

// rqUIDTransport adds the RqUID header the token endpoint requires.
type rqUIDTransport struct {
	base http.RoundTripper
}

func (t *rqUIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Accept", "application/json")
	return t.base.RoundTrip(req)
}

func newTransport(insecureSkipVerify bool) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return transport
}
