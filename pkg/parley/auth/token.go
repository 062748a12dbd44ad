// Package auth manages OAuth credentials: the persisted token, refresh, and
// the one-time browser authorization flow. The rest of the program consumes
// it only through TokenSource closures.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/parley/pkg/parley/config"
)

// ErrNotAuthenticated is returned when no token has been obtained yet.
var ErrNotAuthenticated = errors.New("not authenticated, run 'parley auth' first")

// refreshLeeway is how long before expiry a token is refreshed.
const refreshLeeway = 60 * time.Second

// Provider caches the persisted OAuth token and refreshes it on demand.
// Safe for concurrent use.
type Provider struct {
	cfg          *config.Config
	clientID     string
	clientSecret string
	http         *http.Client
	logger       *zap.Logger

	mu    sync.Mutex
	token *config.Token
}

// NewProvider creates a token provider. Client credentials are only needed
// for refresh and the initial authorization flow; a provider created without
// them can still serve a long-lived token from disk.
func NewProvider(cfg *config.Config, clientID, clientSecret string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:          cfg,
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

// Current returns a valid token, refreshing it first when it is within
// refreshLeeway of expiry.
func (p *Provider) Current(ctx context.Context) (*config.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		token, err := config.LoadToken()
		if err != nil {
			return nil, err
		}
		if token == nil {
			return nil, ErrNotAuthenticated
		}
		p.token = token
	}

	if !p.token.ExpiresAt.IsZero() && time.Until(p.token.ExpiresAt) < refreshLeeway {
		if err := p.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}

	token := *p.token
	return &token, nil
}

// Source returns the bearer-token closure handed to the REST client, the
// device registrar, and the realtime connection.
func (p *Provider) Source() func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		token, err := p.Current(ctx)
		if err != nil {
			return "", err
		}
		return token.AccessToken, nil
	}
}

// Authenticated reports whether a usable token is available.
func (p *Provider) Authenticated(ctx context.Context) bool {
	_, err := p.Current(ctx)
	return err == nil
}

// Logout clears the cached and persisted token.
func (p *Provider) Logout() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = nil
	return config.ClearToken()
}

func (p *Provider) refreshLocked(ctx context.Context) error {
	if p.token.RefreshToken == "" {
		return fmt.Errorf("token expired and no refresh token available: %w", ErrNotAuthenticated)
	}
	if p.clientID == "" || p.clientSecret == "" {
		return errors.New("token expired and client credentials are not configured")
	}

	p.logger.Debug("refreshing access token")

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"refresh_token": {p.token.RefreshToken},
	}
	token, err := p.requestToken(ctx, form)
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = p.token.RefreshToken
	}

	p.token = token
	if err := config.SaveToken(token); err != nil {
		return err
	}

	p.logger.Info("access token refreshed", zap.Time("expires_at", token.ExpiresAt))
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (p *Provider) requestToken(ctx context.Context, form url.Values) (*config.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	token := &config.Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
	}
	if body.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	return token, nil
}
