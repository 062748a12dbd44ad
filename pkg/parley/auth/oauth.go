package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/parley/pkg/parley/config"
)

// authorizeTimeout bounds how long we wait for the user to finish the
// browser flow.
const authorizeTimeout = 5 * time.Minute

// AuthorizeURL builds the URL the user must visit to grant access.
func (p *Provider) AuthorizeURL() string {
	params := url.Values{
		"client_id":     {p.clientID},
		"response_type": {"code"},
		"redirect_uri":  {p.cfg.RedirectURI},
		"scope":         {p.cfg.Scope},
	}
	return p.cfg.AuthURL + "?" + params.Encode()
}

type callbackResult struct {
	code string
	err  error
}

// Authenticate runs the browser OAuth flow: starts a local callback server,
// opens the authorization URL via openBrowser, waits for the redirect, and
// exchanges the authorization code for a token, which is persisted.
func (p *Provider) Authenticate(ctx context.Context, openBrowser func(url string) error) error {
	if p.clientID == "" || p.clientSecret == "" {
		return fmt.Errorf("client credentials are required for authentication")
	}

	redirect, err := url.Parse(p.cfg.RedirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Get("code") != "":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body><h1>Authentication successful</h1><p>You can close this window and return to the terminal.</p></body></html>")
			results <- callbackResult{code: query.Get("code")}
		case query.Get("error") != "":
			http.Error(w, "authentication error: "+query.Get("error"), http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("authorization denied: %s", query.Get("error"))}
		default:
			http.Error(w, "missing required parameters", http.StatusBadRequest)
		}
	})

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("starting callback server on %s: %w", redirect.Host, err)
	}
	server := &http.Server{Handler: mux}
	go server.Serve(listener)
	defer server.Close()

	authURL := p.AuthorizeURL()
	p.logger.Info("opening browser for authentication", zap.String("url", authURL))
	if err := openBrowser(authURL); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
	defer cancel()

	var code string
	select {
	case result := <-results:
		if result.err != nil {
			return result.err
		}
		code = result.code
	case <-ctx.Done():
		return fmt.Errorf("authentication timed out: %w", ctx.Err())
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"code":          {code},
		"redirect_uri":  {p.cfg.RedirectURI},
	}
	token, err := p.requestToken(ctx, form)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()

	if err := config.SaveToken(token); err != nil {
		return err
	}

	p.logger.Info("authentication complete", zap.Time("expires_at", token.ExpiresAt))
	return nil
}
