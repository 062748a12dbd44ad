package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tsarna/parley/pkg/parley/config"
)

func testProvider(t *testing.T, tokenURL string) *Provider {
	t.Helper()
	t.Setenv("PARLEY_CONFIG_DIR", t.TempDir())

	cfg := config.Default()
	cfg.TokenURL = tokenURL
	return NewProvider(cfg, "client-id", "client-secret", zap.NewNop())
}

func TestCurrent(t *testing.T) {
	t.Run("no persisted token yields ErrNotAuthenticated", func(t *testing.T) {
		provider := testProvider(t, "http://unused.invalid")

		_, err := provider.Current(context.Background())
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("fresh token is served without any HTTP", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))
		defer server.Close()

		provider := testProvider(t, server.URL)
		require.NoError(t, config.SaveToken(&config.Token{
			AccessToken: "fresh-token",
			ExpiresAt:   time.Now().Add(time.Hour),
		}))

		token, err := provider.Current(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "fresh-token", token.AccessToken)
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("expiring token triggers one refresh and persists the result", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
			assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "new-access",
				"refresh_token": "new-refresh",
				"expires_in":    3600,
			})
		}))
		defer server.Close()

		provider := testProvider(t, server.URL)
		require.NoError(t, config.SaveToken(&config.Token{
			AccessToken:  "old-access",
			RefreshToken: "old-refresh",
			ExpiresAt:    time.Now().Add(10 * time.Second), // inside the refresh leeway
		}))

		token, err := provider.Current(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "new-access", token.AccessToken)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

		// The refreshed token is persisted.
		saved, err := config.LoadToken()
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, "new-access", saved.AccessToken)
		assert.Equal(t, "new-refresh", saved.RefreshToken)

		// A second call serves the cached token without another refresh.
		_, err = provider.Current(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("refresh failure surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		provider := testProvider(t, server.URL)
		require.NoError(t, config.SaveToken(&config.Token{
			AccessToken:  "old-access",
			RefreshToken: "old-refresh",
			ExpiresAt:    time.Now().Add(-time.Minute),
		}))

		_, err := provider.Current(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refreshing token")
	})
}

func TestSource(t *testing.T) {
	provider := testProvider(t, "http://unused.invalid")
	require.NoError(t, config.SaveToken(&config.Token{
		AccessToken: "source-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	source := provider.Source()
	token, err := source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "source-token", token)
}

func TestLogout(t *testing.T) {
	provider := testProvider(t, "http://unused.invalid")
	require.NoError(t, config.SaveToken(&config.Token{
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	require.True(t, provider.Authenticated(context.Background()))
	require.NoError(t, provider.Logout())
	assert.False(t, provider.Authenticated(context.Background()))
}

func TestAuthorizeURL(t *testing.T) {
	provider := testProvider(t, "http://unused.invalid")

	authURL := provider.AuthorizeURL()
	assert.Contains(t, authURL, "client_id=client-id")
	assert.Contains(t, authURL, "response_type=code")
	assert.Contains(t, authURL, "scope=spark%3Aall")
}
