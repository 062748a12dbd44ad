package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticToken(token string) TokenSource {
	return func(ctx context.Context) (string, error) {
		return token, nil
	}
}

func TestRegistrar(t *testing.T) {
	t.Run("registers a device on first use", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "DESKTOP", body["deviceType"])
			assert.Equal(t, "Parley Terminal - Ada", body["name"])

			json.NewEncoder(w).Encode(map[string]string{
				"id":           "device-1",
				"url":          srvDeviceURL,
				"webSocketUrl": "wss://mercury.example.com/socket",
			})
		}))
		defer srv.Close()

		r := NewRegistrar(srv.URL, staticToken("test-token"), "Ada", nil)

		device, err := r.Device(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "device-1", device.ID)
		assert.Equal(t, "wss://mercury.example.com/socket", device.WebSocketURL)

		// Second call reuses the registration.
		again, err := r.Device(context.Background())
		require.NoError(t, err)
		assert.Same(t, device, again)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("invalidate forces re-registration", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			json.NewEncoder(w).Encode(map[string]string{
				"id":           fmt.Sprintf("device-%d", n),
				"webSocketUrl": "wss://mercury.example.com/socket",
			})
		}))
		defer srv.Close()

		r := NewRegistrar(srv.URL, staticToken("t"), "", nil)

		first, err := r.Device(context.Background())
		require.NoError(t, err)

		r.Invalidate()

		second, err := r.Device(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("server rejection yields a registration error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "token expired"})
		}))
		defer srv.Close()

		r := NewRegistrar(srv.URL, staticToken("t"), "", nil)

		_, err := r.Device(context.Background())
		var regErr *RegistrationError
		require.ErrorAs(t, err, &regErr)
		assert.Equal(t, http.StatusUnauthorized, regErr.StatusCode)
		assert.Contains(t, regErr.Error(), "token expired")
	})

	t.Run("response without a websocket url is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"id": "device-1"})
		}))
		defer srv.Close()

		r := NewRegistrar(srv.URL, staticToken("t"), "", nil)

		_, err := r.Device(context.Background())
		var regErr *RegistrationError
		require.ErrorAs(t, err, &regErr)
		assert.Contains(t, regErr.Error(), "no websocket URL")
	})

	t.Run("token source failure is wrapped", func(t *testing.T) {
		tokenErr := fmt.Errorf("not logged in")
		r := NewRegistrar("http://unused.invalid", func(ctx context.Context) (string, error) {
			return "", tokenErr
		}, "", nil)

		_, err := r.Device(context.Background())
		var regErr *RegistrationError
		require.ErrorAs(t, err, &regErr)
		assert.ErrorIs(t, err, tokenErr)
	})
}

const srvDeviceURL = "https://wdm.example.com/devices/device-1"
