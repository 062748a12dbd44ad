package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TokenSource returns the current bearer access token. Must be cheap; refresh
// logic lives behind it.
type TokenSource func(ctx context.Context) (string, error)

// Device is the platform's record of this client instance, obtained from the
// device registration endpoint. It is immutable once obtained.
type Device struct {
	ID           string `json:"id"`
	DeviceURL    string `json:"url"`
	WebSocketURL string `json:"webSocketUrl"`
	Name         string `json:"name"`
}

// deviceDescriptor is the fixed registration request body.
type deviceDescriptor struct {
	DeviceName     string `json:"deviceName"`
	DeviceType     string `json:"deviceType"`
	LocalizedModel string `json:"localizedModel"`
	Model          string `json:"model"`
	Name           string `json:"name"`
	SystemName     string `json:"systemName"`
	SystemVersion  string `json:"systemVersion"`
}

// Registrar registers an ephemeral device to obtain a realtime socket
// endpoint. The registration is memoized per process; Invalidate drops it
// when the endpoint is rejected by the transport. The registrar itself never
// retries.
type Registrar struct {
	url    string
	tokens TokenSource
	name   string
	http   *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	device *Device
}

// NewRegistrar creates a registrar for the given registration endpoint.
// The display name is folded into the registered device's name so the device
// is recognizable in the platform's device list.
func NewRegistrar(url string, tokens TokenSource, displayName string, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := "Parley Terminal"
	if displayName != "" {
		name = "Parley Terminal - " + displayName
	}
	return &Registrar{
		url:    url,
		tokens: tokens,
		name:   name,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Device returns the registered device, registering one on first use.
func (r *Registrar) Device(ctx context.Context) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device != nil {
		return r.device, nil
	}

	device, err := r.register(ctx)
	if err != nil {
		return nil, err
	}
	r.device = device

	r.logger.Info("device registered",
		zap.String("device", device.ID),
		zap.String("websocket_url", device.WebSocketURL),
	)
	return device, nil
}

// Invalidate drops the cached registration, forcing a fresh registration on
// the next Device call. Used when the cached endpoint is rejected by the
// transport layer.
func (r *Registrar) Invalidate() {
	r.mu.Lock()
	r.device = nil
	r.mu.Unlock()
}

func (r *Registrar) register(ctx context.Context) (*Device, error) {
	token, err := r.tokens(ctx)
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}

	body, err := json.Marshal(deviceDescriptor{
		DeviceName:     "Parley Terminal",
		DeviceType:     "DESKTOP",
		LocalizedModel: "Desktop",
		Model:          "Desktop",
		Name:           r.name,
		SystemName:     "Go",
		SystemVersion:  "1.0",
	})
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		regErr := &RegistrationError{StatusCode: resp.StatusCode}
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil {
			regErr.Message = detail.Message
		}
		return nil, regErr
	}

	var device Device
	if err := json.NewDecoder(resp.Body).Decode(&device); err != nil {
		return nil, &RegistrationError{Err: fmt.Errorf("decoding registration response: %w", err)}
	}
	if device.WebSocketURL == "" {
		return nil, &RegistrationError{Err: fmt.Errorf("registration response has no websocket URL")}
	}
	return &device, nil
}
