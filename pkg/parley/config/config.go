// Package config handles on-disk configuration for parley. Settings and the
// OAuth token live as YAML files under ~/.config/parley.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	tokenFileName  = "token.yaml"
)

// Config holds the endpoint and OAuth settings for the client.
type Config struct {
	APIBaseURL    string `yaml:"api_base_url"`
	AuthURL       string `yaml:"auth_url"`
	TokenURL      string `yaml:"token_url"`
	DeviceRegURL  string `yaml:"device_registration_url"`
	RedirectURI   string `yaml:"redirect_uri"`
	Scope         string `yaml:"scope"`
	MaxReconnects int    `yaml:"max_reconnects"`
}

// Default returns the stock configuration pointing at the public platform endpoints.
func Default() *Config {
	return &Config{
		APIBaseURL:    "https://webexapis.com/v1",
		AuthURL:       "https://webexapis.com/v1/authorize",
		TokenURL:      "https://webexapis.com/v1/access_token",
		DeviceRegURL:  "https://wdm-a.wbx2.com/wdm/api/v1/devices",
		RedirectURI:   "http://localhost:8080/callback",
		Scope:         "spark:all",
		MaxReconnects: 5,
	}
}

// Token is the persisted OAuth token state.
type Token struct {
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token,omitempty"`
	ExpiresAt    time.Time `yaml:"expires_at,omitempty"`
}

// Dir returns the configuration directory, creating it if necessary.
// PARLEY_CONFIG_DIR overrides the default for tests and unusual setups.
func Dir() (string, error) {
	dir := os.Getenv("PARLEY_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		dir = filepath.Join(home, ".config", "parley")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// Load reads the configuration file, writing out the defaults on first run.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, configFileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := Save(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration file.
func Save(cfg *Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFileName), data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// LoadToken reads the persisted OAuth token. Returns (nil, nil) when no
// token has been saved yet.
func LoadToken() (*Token, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, tokenFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}

	var token Token
	if err := yaml.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	return &token, nil
}

// SaveToken persists the OAuth token.
func SaveToken(token *Token) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tokenFileName), data, 0o600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	return nil
}

// ClearToken removes the persisted token, if any.
func ClearToken() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, tokenFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
