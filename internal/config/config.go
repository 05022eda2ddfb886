package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// GlobalConfig represents the global ~/.dormchat/config.toml.
type GlobalConfig struct {
	DefaultProfile string `toml:"default_profile"`
}

// Config represents a per-profile config.toml. The API and WebSocket hosts
// are deliberately configuration, not constants.
type Config struct {
	APIBaseURL string `toml:"api_base_url"`
	WSBaseURL  string `toml:"ws_base_url"`
	UserID     int64  `toml:"user_id"`

	// ContactRefresh is the interval in seconds between contact list
	// re-fetches. Zero means the default of 60.
	ContactRefresh int `toml:"contact_refresh_seconds"`
}

// LoadGlobal reads the global config from the given path.
func LoadGlobal(path string) (*GlobalConfig, error) {
	var cfg GlobalConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a profile config from the given path and validates it.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks required fields and normalizes URL schemes.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return fmt.Errorf("api_base_url must start with http:// or https://")
	}
	if c.WSBaseURL == "" {
		return fmt.Errorf("ws_base_url is required")
	}
	if !strings.HasPrefix(c.WSBaseURL, "ws://") && !strings.HasPrefix(c.WSBaseURL, "wss://") {
		return fmt.Errorf("ws_base_url must start with ws:// or wss://")
	}
	if c.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// Save writes a profile config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// SaveGlobal writes the global config to the given path.
func SaveGlobal(path string, cfg *GlobalConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
