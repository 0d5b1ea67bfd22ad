// Package config loads application configuration from an optional TOML file
// and environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the vault configuration.
type Config struct {
	// SecretKey is the master key material: 32 bytes as hex or base64, or a
	// passphrase. Empty means the vault cannot encrypt or decrypt.
	SecretKey string
	// PreviousSecretKey is the key being rotated away from.
	PreviousSecretKey string
	DBPath            string
	StorageTimeout    time.Duration
	DefaultUser       string
	LogLevel          slog.Level
	GitLabBaseURL     string
	AnthropicBaseURL  string
}

// fileConfig is the on-disk shape of the TOML file.
type fileConfig struct {
	SecretKey         string `toml:"secret_key"`
	PreviousSecretKey string `toml:"previous_secret_key"`
	DBPath            string `toml:"db_path"`
	StorageTimeout    string `toml:"storage_timeout"`
	DefaultUser       string `toml:"default_user"`
	LogLevel          string `toml:"log_level"`
	GitLabBaseURL     string `toml:"gitlab_base_url"`
	AnthropicBaseURL  string `toml:"anthropic_base_url"`
}

// HasSecretKey returns true when key material is configured.
func (c *Config) HasSecretKey() bool {
	return c.SecretKey != ""
}

// Load reads configuration and returns a validated Config.
//
// CREDVAULT_CONFIG names an optional TOML file. Each setting can then be
// overridden by its variable: CREDVAULT_SECRET_KEY,
// CREDVAULT_PREVIOUS_SECRET_KEY, CREDVAULT_DB_PATH (credvault.db),
// CREDVAULT_STORAGE_TIMEOUT (5s), CREDVAULT_USER (falls back to $USER),
// CREDVAULT_LOG_LEVEL (warn), CREDVAULT_GITLAB_BASE_URL and
// CREDVAULT_ANTHROPIC_BASE_URL. Empty variables are ignored.
func Load() (*Config, error) {
	fc := fileConfig{
		DBPath:         "credvault.db",
		StorageTimeout: "5s",
		LogLevel:       "warn",
	}

	if path, ok := os.LookupEnv("CREDVAULT_CONFIG"); ok && path != "" {
		if err := decodeFile(path, &fc); err != nil {
			return nil, err
		}
	}

	overlay(&fc.SecretKey, "CREDVAULT_SECRET_KEY")
	overlay(&fc.PreviousSecretKey, "CREDVAULT_PREVIOUS_SECRET_KEY")
	overlay(&fc.DBPath, "CREDVAULT_DB_PATH")
	overlay(&fc.StorageTimeout, "CREDVAULT_STORAGE_TIMEOUT")
	overlay(&fc.DefaultUser, "CREDVAULT_USER")
	overlay(&fc.LogLevel, "CREDVAULT_LOG_LEVEL")
	overlay(&fc.GitLabBaseURL, "CREDVAULT_GITLAB_BASE_URL")
	overlay(&fc.AnthropicBaseURL, "CREDVAULT_ANTHROPIC_BASE_URL")

	if fc.DefaultUser == "" {
		fc.DefaultUser = os.Getenv("USER")
	}

	timeout, err := time.ParseDuration(fc.StorageTimeout)
	if err != nil {
		return nil, fmt.Errorf("CREDVAULT_STORAGE_TIMEOUT has invalid duration %q: %w", fc.StorageTimeout, err)
	}
	if timeout < 0 {
		return nil, fmt.Errorf("CREDVAULT_STORAGE_TIMEOUT must not be negative, got %s", timeout)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(fc.LogLevel)); err != nil {
		return nil, fmt.Errorf("CREDVAULT_LOG_LEVEL has invalid level %q: %w", fc.LogLevel, err)
	}

	if fc.DBPath == "" {
		return nil, errors.New("db_path must not be empty")
	}

	return &Config{
		SecretKey:         fc.SecretKey,
		PreviousSecretKey: fc.PreviousSecretKey,
		DBPath:            fc.DBPath,
		StorageTimeout:    timeout,
		DefaultUser:       fc.DefaultUser,
		LogLevel:          level,
		GitLabBaseURL:     strings.TrimRight(fc.GitLabBaseURL, "/"),
		AnthropicBaseURL:  fc.AnthropicBaseURL,
	}, nil
}

func decodeFile(path string, fc *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	md, err := toml.Decode(string(data), fc)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}
	return nil
}

// overlay replaces *dst with the variable's value when it is set and
// non-empty. An exported but empty variable keeps the file value or default.
func overlay(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
