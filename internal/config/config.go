// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for lagoon.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides. File location: ~/.lagoon/config.toml.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/lagoon-tui/internal/model"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete lagoon configuration.
type Config struct {
	Version string `toml:"version"`

	// User is the identity chats are created under.
	User UserConfig `toml:"user"`

	// API configures the completion provider.
	API APIConfig `toml:"api"`

	// Repository configures the chat repository service.
	Repository RepositoryConfig `toml:"repository"`

	// Chat configures submission behavior.
	Chat ChatConfig `toml:"chat"`

	// UI configures the terminal interface.
	UI UIConfig `toml:"ui"`
}

// UserConfig identifies the chat owner.
type UserConfig struct {
	// ID is the user identity sent to the repository service.
	ID string `toml:"id"`
}

// APIConfig contains completion provider configuration.
type APIConfig struct {
	// Key is the completion API key.
	Key string `toml:"key"`
	// BaseURL overrides the provider endpoint (OpenAI-compatible).
	BaseURL string `toml:"base_url"`
	// Model is the completion model used for submissions.
	Model string `toml:"model"`
}

// RepositoryConfig contains chat repository service configuration.
type RepositoryConfig struct {
	// URL is the base URL of the repository service.
	URL string `toml:"url"`
	// Token is the bearer token for repository requests.
	Token string `toml:"token"`
}

// ChatConfig contains submission behavior configuration.
type ChatConfig struct {
	// Temperature is the sampling temperature (0-2).
	Temperature float64 `toml:"temperature"`
	// TopP is the nucleus sampling parameter (0-1).
	TopP float64 `toml:"top_p"`
	// PresencePenalty penalizes tokens already present (-2 to 2).
	PresencePenalty float64 `toml:"presence_penalty"`
	// FrequencyPenalty penalizes frequent tokens (-2 to 2).
	FrequencyPenalty float64 `toml:"frequency_penalty"`
	// MaxTokens caps the completion length (0 = provider default).
	MaxTokens int `toml:"max_tokens"`
	// AutoTitle derives a chat title after the first exchange.
	AutoTitle bool `toml:"auto_title"`
	// Persona is an optional character applied as a system prompt.
	Persona string `toml:"persona"`
}

// UIConfig contains terminal interface configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// ShowCost displays accumulated cost in the status bar.
	ShowCost bool `toml:"show_cost"`
	// ShowTokens displays token counts in the status bar.
	ShowTokens bool `toml:"show_tokens"`
	// Markdown renders completed assistant messages as markdown.
	Markdown bool `toml:"markdown"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		API: APIConfig{
			Model: model.DefaultModel,
		},

		Repository: RepositoryConfig{
			URL: "http://127.0.0.1:8787",
		},

		Chat: ChatConfig{
			Temperature: 1.0,
			TopP:        1.0,
			AutoTitle:   true,
		},

		UI: UIConfig{
			Theme:      "dark",
			ShowCost:   true,
			ShowTokens: true,
			Markdown:   true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the lagoon configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".lagoon"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on the config
// file, which holds API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions: %w", err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from the default file, falling back to
// defaults when it does not exist. Environment overrides apply last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default TOML file with
// owner-only permissions.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# lagoon configuration file")
	fmt.Fprintln(file, "# Generated by lagoon - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

// SetDefaults fills any missing or zero-value fields with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.API.Model == "" {
		c.API.Model = defaults.API.Model
	}
	if c.Repository.URL == "" {
		c.Repository.URL = defaults.Repository.URL
	}
	if c.Chat.Temperature == 0 {
		c.Chat.Temperature = defaults.Chat.Temperature
	}
	if c.Chat.TopP == 0 {
		c.Chat.TopP = defaults.Chat.TopP
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.API.BaseURL != "" {
		if _, err := url.Parse(c.API.BaseURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "api.base_url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		}
	}

	if c.Repository.URL != "" {
		if _, err := url.Parse(c.Repository.URL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "repository.url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		}
	}

	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "chat.temperature",
			Message: fmt.Sprintf("must be between 0 and 2, got %v", c.Chat.Temperature),
		})
	}

	if c.Chat.TopP < 0 || c.Chat.TopP > 1 {
		errs = append(errs, ValidationError{
			Field:   "chat.top_p",
			Message: fmt.Sprintf("must be between 0 and 1, got %v", c.Chat.TopP),
		})
	}

	if c.Chat.PresencePenalty < -2 || c.Chat.PresencePenalty > 2 {
		errs = append(errs, ValidationError{
			Field:   "chat.presence_penalty",
			Message: fmt.Sprintf("must be between -2 and 2, got %v", c.Chat.PresencePenalty),
		})
	}

	if c.Chat.FrequencyPenalty < -2 || c.Chat.FrequencyPenalty > 2 {
		errs = append(errs, ValidationError{
			Field:   "chat.frequency_penalty",
			Message: fmt.Sprintf("must be between -2 and 2, got %v", c.Chat.FrequencyPenalty),
		})
	}

	if c.Chat.MaxTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.max_tokens",
			Message: "must be non-negative",
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - LAGOON_API_KEY: overrides api.key
//   - LAGOON_API_URL: overrides api.base_url
//   - LAGOON_MODEL: overrides api.model
//   - LAGOON_REPO_URL: overrides repository.url
//   - LAGOON_REPO_TOKEN: overrides repository.token
//   - LAGOON_USER: overrides user.id
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("LAGOON_API_KEY"); key != "" {
		c.API.Key = key
	}
	if u := os.Getenv("LAGOON_API_URL"); u != "" {
		c.API.BaseURL = u
	}
	if m := os.Getenv("LAGOON_MODEL"); m != "" {
		c.API.Model = m
	}
	if u := os.Getenv("LAGOON_REPO_URL"); u != "" {
		c.Repository.URL = u
	}
	if tok := os.Getenv("LAGOON_REPO_TOKEN"); tok != "" {
		c.Repository.Token = tok
	}
	if id := os.Getenv("LAGOON_USER"); id != "" {
		c.User.ID = id
	}
}

// =============================================================================
// SETTINGS SNAPSHOT
// =============================================================================

// ToSettings converts the chat section into the per-submission settings
// snapshot.
func (c *Config) ToSettings() model.Settings {
	return model.Settings{
		Model:            c.API.Model,
		Temperature:      c.Chat.Temperature,
		TopP:             c.Chat.TopP,
		PresencePenalty:  c.Chat.PresencePenalty,
		FrequencyPenalty: c.Chat.FrequencyPenalty,
		MaxTokens:        c.Chat.MaxTokens,
		AutoTitle:        c.Chat.AutoTitle,
		Persona:          c.Chat.Persona,
	}
}
