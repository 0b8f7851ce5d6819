// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete clausedesk configuration.
type Config struct {
	// General settings
	Version string `toml:"version"`

	// Server connection configuration
	Server ServerConfig `toml:"server"`

	// Chat behavior configuration
	Chat ChatConfig `toml:"chat"`

	// History index configuration
	History HistoryConfig `toml:"history"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// ServerConfig contains backend connection configuration.
type ServerConfig struct {
	// URL is the base URL of the ClauseDesk backend
	URL string `toml:"url"`
	// Token is the bearer token sent with every request (empty = no auth)
	Token string `toml:"token"`
	// Model is the model identifier passed to the backend (empty = server default)
	Model string `toml:"model"`
	// TimeoutSecs is the request timeout for non-streaming calls
	TimeoutSecs int `toml:"timeout_secs"`
}

// ChatConfig contains chat behavior configuration.
type ChatConfig struct {
	// TopK is the number of document chunks retrieved per question (1-20)
	TopK int `toml:"top_k"`
	// HistoryWindow is how many trailing messages accompany each request
	HistoryWindow int `toml:"history_window"`
	// Stream enables token streaming; when false every answer arrives whole
	Stream bool `toml:"stream"`
	// AutoSave persists the conversation after each completed answer
	AutoSave bool `toml:"auto_save"`
}

// HistoryConfig contains search index configuration.
type HistoryConfig struct {
	// Enabled controls whether the SQLite search index is maintained
	Enabled bool `toml:"enabled"`
	// DBPath overrides the index database location (empty = ~/.clausedesk/history.db)
	DBPath string `toml:"db_path"`
	// Watch keeps the index current via filesystem notifications
	Watch bool `toml:"watch"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// ShowSources displays retrieved citations under each answer
	ShowSources bool `toml:"show_sources"`
	// ShowConfidence displays the answer confidence score
	ShowConfidence bool `toml:"show_confidence"`
	// Markdown renders answers as markdown on capable terminals
	Markdown bool `toml:"markdown"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			URL:         "http://127.0.0.1:8000",
			Token:       "",
			Model:       "",
			TimeoutSecs: 120,
		},

		Chat: ChatConfig{
			TopK:          8,
			HistoryWindow: 20,
			Stream:        true,
			AutoSave:      true,
		},

		History: HistoryConfig{
			Enabled: true,
			DBPath:  "",
			Watch:   true,
		},

		UI: UIConfig{
			Theme:          "auto",
			ShowSources:    true,
			ShowConfidence: true,
			Markdown:       true,
			CompactMode:    false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the clausedesk configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".clausedesk"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect tokens.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0600 {
		return os.Chmod(path, 0600)
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default path, falling back to defaults.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := LoadTOML(cfg, path); err != nil {
				loadErr = fmt.Errorf("failed to load config: %w", err)
			} else {
				cfg.ApplyEnvOverrides()
				if err := cfg.Validate(); err != nil {
					return nil, fmt.Errorf("invalid config: %w", err)
				}
				return cfg, nil
			}
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems. Warn and continue.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	if cfg.Server.URL == "" {
		cfg.Server.URL = defaults.Server.URL
	}
	if cfg.Server.TimeoutSecs == 0 {
		cfg.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}

	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = defaults.Chat.TopK
	}
	if cfg.Chat.HistoryWindow == 0 {
		cfg.Chat.HistoryWindow = defaults.Chat.HistoryWindow
	}

	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// SECURITY: Ensure permissions are correct even if file already existed
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# clausedesk configuration file")
	fmt.Fprintln(file, "# Generated by clausedesk - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

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

	if c.Server.URL != "" {
		u, err := url.Parse(c.Server.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "server.url",
				Message: fmt.Sprintf("invalid URL %q", c.Server.URL),
			})
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, ValidationError{
				Field:   "server.url",
				Message: fmt.Sprintf("unsupported scheme %q (expected http or https)", u.Scheme),
			})
		}
	}

	if c.Server.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.timeout_secs",
			Message: "must not be negative",
		})
	}

	if c.Chat.TopK < 1 || c.Chat.TopK > 20 {
		errs = append(errs, ValidationError{
			Field:   "chat.top_k",
			Message: fmt.Sprintf("must be between 1 and 20, got %d", c.Chat.TopK),
		})
	}

	if c.Chat.HistoryWindow < 1 {
		errs = append(errs, ValidationError{
			Field:   "chat.history_window",
			Message: "must be at least 1",
		})
	}

	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("unknown theme %q (expected dark, light, or auto)", c.UI.Theme),
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

// ApplyEnvOverrides applies CLAUSEDESK_* environment variables over the
// loaded configuration. Environment always wins over file values.
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("CLAUSEDESK_URL"); u != "" {
		c.Server.URL = u
	}

	// SECURITY: Tokens belong in the environment, not on disk.
	if token := os.Getenv("CLAUSEDESK_TOKEN"); token != "" {
		c.Server.Token = token
	}

	if model := os.Getenv("CLAUSEDESK_MODEL"); model != "" {
		c.Server.Model = model
	}

	if topK := os.Getenv("CLAUSEDESK_TOP_K"); topK != "" {
		if n, err := strconv.Atoi(topK); err == nil {
			c.Chat.TopK = n
		}
	}

	if stream := os.Getenv("CLAUSEDESK_NO_STREAM"); stream != "" {
		c.Chat.Stream = !(stream == "1" || strings.ToLower(stream) == "true")
	}

	if theme := os.Getenv("CLAUSEDESK_THEME"); theme != "" {
		c.UI.Theme = theme
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "chat.top_k").
func (c *Config) Get(key string) (interface{}, error) {
	switch key {
	case "server.url":
		return c.Server.URL, nil
	case "server.token":
		return c.Server.Token, nil
	case "server.model":
		return c.Server.Model, nil
	case "server.timeout_secs":
		return c.Server.TimeoutSecs, nil
	case "chat.top_k":
		return c.Chat.TopK, nil
	case "chat.history_window":
		return c.Chat.HistoryWindow, nil
	case "chat.stream":
		return c.Chat.Stream, nil
	case "chat.auto_save":
		return c.Chat.AutoSave, nil
	case "history.enabled":
		return c.History.Enabled, nil
	case "history.watch":
		return c.History.Watch, nil
	case "ui.theme":
		return c.UI.Theme, nil
	case "ui.show_sources":
		return c.UI.ShowSources, nil
	case "ui.show_confidence":
		return c.UI.ShowConfidence, nil
	case "ui.markdown":
		return c.UI.Markdown, nil
	case "ui.compact_mode":
		return c.UI.CompactMode, nil
	}
	return nil, fmt.Errorf("unknown config key: %s", key)
}

// Set updates a configuration value using dot notation. The value is
// parsed according to the field's type.
func (c *Config) Set(key, value string) error {
	switch key {
	case "server.url":
		c.Server.URL = value
	case "server.token":
		c.Server.Token = value
	case "server.model":
		c.Server.Model = value
	case "server.timeout_secs":
		return setInt(&c.Server.TimeoutSecs, key, value)
	case "chat.top_k":
		return setInt(&c.Chat.TopK, key, value)
	case "chat.history_window":
		return setInt(&c.Chat.HistoryWindow, key, value)
	case "chat.stream":
		return setBool(&c.Chat.Stream, key, value)
	case "chat.auto_save":
		return setBool(&c.Chat.AutoSave, key, value)
	case "history.enabled":
		return setBool(&c.History.Enabled, key, value)
	case "history.watch":
		return setBool(&c.History.Watch, key, value)
	case "ui.theme":
		c.UI.Theme = value
	case "ui.show_sources":
		return setBool(&c.UI.ShowSources, key, value)
	case "ui.show_confidence":
		return setBool(&c.UI.ShowConfidence, key, value)
	case "ui.markdown":
		return setBool(&c.UI.Markdown, key, value)
	case "ui.compact_mode":
		return setBool(&c.UI.CompactMode, key, value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: expected integer, got %q", key, value)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s: expected boolean, got %q", key, value)
	}
	*dst = b
	return nil
}

// AllKeys lists every key usable with Get and Set, sorted for display.
func AllKeys() []string {
	return []string{
		"chat.auto_save",
		"chat.history_window",
		"chat.stream",
		"chat.top_k",
		"history.enabled",
		"history.watch",
		"server.model",
		"server.timeout_secs",
		"server.token",
		"server.url",
		"ui.compact_mode",
		"ui.markdown",
		"ui.show_confidence",
		"ui.show_sources",
		"ui.theme",
	}
}

// =============================================================================
// GLOBAL CONFIG INSTANCE
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first use.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			// Log but don't fail - use defaults
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
