package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	History HistoryConfig `mapstructure:"history"`
	Log     LogConfig     `mapstructure:"log"`
	UI      UIConfig      `mapstructure:"ui"`
}

// APIConfig points at the Power Policy server.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

// SessionConfig controls where the bearer token is kept between runs.
type SessionConfig struct {
	Path    string `mapstructure:"path"`
	Persist bool   `mapstructure:"persist"`
}

// HistoryConfig holds the recall database settings.
type HistoryConfig struct {
	Path  string `mapstructure:"path"`
	Limit int    `mapstructure:"limit"`
}

type LogConfig struct {
	Path        string `mapstructure:"path"`
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	DateFormat string `mapstructure:"date_format"`
	TimeFormat string `mapstructure:"time_format"`
	Timezone   string `mapstructure:"timezone"`
}

// Location resolves Timezone, falling back to the local zone.
func (u UIConfig) Location() *time.Location {
	if u.Timezone == "" || strings.EqualFold(u.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func home() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return os.Getenv("HOME")
}

func userDir(fn func() (string, error), fallback ...string) string {
	if d, err := fn(); err == nil && d != "" {
		return filepath.Join(d, "powerpolicy")
	}
	return filepath.Join(append([]string{home()}, fallback...)...)
}

// Path returns the config file location: $POWERPOLICY_CONFIG, or
// ~/.config/powerpolicy/config.toml.
func Path() string {
	if p := os.Getenv("POWERPOLICY_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(home(), ".config", "powerpolicy", "config.toml")
}

func defaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.burst", 5)
	v.SetDefault("session.path", filepath.Join(userDir(os.UserConfigDir, ".config", "powerpolicy"), "session.json"))
	v.SetDefault("session.persist", true)
	v.SetDefault("history.path", filepath.Join(home(), ".local", "share", "powerpolicy", "history.db"))
	v.SetDefault("history.limit", 20)
	v.SetDefault("log.path", filepath.Join(userDir(os.UserCacheDir, ".cache", "powerpolicy"), "powerpolicy.log"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("ui.date_format", "2006-01-02")
	v.SetDefault("ui.time_format", "2006-01-02 15:04")
	v.SetDefault("ui.timezone", "Local")
}

// Load reads configuration from the default path and env. Env var overrides
// use prefix POWERPOLICY_, e.g. POWERPOLICY_API_BASE_URL.
func Load() (Config, error) { return LoadFrom("") }

// LoadFrom is Load with an explicit config file; empty means Path().
// A missing file is not an error.
func LoadFrom(path string) (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigType("toml")
	if path == "" {
		path = Path()
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix("POWERPOLICY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail later and less clearly.
func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q must be an absolute URL", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	if c.History.Limit < 1 {
		return fmt.Errorf("history.limit must be at least 1")
	}
	return nil
}

// Save writes cfg to Path(), creating the config directory if needed.
func Save(cfg Config) error { return SaveTo(Path(), cfg) }

func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("api.rate_limit", cfg.API.RateLimit)
	v.Set("api.burst", cfg.API.Burst)
	v.Set("session.path", cfg.Session.Path)
	v.Set("session.persist", cfg.Session.Persist)
	v.Set("history.path", cfg.History.Path)
	v.Set("history.limit", cfg.History.Limit)
	v.Set("log.path", cfg.Log.Path)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.development", cfg.Log.Development)
	v.Set("ui.date_format", cfg.UI.DateFormat)
	v.Set("ui.time_format", cfg.UI.TimeFormat)
	v.Set("ui.timezone", cfg.UI.Timezone)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
