// Package config loads crewsync configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CREWSYNC_REMOTE_TOKEN.
const EnvPrefix = "CREWSYNC"

// Config holds all application configuration
type Config struct {
	Store        StoreConfig
	Remote       RemoteConfig
	Connectivity ConnectivityConfig
	Sync         SyncConfig
	Relay        RelayConfig
	Log          LogConfig
	MockAPI      MockAPIConfig
}

// StoreConfig locates the local cache database.
type StoreConfig struct {
	Path        string
	BusyTimeout time.Duration
}

// RemoteConfig holds REST API settings
type RemoteConfig struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	ListRetries int
}

// ConnectivityConfig holds reachability probe settings
type ConnectivityConfig struct {
	ProbeURL      string // defaults to <remote.base_url>/health
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	Initial       bool // assumed reachability before the first probe
	Constrained   bool // treat the link as metered; background passes are skipped
}

// SyncConfig holds background sync settings
type SyncConfig struct {
	Interval          time.Duration
	Debounce          time.Duration
	MaxSubmitAttempts int // 0 retries forever
}

// RelayConfig holds websocket status relay settings
type RelayConfig struct {
	Enabled bool
	Addr    string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, or file path
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// MockAPIConfig holds settings for the bundled fake backend
type MockAPIConfig struct {
	Addr string
}

// Load loads configuration from an optional file and environment variables.
// Priority (highest to lowest):
//  1. Environment variables with CREWSYNC_ prefix (e.g. CREWSYNC_REMOTE_BASE_URL)
//  2. The file at path, or crewsync.toml/yaml found in the working directory
//     or the user config directory when path is empty
//  3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("crewsync")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "crewsync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Store: StoreConfig{
			Path:        v.GetString("store.path"),
			BusyTimeout: v.GetDuration("store.busy_timeout"),
		},
		Remote: RemoteConfig{
			BaseURL:     v.GetString("remote.base_url"),
			Token:       v.GetString("remote.token"),
			Timeout:     v.GetDuration("remote.timeout"),
			ListRetries: v.GetInt("remote.list_retries"),
		},
		Connectivity: ConnectivityConfig{
			ProbeURL:      v.GetString("connectivity.probe_url"),
			ProbeInterval: v.GetDuration("connectivity.probe_interval"),
			ProbeTimeout:  v.GetDuration("connectivity.probe_timeout"),
			Initial:       v.GetBool("connectivity.initial"),
			Constrained:   v.GetBool("connectivity.constrained"),
		},
		Sync: SyncConfig{
			Interval:          v.GetDuration("sync.interval"),
			Debounce:          v.GetDuration("sync.debounce"),
			MaxSubmitAttempts: v.GetInt("sync.max_submit_attempts"),
		},
		Relay: RelayConfig{
			Enabled: v.GetBool("relay.enabled"),
			Addr:    v.GetString("relay.addr"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		MockAPI: MockAPIConfig{
			Addr: v.GetString("mockapi.addr"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath()
	}
	if cfg.Store.BusyTimeout == 0 {
		cfg.Store.BusyTimeout = 5 * time.Second
	}
	if cfg.Remote.BaseURL == "" {
		cfg.Remote.BaseURL = "http://127.0.0.1:8081"
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 10 * time.Second
	}
	if cfg.Connectivity.ProbeURL == "" {
		cfg.Connectivity.ProbeURL = strings.TrimRight(cfg.Remote.BaseURL, "/") + "/health"
	}
	if cfg.Connectivity.ProbeInterval == 0 {
		cfg.Connectivity.ProbeInterval = 15 * time.Second
	}
	if cfg.Connectivity.ProbeTimeout == 0 {
		cfg.Connectivity.ProbeTimeout = 3 * time.Second
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = 5 * time.Minute
	}
	if cfg.Sync.Debounce == 0 {
		cfg.Sync.Debounce = 500 * time.Millisecond
	}
	if cfg.Relay.Addr == "" {
		cfg.Relay.Addr = "127.0.0.1:8765"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 20
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 28
	}
	if cfg.MockAPI.Addr == "" {
		cfg.MockAPI.Addr = "127.0.0.1:8081"
	}
}

func defaultStorePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "crewsync", "crewsync.db")
	}
	return "crewsync.db"
}

// validate checks that the configuration is usable
func (c *Config) validate() error {
	for name, raw := range map[string]string{
		"remote.base_url":        c.Remote.BaseURL,
		"connectivity.probe_url": c.Connectivity.ProbeURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
		}
	}

	if c.Remote.Timeout < 0 || c.Connectivity.ProbeTimeout < 0 || c.Store.BusyTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Sync.MaxSubmitAttempts < 0 {
		return errors.New("sync.max_submit_attempts must not be negative")
	}
	if c.Remote.ListRetries < 0 {
		return errors.New("remote.list_retries must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
