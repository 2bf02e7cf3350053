package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type fileStore struct {
	Path        string `toml:"path"`
	BusyTimeout string `toml:"busy_timeout"`
}

type fileRemote struct {
	BaseURL     string `toml:"base_url"`
	Token       string `toml:"token"`
	Timeout     string `toml:"timeout"`
	ListRetries int    `toml:"list_retries"`
}

type fileConnectivity struct {
	ProbeURL      string `toml:"probe_url"`
	ProbeInterval string `toml:"probe_interval"`
	ProbeTimeout  string `toml:"probe_timeout"`
	Initial       bool   `toml:"initial"`
	Constrained   bool   `toml:"constrained"`
}

type fileSync struct {
	Interval          string `toml:"interval"`
	Debounce          string `toml:"debounce"`
	MaxSubmitAttempts int    `toml:"max_submit_attempts"`
}

type fileRelay struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type fileLog struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Output     string `toml:"output"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type fileMockAPI struct {
	Addr string `toml:"addr"`
}

// file is the on-disk layout. Durations are written as strings ("15s")
// which viper parses back.
type file struct {
	Store        fileStore        `toml:"store"`
	Remote       fileRemote       `toml:"remote"`
	Connectivity fileConnectivity `toml:"connectivity"`
	Sync         fileSync         `toml:"sync"`
	Relay        fileRelay        `toml:"relay"`
	Log          fileLog          `toml:"log"`
	MockAPI      fileMockAPI      `toml:"mockapi"`
}

func toFile(c *Config) file {
	return file{
		Store: fileStore{Path: c.Store.Path, BusyTimeout: c.Store.BusyTimeout.String()},
		Remote: fileRemote{
			BaseURL:     c.Remote.BaseURL,
			Token:       c.Remote.Token,
			Timeout:     c.Remote.Timeout.String(),
			ListRetries: c.Remote.ListRetries,
		},
		Connectivity: fileConnectivity{
			ProbeURL:      c.Connectivity.ProbeURL,
			ProbeInterval: c.Connectivity.ProbeInterval.String(),
			ProbeTimeout:  c.Connectivity.ProbeTimeout.String(),
			Initial:       c.Connectivity.Initial,
			Constrained:   c.Connectivity.Constrained,
		},
		Sync: fileSync{
			Interval:          c.Sync.Interval.String(),
			Debounce:          c.Sync.Debounce.String(),
			MaxSubmitAttempts: c.Sync.MaxSubmitAttempts,
		},
		Relay: fileRelay{Enabled: c.Relay.Enabled, Addr: c.Relay.Addr},
		Log: fileLog{
			Level:      c.Log.Level,
			Format:     c.Log.Format,
			Output:     c.Log.Output,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
		},
		MockAPI: fileMockAPI{Addr: c.MockAPI.Addr},
	}
}

// Write encodes cfg as TOML at path. An existing file is only replaced
// when overwrite is set.
func Write(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := Encode(f, cfg); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Encode writes cfg as TOML in the same layout Load reads.
func Encode(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(toFile(cfg)); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
