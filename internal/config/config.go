// Package config loads daemon configuration from file, environment, and
// flags, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the daemon and CLI commands need.
type Config struct {
	// ServerBaseURL is the inspection server, including scheme.
	ServerBaseURL string `mapstructure:"server_base_url"`

	// DatabasePath is the local SQLite database file.
	DatabasePath string `mapstructure:"database_path"`

	// CaptureDir is watched for evidence files to upload.
	CaptureDir string `mapstructure:"capture_dir"`

	// TokenFile holds the current bearer token, written by the login flow.
	TokenFile string `mapstructure:"token_file"`

	// RetentionDays bounds the age of sync logs and replayed requests.
	RetentionDays int `mapstructure:"retention_days"`

	// PendingInterval is the pending-count recompute cadence.
	PendingInterval time.Duration `mapstructure:"pending_interval"`

	// ProbeURL is HEAD-probed to detect connectivity. Defaults to the
	// server base URL when empty.
	ProbeURL string `mapstructure:"probe_url"`

	// ProbeInterval is the connectivity probe cadence.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// HTTPTimeout is the per-request timeout for server calls.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// DashboardAddr is the WebSocket dashboard listen address. Empty
	// disables the dashboard.
	DashboardAddr string `mapstructure:"dashboard_addr"`

	// LogFile receives daemon logs with rotation. Empty logs to stderr.
	LogFile string `mapstructure:"log_file"`
}

// DefaultDataDir returns the per-user data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldsync"
	}
	return filepath.Join(home, ".fieldsync")
}

func setDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()
	// every key gets a default so environment overrides reach Unmarshal
	v.SetDefault("server_base_url", "")
	v.SetDefault("probe_url", "")
	v.SetDefault("database_path", filepath.Join(dataDir, "fieldsync.db"))
	v.SetDefault("capture_dir", filepath.Join(dataDir, "captures"))
	v.SetDefault("token_file", filepath.Join(dataDir, "token"))
	v.SetDefault("retention_days", 7)
	v.SetDefault("pending_interval", 30*time.Second)
	v.SetDefault("probe_interval", 5*time.Second)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("dashboard_addr", "")
	v.SetDefault("log_file", "")
}

// Load reads configuration from the given file (optional), the FIELDSYNC_*
// environment, and defaults. An empty path searches the data directory and
// the working directory for fieldsync.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FIELDSYNC")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("fieldsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDataDir())
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			// no config file is fine; env and defaults carry it
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ProbeURL == "" {
		cfg.ProbeURL = cfg.ServerBaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and normalizes bounds.
func (c *Config) Validate() error {
	if c.ServerBaseURL == "" {
		return fmt.Errorf("server_base_url is required (set FIELDSYNC_SERVER_BASE_URL or the config file)")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path cannot be empty")
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 7
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = 30 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 5 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	return nil
}
