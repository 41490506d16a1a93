package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as a string ("500ms", "30s") in TOML
type Duration time.Duration

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Remote        RemoteConfig        `toml:"remote"`
	Export        ExportConfig        `toml:"export"`
	Merge         MergeConfig         `toml:"merge"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Log           LogConfig           `toml:"log"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
	SchedulePath string `toml:"schedule_path"`
}

// RemoteConfig holds settings for the remote export service
type RemoteConfig struct {
	BaseURL           string   `toml:"base_url"`
	Token             string   `toml:"token"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// ExportConfig holds batch export settings
type ExportConfig struct {
	Pace          Duration `toml:"pace"`
	SubmitTimeout Duration `toml:"submit_timeout"`
	StallAfter    Duration `toml:"stall_after"`
	Format        string   `toml:"format"`
	DownloadMedia bool     `toml:"download_media"`
}

// MergeConfig holds the default merge options
type MergeConfig struct {
	Dedupe        bool `toml:"dedupe"`
	DeleteSources bool `toml:"delete_sources"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
	Log          bool   `toml:"log"`
}

// WebConfig holds web API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".qce-orchestrator", "history.db"),
			SchedulePath: filepath.Join(home, ".config", "qce-orchestrator", "schedule.toml"),
		},
		Remote: RemoteConfig{
			BaseURL:           "http://127.0.0.1:40653",
			Timeout:           Duration(60 * time.Second),
			RequestsPerSecond: 5,
		},
		Export: ExportConfig{
			Pace:       Duration(500 * time.Millisecond),
			StallAfter: Duration(30 * time.Second),
			Format:     "html",
		},
		Merge: MergeConfig{
			Dedupe:        true,
			DeleteSources: false,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
			Log:     true,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.SchedulePath = ExpandPath(cfg.General.SchedulePath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at first use
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Export.Pace < 0 || c.Export.SubmitTimeout < 0 || c.Export.StallAfter < 0 {
		return fmt.Errorf("export durations must not be negative")
	}
	switch strings.ToLower(c.Export.Format) {
	case "json", "txt", "html":
	default:
		return fmt.Errorf("export.format %q is not one of json, txt, html", c.Export.Format)
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", c.Web.Port)
	}
	return nil
}

// Addr returns the web listen address
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "qce-orchestrator", "config.toml")
}
