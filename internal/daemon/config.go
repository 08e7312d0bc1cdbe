// Package daemon manages the willpower daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all daemon configuration.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Storage       StorageConfig       `toml:"storage"`
	Engine        EngineConfig        `toml:"engine"`
	Notifications NotificationsConfig `toml:"notifications"`
	Push          PushConfig          `toml:"push"`
	Logging       LoggingConfig       `toml:"logging"`
	Telemetry     TelemetryConfig     `toml:"telemetry"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`   // 0 disables the limiter
	RateLimitBurst int      `toml:"rate_limit_burst"`
	Moderators     []string `toml:"moderators"` // user ids allowed to review templates
}

// StorageConfig controls where the document store lives.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// EngineConfig tunes the challenge engine.
type EngineConfig struct {
	Timezone        string `toml:"timezone"` // IANA name; calendar days are computed here
	MaxExtendedDays int    `toml:"max_extended_days"`
	ConflictRetries int    `toml:"conflict_retries"`
}

// NotificationsConfig is the per-user notification policy.
type NotificationsConfig struct {
	MaxPerDay  int    `toml:"max_per_day"`
	QuietStart string `toml:"quiet_start"`
	QuietEnd   string `toml:"quiet_end"`
}

// PushConfig controls push delivery through Firebase Cloud Messaging.
type PushConfig struct {
	Enabled         bool   `toml:"enabled"`
	CredentialsFile string `toml:"credentials_file"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level    string `toml:"level"`
	Encoding string `toml:"encoding"` // "json" or "console"
}

// TelemetryConfig controls the Prometheus endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8787,
			CORSOrigins:    []string{"*"},
			RateLimitRPS:   5,
			RateLimitBurst: 20,
		},
		Storage: StorageConfig{
			Dir: willpowerHome(),
		},
		Engine: EngineConfig{
			Timezone:        "UTC",
			MaxExtendedDays: 90,
			ConflictRetries: 3,
		},
		Notifications: NotificationsConfig{
			MaxPerDay:  3,
			QuietStart: "22:00",
			QuietEnd:   "08:00",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads $WILLPOWER_HOME/config.toml over the defaults, then applies
// environment overrides. A .env file in the working directory is loaded first
// when present.
func LoadConfig() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides config values from WILLPOWER_* variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("WILLPOWER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WILLPOWER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WILLPOWER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("WILLPOWER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WILLPOWER_TIMEZONE"); v != "" {
		cfg.Engine.Timezone = v
	}
	return nil
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Engine.MaxExtendedDays < 1 {
		return fmt.Errorf("engine.max_extended_days must be positive")
	}
	for _, hm := range []string{c.Notifications.QuietStart, c.Notifications.QuietEnd} {
		if hm == "" {
			continue
		}
		if _, err := time.Parse("15:04", hm); err != nil {
			return fmt.Errorf("notifications quiet hours %q: want HH:MM", hm)
		}
	}
	return nil
}

// Location resolves the engine timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Engine.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

// DataDir returns the storage directory, defaulting to WILLPOWER_HOME.
func (c Config) DataDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return willpowerHome()
}

// SaveConfig writes the config to $WILLPOWER_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ConfigPath is the location of config.toml.
func ConfigPath() string {
	return filepath.Join(willpowerHome(), "config.toml")
}

// willpowerHome returns the willpower data directory.
func willpowerHome() string {
	if env := os.Getenv("WILLPOWER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".willpower")
}

// Home is exported for use by other packages.
func Home() string {
	return willpowerHome()
}
