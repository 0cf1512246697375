package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	SQL      SQLConfig      `toml:"sql"`
	Log      LogConfig      `toml:"log"`
	Ops      OpsConfig      `toml:"ops"`
}

type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type DatabaseConfig struct {
	BusyTimeoutMs int  `toml:"busy_timeout_ms"`
	ForeignKeys   bool `toml:"foreign_keys"`
}

func (c DatabaseConfig) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

type SQLConfig struct {
	// StrictStatements rejects SQL text holding more than one statement.
	StrictStatements bool `toml:"strict_statements"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// OpsConfig controls the sidecar database for audit and SQL traces.
// An empty Path disables both.
type OpsConfig struct {
	Path        string `toml:"path"`
	Audit       bool   `toml:"audit"`
	Trace       bool   `toml:"trace"`
	SlowQueryMs int    `toml:"slow_query_ms"`
}

func (c OpsConfig) SlowQuery() time.Duration {
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "sqlite",
			Version: "0.1.0",
		},
		Database: DatabaseConfig{
			BusyTimeoutMs: 5000,
			ForeignKeys:   true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Ops: OpsConfig{
			Audit:       true,
			Trace:       true,
			SlowQueryMs: 100,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms: must be >= 0")
	}
	return nil
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
}
