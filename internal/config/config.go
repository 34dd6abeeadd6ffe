package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/livinlefevreloca/periodic/internal/db"
)

// ErrInvalid is wrapped by every configuration error
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	ScanPaths               []string      `toml:"scan_paths"`
	ScanIntervalSeconds     int           `toml:"scan_interval_seconds"`
	RunnerPollSeconds       int           `toml:"runner_poll_seconds"`
	DBPath                  string        `toml:"db_path"`
	DBDriver                string        `toml:"db_driver"`
	DashboardRefreshSeconds int           `toml:"dashboard_refresh_seconds"`
	TUIRefreshSeconds       int           `toml:"tui_refresh_seconds"`
	TaskTimeout             time.Duration `toml:"task_timeout"`
	ScanWatch               bool          `toml:"scan_watch"`
	Logging                 LoggingConfig `toml:"logging"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// requiredKeys maps each required key to the environment variables that can supply it
var requiredKeys = map[string][]string{
	"scan_paths":                {"SCAN_PATHS"},
	"scan_interval_seconds":     {"SCAN_INTERVAL_SECONDS"},
	"runner_poll_seconds":       {"RUNNER_POLL_SECONDS"},
	"db_path":                   {"DB_PATH"},
	"dashboard_refresh_seconds": {"DASHBOARD_REFRESH_SECONDS", "TUI_REFRESH_SECONDS"},
}

// DefaultConfig returns a Config holding the optional defaults. Required keys are left zero.
func DefaultConfig() *Config {
	return &Config{
		DBDriver: db.DriverSQLite3,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file
// 3. Environment variables
func LoadConfig(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: config file %s: %v", ErrInvalid, path, err)
	}

	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %v", ErrInvalid, err)
	}

	if config.DashboardRefreshSeconds == 0 && meta.IsDefined("tui_refresh_seconds") {
		config.DashboardRefreshSeconds = config.TUIRefreshSeconds
	}

	overridden, err := config.applyEnv(lookup)
	if err != nil {
		return nil, err
	}

	var missing []string
	for key := range requiredKeys {
		if meta.IsDefined(key) || overridden[key] {
			continue
		}
		if key == "dashboard_refresh_seconds" && meta.IsDefined("tui_refresh_seconds") {
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: missing required config keys: %s", ErrInvalid, strings.Join(missing, ", "))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides file values from the environment and reports which keys it set
func (c *Config) applyEnv(lookup func(string) (string, bool)) (map[string]bool, error) {
	overridden := map[string]bool{}

	if v, ok := lookup("SCAN_PATHS"); ok {
		c.ScanPaths = nil
		for _, p := range strings.Split(v, ":") {
			if p != "" {
				c.ScanPaths = append(c.ScanPaths, p)
			}
		}
		overridden["scan_paths"] = true
	}
	if v, ok := lookup("DB_PATH"); ok {
		c.DBPath = v
		overridden["db_path"] = true
	}

	ints := []struct {
		env  string
		key  string
		dest *int
	}{
		{"SCAN_INTERVAL_SECONDS", "scan_interval_seconds", &c.ScanIntervalSeconds},
		{"RUNNER_POLL_SECONDS", "runner_poll_seconds", &c.RunnerPollSeconds},
		{"TUI_REFRESH_SECONDS", "dashboard_refresh_seconds", &c.DashboardRefreshSeconds},
		{"DASHBOARD_REFRESH_SECONDS", "dashboard_refresh_seconds", &c.DashboardRefreshSeconds},
	}
	for _, o := range ints {
		v, ok := lookup(o.env)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalid, o.env, v)
		}
		*o.dest = n
		overridden[o.key] = true
	}

	return overridden, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.ScanPaths) == 0 {
		return fmt.Errorf("%w: scan_paths must not be empty", ErrInvalid)
	}
	if c.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("%w: scan_interval_seconds must be positive, got %d", ErrInvalid, c.ScanIntervalSeconds)
	}
	if c.RunnerPollSeconds <= 0 {
		return fmt.Errorf("%w: runner_poll_seconds must be positive, got %d", ErrInvalid, c.RunnerPollSeconds)
	}
	if c.DashboardRefreshSeconds <= 0 {
		return fmt.Errorf("%w: dashboard_refresh_seconds must be positive, got %d", ErrInvalid, c.DashboardRefreshSeconds)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: db_path must be specified", ErrInvalid)
	}
	if c.DBDriver != db.DriverSQLite3 && c.DBDriver != db.DriverSQLite {
		return fmt.Errorf("%w: unsupported db_driver: %s (must be %s or %s)", ErrInvalid, c.DBDriver, db.DriverSQLite3, db.DriverSQLite)
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("%w: task_timeout must not be negative, got %v", ErrInvalid, c.TaskTimeout)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug, info, warn, or error)", ErrInvalid, c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: invalid log format: %s (must be text or json)", ErrInvalid, c.Logging.Format)
	}

	return nil
}

// Database returns the catalog connection settings
func (c *Config) Database() db.Config {
	return db.Config{
		Driver: c.DBDriver,
		Path:   c.DBPath,
	}
}

// ScanInterval returns the scan period
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

// RunnerPoll returns the runner polling period
func (c *Config) RunnerPoll() time.Duration {
	return time.Duration(c.RunnerPollSeconds) * time.Second
}

// DashboardRefresh returns the dashboard redraw period
func (c *Config) DashboardRefresh() time.Duration {
	return time.Duration(c.DashboardRefreshSeconds) * time.Second
}
