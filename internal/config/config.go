package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the effective chesscoach configuration after the file and
// CHESSCOACH_* environment overrides have been applied.
type Config struct {
	API     APIConfig
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Watch   WatchConfig
}

// APIConfig points at the chess-coach analysis service.
type APIConfig struct {
	BaseURL string
	// Timeout bounds each service call. "0" waits as long as the service takes.
	Timeout string
}

// ServerConfig is the local browser UI listener.
type ServerConfig struct {
	Port int
}

// StorageConfig locates the run history database and PID file.
type StorageConfig struct {
	DataDir string
}

// LogConfig sets the slog level.
type LogConfig struct {
	Level string
}

// WatchConfig controls how pending runs are polled for results.
type WatchConfig struct {
	Interval    string
	MaxAttempts int
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://127.0.0.1:8000",
			// /api/analyze only answers once the whole analysis has run.
			Timeout: "0",
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			Interval:    "15s",
			MaxAttempts: 40,
		},
	}
}

// Load reads configuration from the JSON file at ConfigFilePath and applies
// CHESSCOACH_* environment overrides on top.
func Load() (Config, error) {
	return loadWith(openJSONFile(ConfigFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if err := checkBaseURL(c.API.BaseURL); err != nil {
		return fmt.Errorf("invalid config: api.base_url: %w", err)
	}
	if err := checkPort(c.Server.Port); err != nil {
		return fmt.Errorf("invalid config: server.port: %w", err)
	}
	return nil
}

// APITimeout returns the parsed api.timeout. Zero, the default, means no
// timeout, and so does a value that does not parse.
func (c Config) APITimeout() time.Duration {
	return parseDurationOr(c.API.Timeout, 0)
}

// WatchInterval returns the parsed watch.interval, falling back to 15s.
func (c Config) WatchInterval() time.Duration {
	return parseDurationOr(c.Watch.Interval, 15*time.Second)
}

// BaseURL returns api.base_url without a trailing slash.
func (c Config) BaseURL() string {
	return strings.TrimRight(c.API.BaseURL, "/")
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// ConfigFilePath returns the location of the JSON config file:
// $CHESSCOACH_CONFIG if set, else $XDG_CONFIG_HOME/chesscoach/config.json.
func ConfigFilePath() string {
	if p := os.Getenv("CHESSCOACH_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config", "."), "chesscoach", "config.json")
}

func defaultDataDir() string {
	base := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), "")
	if base == "" {
		return "chesscoach-data"
	}
	return filepath.Join(base, "chesscoach")
}

// xdgDir resolves an XDG base directory, falling back to homeRel under the
// user's home and to orElse when there is no home directory.
func xdgDir(env, homeRel, orElse string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return orElse
	}
	return filepath.Join(home, homeRel)
}

func checkBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q must be an absolute URL", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	return nil
}

func checkPort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%d out of range", port)
	}
	return nil
}

func checkDuration(raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%q is not a duration (try 30s or 2m)", raw)
	}
	if d < 0 {
		return fmt.Errorf("%q must not be negative", raw)
	}
	return nil
}

func checkLevel(raw string) error {
	switch strings.ToLower(raw) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("%q is not one of debug, info, warn, error", raw)
}

func checkPositive(n int) error {
	if n <= 0 {
		return fmt.Errorf("%d must be at least 1", n)
	}
	return nil
}
