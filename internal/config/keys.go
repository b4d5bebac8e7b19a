package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
	// check rejects a value before it is written; v is a string or an int per typ.
	check func(v any) error
}

func stringCheck(fn func(string) error) func(any) error {
	return func(v any) error { return fn(v.(string)) }
}

func intCheck(fn func(int) error) func(any) error {
	return func(v any) error { return fn(v.(int)) }
}

var specs = []keySpec{
	{
		key: "api.base_url", typ: kString, env: "CHESSCOACH_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
		check:   stringCheck(checkBaseURL),
	},
	{
		key: "api.timeout", typ: kString, env: "CHESSCOACH_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
		check:   stringCheck(checkDuration),
	},
	{
		key: "server.port", typ: kInt, env: "CHESSCOACH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
		check:   intCheck(checkPort),
	},
	{
		key: "storage.data_dir", typ: kString, env: "CHESSCOACH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "CHESSCOACH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
		check:   stringCheck(checkLevel),
	},
	{
		key: "watch.interval", typ: kString, env: "CHESSCOACH_WATCH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Watch.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Watch.Interval },
		check:   stringCheck(checkDuration),
	},
	{
		key: "watch.max_attempts", typ: kInt, env: "CHESSCOACH_WATCH_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Watch.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Watch.MaxAttempts },
		check:   intCheck(checkPositive),
	},
}

// read fetches the key's value from b with the Go type its apply expects.
func (s keySpec) read(b ConfigBackend) (v any, ok bool, err error) {
	if s.typ == kInt {
		return b.GetInt(s.key)
	}
	return b.GetString(s.key)
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		v, ok, err := s.read(b)
		if err != nil {
			return fmt.Errorf("config file: %s: %w", s.key, err)
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				slog.Warn("ignoring non-integer env override", "env", s.env, "value", raw, "error", err)
			}
		}
	}
}
