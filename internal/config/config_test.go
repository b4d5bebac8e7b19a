package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory ConfigBackend.
type mapBackend struct {
	strs map[string]string
	ints map[string]int
}

func newMapBackend() *mapBackend {
	return &mapBackend{strs: map[string]string{}, ints: map[string]int{}}
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strs[key]
	return v, ok, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mapBackend) SetString(key, val string) error  { m.strs[key] = val; return nil }
func (m *mapBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *mapBackend) Delete(key string) error {
	delete(m.strs, key)
	delete(m.ints, key)
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when nothing is configured.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "http://127.0.0.1:8000" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "http://127.0.0.1:8000")
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.WatchInterval() != 15*time.Second {
		t.Errorf("WatchInterval() = %v, want 15s", cfg.WatchInterval())
	}
	if cfg.Watch.MaxAttempts != 40 {
		t.Errorf("Watch.MaxAttempts = %d, want 40", cfg.Watch.MaxAttempts)
	}
	if !strings.HasSuffix(cfg.Storage.DataDir, "chesscoach") && cfg.Storage.DataDir != "chesscoach-data" {
		t.Errorf("Storage.DataDir = %q, want a chesscoach directory", cfg.Storage.DataDir)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMapBackend()
	b.strs["api.base_url"] = "http://coach.lan:9000/"
	b.ints["server.port"] = 5000
	b.strs["watch.interval"] = "2s"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BaseURL() != "http://coach.lan:9000" {
		t.Errorf("BaseURL() = %q, want trailing slash trimmed", cfg.BaseURL())
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.WatchInterval() != 2*time.Second {
		t.Errorf("WatchInterval() = %v, want 2s", cfg.WatchInterval())
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)

	b := newMapBackend()
	b.strs["api.base_url"] = "http://file:8000"
	b.ints["server.port"] = 5000

	t.Setenv("CHESSCOACH_API_BASE_URL", "http://env:8000")
	t.Setenv("CHESSCOACH_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.BaseURL != "http://env:8000" {
		t.Errorf("API.BaseURL = %q, want env value", cfg.API.BaseURL)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want backend value 5000 after bad env int", cfg.Server.Port)
	}
}

func TestInvalidBaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHESSCOACH_API_BASE_URL", "coach.lan")

	_, err := loadWith(newMapBackend())
	if err == nil {
		t.Fatal("expected error for relative base URL")
	}
	if !strings.Contains(err.Error(), "api.base_url") {
		t.Errorf("error = %q, want it to name api.base_url", err.Error())
	}
}

// TestDefaultAPITimeoutIsUnbounded verifies that service calls are not cut
// short by default, since /api/analyze replies only after the analysis ran.
func TestDefaultAPITimeoutIsUnbounded(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.Timeout != "0" {
		t.Errorf("API.Timeout = %q, want \"0\"", cfg.API.Timeout)
	}
	if cfg.APITimeout() != 0 {
		t.Errorf("APITimeout() = %v, want 0 (no timeout)", cfg.APITimeout())
	}
}

func TestAPITimeoutParsing(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"45s", 45 * time.Second},
		{"2m", 2 * time.Minute},
		{"0", 0},
		{"soon", 0},
		{"-5s", 0},
		{"", 0},
	}
	for _, tc := range cases {
		cfg := defaults()
		cfg.API.Timeout = tc.raw
		if got := cfg.APITimeout(); got != tc.want {
			t.Errorf("APITimeout(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestInvalidWatchIntervalFallsBack(t *testing.T) {
	cfg := defaults()
	cfg.Watch.Interval = "soon"
	if cfg.WatchInterval() != 15*time.Second {
		t.Errorf("WatchInterval() = %v, want fallback 15s", cfg.WatchInterval())
	}
}

func TestSetKey(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()

	info, err := setKeyIn(b, "server.port", "4242")
	if err != nil {
		t.Fatalf("setKeyIn: %v", err)
	}
	if b.ints["server.port"] != 4242 {
		t.Errorf("server.port = %d, want 4242", b.ints["server.port"])
	}
	if info.Value != "4242" || info.FromEnv {
		t.Errorf("info = %+v, want effective 4242 from the file", info)
	}

	if _, err := setKeyIn(b, "server.port", "many"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if _, err := setKeyIn(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

// TestSetKeyRejectsInvalidValues verifies that bad values are refused before
// anything is written.
func TestSetKeyRejectsInvalidValues(t *testing.T) {
	clearEnv(t)

	cases := []struct {
		key, value string
	}{
		{"api.base_url", "coach.lan:8000"},
		{"api.base_url", "/relative/path"},
		{"api.base_url", "ftp://coach.lan"},
		{"api.timeout", "thirty seconds"},
		{"api.timeout", "-1s"},
		{"watch.interval", "often"},
		{"server.port", "70000"},
		{"server.port", "0"},
		{"log.level", "verbose"},
		{"watch.max_attempts", "0"},
	}
	for _, tc := range cases {
		b := newMapBackend()
		if _, err := setKeyIn(b, tc.key, tc.value); err == nil {
			t.Errorf("setKeyIn(%s, %q) succeeded, want error", tc.key, tc.value)
			continue
		} else if !strings.Contains(err.Error(), tc.key) {
			t.Errorf("error %q does not name %s", err.Error(), tc.key)
		}
		if len(b.strs) != 0 || len(b.ints) != 0 {
			t.Errorf("setKeyIn(%s, %q) wrote %v %v despite the error", tc.key, tc.value, b.strs, b.ints)
		}
	}
}

func TestSetKeyAcceptsValidValues(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()

	for key, value := range map[string]string{
		"api.base_url":       "https://coach.example.com/",
		"api.timeout":        "0",
		"watch.interval":     "1m30s",
		"log.level":          "WARN",
		"watch.max_attempts": "3",
	} {
		if _, err := setKeyIn(b, key, value); err != nil {
			t.Errorf("setKeyIn(%s, %q): %v", key, value, err)
		}
	}
}

// TestSetKeyReportsEnvOverride verifies that the reported value is the one
// in effect, not the one just written, when an env var shadows the key.
func TestSetKeyReportsEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHESSCOACH_API_TIMEOUT", "90s")
	b := newMapBackend()

	info, err := setKeyIn(b, "api.timeout", "10s")
	if err != nil {
		t.Fatalf("setKeyIn: %v", err)
	}
	if b.strs["api.timeout"] != "10s" {
		t.Errorf("stored api.timeout = %q, want 10s", b.strs["api.timeout"])
	}
	if info.Value != "90s" {
		t.Errorf("info.Value = %q, want env value 90s", info.Value)
	}
	if !info.FromEnv || info.EnvVar != "CHESSCOACH_API_TIMEOUT" {
		t.Errorf("info = %+v, want FromEnv with CHESSCOACH_API_TIMEOUT", info)
	}
}

func TestUnsetKeyRestoresDefault(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.strs["watch.interval"] = "1s"

	info, err := unsetKeyIn(b, "watch.interval")
	if err != nil {
		t.Fatalf("unsetKeyIn: %v", err)
	}
	if _, ok := b.strs["watch.interval"]; ok {
		t.Error("watch.interval still stored")
	}
	if info.Value != "15s" {
		t.Errorf("info.Value = %q, want default 15s", info.Value)
	}
}

func TestJSONFileRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "chesscoach", "config.json")

	f := openJSONFile(path)
	if _, err := setKeyIn(f, "api.base_url", "http://saved:8000"); err != nil {
		t.Fatalf("set api.base_url: %v", err)
	}
	if _, err := setKeyIn(f, "watch.max_attempts", "7"); err != nil {
		t.Fatalf("set watch.max_attempts: %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", fi.Mode().Perm())
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("config dir has %d entries, want only config.json", len(entries))
	}

	cfg, err := loadWith(openJSONFile(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.API.BaseURL != "http://saved:8000" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Watch.MaxAttempts != 7 {
		t.Errorf("Watch.MaxAttempts = %d, want 7", cfg.Watch.MaxAttempts)
	}
}

func TestJSONFileHandEdited(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"server.port": "5001", "api.timeout": 0, "watch.max_attempts": 2.5}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	f := openJSONFile(path)
	if port, ok, err := f.GetInt("server.port"); err != nil || !ok || port != 5001 {
		t.Errorf("GetInt(server.port) = %d, %v, %v; want 5001 from a quoted number", port, ok, err)
	}
	if timeout, ok, _ := f.GetString("api.timeout"); !ok || timeout != "0" {
		t.Errorf("GetString(api.timeout) = %q, %v; want the bare number as text", timeout, ok)
	}
	if _, err := loadWith(f); err == nil || !strings.Contains(err.Error(), "watch.max_attempts") {
		t.Errorf("loadWith err = %v, want a watch.max_attempts error", err)
	}
}

func TestJSONFileMalformedIsIgnored(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(openJSONFile(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

func TestConfigFilePathOverride(t *testing.T) {
	t.Setenv("CHESSCOACH_CONFIG", "/tmp/elsewhere.json")
	if got := ConfigFilePath(); got != "/tmp/elsewhere.json" {
		t.Errorf("ConfigFilePath() = %q", got)
	}

	t.Setenv("CHESSCOACH_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ConfigFilePath(); got != filepath.Join("/xdg", "chesscoach", "config.json") {
		t.Errorf("ConfigFilePath() = %q", got)
	}
}

func TestShowAllListsEveryKey(t *testing.T) {
	clearEnv(t)
	keys := ShowAll(defaults())
	if len(keys) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d keys, want %d", len(keys), len(ValidKeys()))
	}
	for _, k := range keys {
		if k.EnvVar == "" {
			t.Errorf("key %s has no env var", k.Key)
		}
		if k.FromEnv {
			t.Errorf("key %s reported as from env with nothing set", k.Key)
		}
	}
}
