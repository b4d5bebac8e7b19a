package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// ConfigBackend is where persisted values live. Values are read per key so
// one bad entry names itself in the load error.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// jsonFile persists dotted keys as a flat JSON object, e.g.
// {"api.base_url": "http://coach.lan:8000", "server.port": 4100}.
// Values stay raw until a key is read so a bad entry only fails its own key.
type jsonFile struct {
	path   string
	values map[string]json.RawMessage
}

// openJSONFile reads path if it exists. An unreadable or malformed file is
// logged and treated as empty; the next write replaces it.
func openJSONFile(path string) *jsonFile {
	f := &jsonFile{path: path, values: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f
	case err != nil:
		slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
		return f
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		slog.Warn("config file is not a JSON object, using defaults", "path", path, "error", err)
		f.values = map[string]json.RawMessage{}
	}
	return f
}

func (f *jsonFile) GetString(key string) (string, bool, error) {
	raw, ok := f.values[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// A bare number or bool written by hand still reads as its text.
		return string(raw), true, nil
	}
	return s, true, nil
}

func (f *jsonFile) GetInt(key string) (int, bool, error) {
	raw, ok := f.values[key]
	if !ok {
		return 0, false, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true, nil
		}
	}
	return 0, true, fmt.Errorf("%s is not an integer: %s", key, raw)
}

func (f *jsonFile) SetString(key, val string) error {
	return f.put(key, val)
}

func (f *jsonFile) SetInt(key string, val int) error {
	return f.put(key, val)
}

func (f *jsonFile) Delete(key string) error {
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.flush()
}

func (f *jsonFile) put(key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	f.values[key] = raw
	return f.flush()
}

// flush writes the file through a temp file and rename so a crash never
// leaves a half-written config behind.
func (f *jsonFile) flush() error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
