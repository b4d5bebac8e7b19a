package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	// FromEnv is set when EnvVar is present and shadows the file value.
	FromEnv bool
}

// ShowAll returns every key with its effective value in cfg.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		result = append(result, describe(s, cfg))
	}
	return result
}

func describe(s keySpec, cfg Config) KeyInfo {
	return KeyInfo{
		Key:     s.key,
		EnvVar:  s.env,
		Value:   fmt.Sprintf("%v", s.extract(cfg)),
		FromEnv: s.env != "" && os.Getenv(s.env) != "",
	}
}

// SetKey validates value for key, writes it to the config file and returns
// the value that now takes effect. When FromEnv is set on the result the
// environment still wins over what was written.
func SetKey(key, value string) (KeyInfo, error) {
	return setKeyIn(openJSONFile(ConfigFilePath()), key, value)
}

// UnsetKey removes key from the config file so its default applies again.
func UnsetKey(key string) (KeyInfo, error) {
	return unsetKeyIn(openJSONFile(ConfigFilePath()), key)
}

func setKeyIn(b ConfigBackend, key, value string) (KeyInfo, error) {
	s, err := lookup(key)
	if err != nil {
		return KeyInfo{}, err
	}

	var v any
	switch s.typ {
	case kString:
		v = strings.TrimSpace(value)
	case kInt:
		i, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return KeyInfo{}, fmt.Errorf("%s must be an integer, got %q", key, value)
		}
		v = i
	}
	if s.check != nil {
		if err := s.check(v); err != nil {
			return KeyInfo{}, fmt.Errorf("%s: %w", key, err)
		}
	}

	switch s.typ {
	case kString:
		err = b.SetString(key, v.(string))
	case kInt:
		err = b.SetInt(key, v.(int))
	}
	if err != nil {
		return KeyInfo{}, err
	}
	return effective(b, s)
}

func unsetKeyIn(b ConfigBackend, key string) (KeyInfo, error) {
	s, err := lookup(key)
	if err != nil {
		return KeyInfo{}, err
	}
	if err := b.Delete(key); err != nil {
		return KeyInfo{}, err
	}
	return effective(b, s)
}

// effective reloads the whole config so the reported value includes env
// overrides and defaults.
func effective(b ConfigBackend, s keySpec) (KeyInfo, error) {
	cfg, err := loadWith(b)
	if err != nil {
		return KeyInfo{}, fmt.Errorf("saved, but the resulting config is invalid: %w", err)
	}
	return describe(s, cfg), nil
}

func lookup(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key == key {
			return s, nil
		}
	}
	return keySpec{}, fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(ValidKeys(), ", "))
}

// ValidKeys returns the list of config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
