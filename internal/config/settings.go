package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Default settings values.
const (
	defaultLogLevel       = "info"
	defaultTimeoutSeconds = 30
)

// Settings holds optional application settings from $SPO_HOME/config.toml.
// Everything has a sensible default; the file does not need to exist.
type Settings struct {
	LogLevel           string `toml:"log_level"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
}

// DefaultSettings returns a Settings populated with all default values.
func DefaultSettings() *Settings {
	return &Settings{
		LogLevel:           defaultLogLevel,
		HTTPTimeoutSeconds: defaultTimeoutSeconds,
	}
}

// LoadSettings reads the settings file if it exists, otherwise returns
// defaults. This supports the zero-config first-run experience: users can
// start without creating a settings file.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	if path == "" {
		return s, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}

	if _, err := toml.DecodeFile(path, s); err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
	}

	if s.HTTPTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("settings file %s: http_timeout_seconds must be positive", path)
	}

	return s, nil
}
