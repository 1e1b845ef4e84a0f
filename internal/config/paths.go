// Package config resolves the process-wide file locations and optional
// settings for spo. Paths are computed here once and passed explicitly into
// constructors so tests can point everything at a temporary directory.
package config

import (
	"os"
	"path/filepath"
)

// Default directory and file names under the user's home.
const (
	defaultHomeDirName  = ".spo"
	credentialsFileName = "credentials"
	settingsFileName    = "config.toml"
)

// HomeDir returns the spo base directory: $SPO_HOME if set, otherwise
// ~/.spo. Returns "" if the user's home directory cannot be determined.
func HomeDir(env EnvOverrides) string {
	if env.Home != "" {
		return env.Home
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, defaultHomeDirName)
}

// CredentialsPath returns the path of the credentials file.
// Precedence: $SPO_CREDENTIALS_FILE > $SPO_HOME/credentials > ~/.spo/credentials.
func CredentialsPath(env EnvOverrides) string {
	if env.CredentialsFile != "" {
		return env.CredentialsFile
	}

	dir := HomeDir(env)
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, credentialsFileName)
}

// SettingsPath returns the path of the optional settings file,
// $SPO_HOME/config.toml.
func SettingsPath(env EnvOverrides) string {
	dir := HomeDir(env)
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, settingsFileName)
}
