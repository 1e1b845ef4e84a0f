package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomeDirOverride(t *testing.T) {
	env := EnvOverrides{Home: "/custom/spo"}
	assert.Equal(t, "/custom/spo", HomeDir(env))
}

func TestHomeDirDefault(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".spo"), HomeDir(EnvOverrides{}))
}

func TestCredentialsPathPrecedence(t *testing.T) {
	// Explicit file override wins over the home override.
	env := EnvOverrides{
		Home:            "/custom/spo",
		CredentialsFile: "/elsewhere/creds",
	}
	assert.Equal(t, "/elsewhere/creds", CredentialsPath(env))

	// Home override places the default file name under it.
	env = EnvOverrides{Home: "/custom/spo"}
	assert.Equal(t, filepath.Join("/custom/spo", "credentials"), CredentialsPath(env))
}

func TestSettingsPathUnderHome(t *testing.T) {
	env := EnvOverrides{Home: "/custom/spo"}
	assert.Equal(t, filepath.Join("/custom/spo", "config.toml"), SettingsPath(env))
}

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvHome, "/env/home")
	t.Setenv(EnvUsername, "alice@example.com")
	t.Setenv(EnvClientID, "client-123")

	env := ReadEnvOverrides()

	assert.Equal(t, "/env/home", env.Home)
	assert.Equal(t, "alice@example.com", env.Username)
	assert.Equal(t, "client-123", env.ClientID)
	assert.Empty(t, env.Password)
	assert.Empty(t, env.TenantID)
}

func TestLoadSettingsMissingFileReturnsDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, 30, s.HTTPTimeoutSeconds)
}

func TestLoadSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "log_level = \"debug\"\nhttp_timeout_seconds = 120\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, 120, s.HTTPTimeoutSeconds)
}

func TestLoadSettingsPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"error\"\n"), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "error", s.LogLevel)
	assert.Equal(t, 30, s.HTTPTimeoutSeconds)
}

func TestLoadSettingsInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = [broken\n"), 0o644))

	_, err := LoadSettings(path)
	assert.Error(t, err)
}

func TestLoadSettingsRejectsNonPositiveTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("http_timeout_seconds = 0\n"), 0o644))

	_, err := LoadSettings(path)
	assert.ErrorContains(t, err, "must be positive")
}
