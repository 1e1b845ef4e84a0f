package config

import "os"

// Environment variable names. These match the variables the original spo
// deployments already use, so existing shells keep working.
const (
	EnvHome            = "SPO_HOME"
	EnvCredentialsFile = "SPO_CREDENTIALS_FILE"
	EnvUsername        = "SPO_USERNAME"
	EnvPassword        = "SPO_PASSWORD"
	EnvClientID        = "SPO_CLIENT_ID"
	EnvClientSecret    = "SPO_CLIENT_SECRET"
	EnvTenantID        = "SPO_TENANT_ID"
)

// EnvOverrides holds values derived from environment variables.
// Read once at startup; nothing else in the program touches os.Getenv.
type EnvOverrides struct {
	Home            string // SPO_HOME: base directory override
	CredentialsFile string // SPO_CREDENTIALS_FILE: credentials file path override
	Username        string // SPO_USERNAME (legacy mode)
	Password        string // SPO_PASSWORD (legacy mode)
	ClientID        string // SPO_CLIENT_ID (modern mode)
	ClientSecret    string // SPO_CLIENT_SECRET (modern mode)
	TenantID        string // SPO_TENANT_ID (modern mode)
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		Home:            os.Getenv(EnvHome),
		CredentialsFile: os.Getenv(EnvCredentialsFile),
		Username:        os.Getenv(EnvUsername),
		Password:        os.Getenv(EnvPassword),
		ClientID:        os.Getenv(EnvClientID),
		ClientSecret:    os.Getenv(EnvClientSecret),
		TenantID:        os.Getenv(EnvTenantID),
	}
}
