// Package resolver computes the effective credential for a SharePoint
// domain by merging three sources per field: explicit CLI options,
// environment variables, and the on-disk credential store. The first
// source that supplies a non-empty value for a field wins for that field;
// fields resolve independently of each other.
package resolver

import (
	"fmt"

	"github.com/spocli/spo/internal/config"
	"github.com/spocli/spo/internal/credstore"
)

// Mode identifies the authentication scheme selected for a domain.
type Mode int

const (
	// ModeLegacy is username/password authentication.
	ModeLegacy Mode = iota
	// ModeModern is the OAuth 2.0 authorization-code flow with a client
	// ID/secret and bearer tokens.
	ModeModern
)

func (m Mode) String() string {
	if m == ModeModern {
		return "modern"
	}

	return "legacy"
}

// Options carries credential values supplied on the command line.
// Empty fields mean "not supplied".
type Options struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	TenantID     string
}

// Resolved is the effective credential for one command invocation.
// It is computed, never persisted.
type Resolved struct {
	Domain string
	Mode   Mode

	// Legacy mode.
	Username string
	Password string

	// Modern mode.
	ClientID     string
	ClientSecret string
	TenantID     string

	// Entry is the store entry the resolution drew from (zero if none).
	// Modern-mode callers use its token blob.
	Entry credstore.Entry
}

// MissingCredentialError reports a required field that no source supplied.
// User-recoverable: the message names all three ways to provide the field.
type MissingCredentialError struct {
	Domain string
	Field  string // store key, e.g. "password" or "client_secret"
	Flag   string // CLI flag, e.g. "--password"
	EnvVar string // environment variable, e.g. "SPO_PASSWORD"
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf(
		"missing %s for %s: pass %s, set %s, or add %q to the [%s] section of the credentials file (run 'spo configure')",
		e.Field, e.Domain, e.Flag, e.EnvVar, e.Field, e.Domain)
}

// ConfigurationError reports conflicting or ambiguous auth-mode
// configuration for a domain.
type ConfigurationError struct {
	Domain string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("conflicting configuration for %s: %s", e.Domain, e.Detail)
}

// Resolve merges CLI options, environment variables, and the credential
// store into the effective credential for domain. No network side effects;
// the only disk access is the store's lazy load.
func Resolve(domain string, opts Options, env config.EnvOverrides, store *credstore.Store) (*Resolved, error) {
	entry, _, err := store.Lookup(domain)
	if err != nil {
		return nil, err
	}

	// Per-field precedence chain: CLI option > env var > store entry.
	pick := func(cli, envVal, stored string) string {
		if cli != "" {
			return cli
		}

		if envVal != "" {
			return envVal
		}

		return stored
	}

	r := &Resolved{
		Domain:       domain,
		Username:     pick(opts.Username, env.Username, entry.Username),
		Password:     pick(opts.Password, env.Password, entry.Password),
		ClientID:     pick(opts.ClientID, env.ClientID, entry.ClientID),
		ClientSecret: pick(opts.ClientSecret, env.ClientSecret, entry.ClientSecret),
		TenantID:     pick(opts.TenantID, env.TenantID, entry.TenantID),
		Entry:        entry,
	}

	modern := r.ClientID != "" || r.ClientSecret != "" || r.TenantID != ""
	legacy := r.Username != "" || r.Password != ""

	// Mixing modes for one domain is undefined behavior per the credential
	// scheme; fail rather than silently picking one.
	if modern && legacy {
		return nil, &ConfigurationError{
			Domain: domain,
			Detail: "both username/password and client_id/client_secret are configured; remove one",
		}
	}

	if modern {
		r.Mode = ModeModern
		return r, r.validateModern()
	}

	r.Mode = ModeLegacy

	return r, r.validateLegacy()
}

func (r *Resolved) validateLegacy() error {
	if r.Username == "" {
		return &MissingCredentialError{
			Domain: r.Domain, Field: credstore.KeyUsername,
			Flag: "--username", EnvVar: config.EnvUsername,
		}
	}

	if r.Password == "" {
		return &MissingCredentialError{
			Domain: r.Domain, Field: credstore.KeyPassword,
			Flag: "--password", EnvVar: config.EnvPassword,
		}
	}

	return nil
}

func (r *Resolved) validateModern() error {
	if r.ClientID == "" {
		return &MissingCredentialError{
			Domain: r.Domain, Field: credstore.KeyClientID,
			Flag: "--client-id", EnvVar: config.EnvClientID,
		}
	}

	if r.ClientSecret == "" {
		return &MissingCredentialError{
			Domain: r.Domain, Field: credstore.KeyClientSecret,
			Flag: "--client-secret", EnvVar: config.EnvClientSecret,
		}
	}

	if r.TenantID == "" {
		return &MissingCredentialError{
			Domain: r.Domain, Field: credstore.KeyTenantID,
			Flag: "--tenant-id", EnvVar: config.EnvTenantID,
		}
	}

	return nil
}
