package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spocli/spo/internal/config"
	"github.com/spocli/spo/internal/credstore"
	"github.com/spocli/spo/internal/resolver"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagUsername     string
	flagPassword     string
	flagClientID     string
	flagClientSecret string
	flagTenantID     string
	flagJSON         bool
	flagVerbose      bool
	flagQuiet        bool
)

// cliEnv holds the environment overrides, read once in PersistentPreRunE.
var cliEnv config.EnvOverrides

// cliSettings holds the optional settings file, loaded alongside cliEnv.
var cliSettings *config.Settings

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "spo",
		Short:   "SharePoint Online CLI client",
		Long:    "Copy, list, create, and delete files and folders on SharePoint Online sites.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cliEnv = config.ReadEnvOverrides()

			settings, err := config.LoadSettings(config.SettingsPath(cliEnv))
			if err != nil {
				return err
			}

			cliSettings = settings

			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&flagUsername, "username", "u", "", "username (legacy mode)")
	cmd.PersistentFlags().StringVarP(&flagPassword, "password", "p", "", "password (legacy mode)")
	cmd.PersistentFlags().StringVar(&flagClientID, "client-id", "", "application client ID (modern mode)")
	cmd.PersistentFlags().StringVar(&flagClientSecret, "client-secret", "", "application client secret (modern mode)")
	cmd.PersistentFlags().StringVar(&flagTenantID, "tenant-id", "", "directory tenant ID (modern mode)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newConfigureCmd())
	cmd.AddCommand(newAuthenticateCmd())
	cmd.AddCommand(newCpCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newRmdirCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// credentialOptions gathers the credential flags for the resolver.
func credentialOptions() resolver.Options {
	return resolver.Options{
		Username:     flagUsername,
		Password:     flagPassword,
		ClientID:     flagClientID,
		ClientSecret: flagClientSecret,
		TenantID:     flagTenantID,
	}
}

// openStore returns the credential store at the resolved file location.
func openStore() *credstore.Store {
	return credstore.New(config.CredentialsPath(cliEnv))
}

// buildLogger creates an slog.Logger configured by the settings file and
// CLI flags. The settings file provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if cliSettings != nil {
		switch cliSettings.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// httpClient returns an HTTP client with the configured timeout.
// A timeout prevents hung connections from blocking CLI commands indefinitely.
func httpClient() *http.Client {
	timeout := 30 * time.Second
	if cliSettings != nil {
		timeout = time.Duration(cliSettings.HTTPTimeoutSeconds) * time.Second
	}

	return &http.Client{Timeout: timeout}
}

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
