package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spocli/spo/internal/auth"
	"github.com/spocli/spo/internal/credstore"
	"github.com/spocli/spo/internal/resolver"
)

func newAuthenticateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authenticate [domain]",
		Short: "Obtain and store an OAuth token for a domain",
		Long: `Obtain an OAuth token for a SharePoint domain interactively.

Prints an authorization URL to open in a browser. After granting consent
the browser lands on a blank page; paste that page's full URL back into
the terminal to complete the flow. The resulting token is stored in the
credentials file and refreshed automatically by later commands.

Requires modern-mode client credentials; run 'spo configure' first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAuthenticate,
	}
}

func runAuthenticate(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	in := bufio.NewReader(cmd.InOrStdin())

	domain := ""
	if len(args) > 0 {
		domain = args[0]
	}

	if domain == "" {
		var err error

		domain, err = promptDefault(in, "SharePoint domain (e.g. example.sharepoint.com)", "")
		if err != nil {
			return err
		}

		if domain == "" {
			return fmt.Errorf("authenticate: a domain is required")
		}
	}

	store := openStore()

	opts := credentialOptions()

	cred, err := resolver.Resolve(domain, opts, cliEnv, store)

	// A missing tenant ID is recoverable: discover it from the domain and
	// resolve again.
	var missing *resolver.MissingCredentialError
	if errors.As(err, &missing) && missing.Field == credstore.KeyTenantID {
		tenantID, derr := resolver.DiscoverTenantID(cmd.Context(), httpClient(), domain)
		if derr != nil {
			return fmt.Errorf("authenticate: tenant ID discovery failed: %w", derr)
		}

		statusf("Discovered tenant ID %s\n", tenantID)

		opts.TenantID = tenantID
		cred, err = resolver.Resolve(domain, opts, cliEnv, store)
	}

	if err != nil {
		return err
	}

	if cred.Mode != resolver.ModeModern {
		return fmt.Errorf("authenticate: %s is configured for username/password; tokens apply to client credentials only (run 'spo configure %s')", domain, domain)
	}

	session := auth.NewSession(domain, cred.ClientID, cred.ClientSecret, cred.TenantID, store, logger)

	authURL := session.Begin()

	// The flow itself talks to the user, so this goes to stderr
	// unconditionally rather than through statusf.
	fmt.Fprintf(os.Stderr, "Open the following URL in a browser and sign in:\n\n  %s\n\n", authURL)
	fmt.Fprintf(os.Stderr, "After granting consent the browser shows a blank page.\n")
	fmt.Fprintf(os.Stderr, "Paste that page's full URL here: ")

	line, err := in.ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return fmt.Errorf("authenticate: reading pasted URL: %w", err)
	}

	if err := session.ProvideRedirect(strings.TrimSpace(line)); err != nil {
		return err
	}

	if _, err := session.Exchange(cmd.Context()); err != nil {
		return err
	}

	statusf("Authenticated %s; token saved to %s\n", domain, store.Path())

	return nil
}
