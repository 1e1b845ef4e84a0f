package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/spocli/spo/internal/credstore"
	"github.com/spocli/spo/internal/resolver"
)

func newConfigureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure [domain]",
		Short: "Configure credentials for a SharePoint domain",
		Long: `Configure credentials for a SharePoint domain interactively.

By default this configures modern-mode OAuth client credentials (client ID,
client secret, tenant ID); run 'spo authenticate' afterwards to obtain a
token. Use --legacy to configure a username/password pair instead.

Current values from flags, environment variables, or the credentials file
are offered as defaults; press Enter to keep them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runConfigure,
	}

	cmd.Flags().Bool("legacy", false, "configure username/password instead of OAuth client credentials")

	return cmd
}

func runConfigure(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("configure needs an interactive terminal; set credentials via flags, environment variables, or the credentials file instead")
	}

	legacy, err := cmd.Flags().GetBool("legacy")
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())

	domain := ""
	if len(args) > 0 {
		domain = args[0]
	}

	domain, err = promptDefault(in, "SharePoint domain (e.g. example.sharepoint.com)", domain)
	if err != nil {
		return err
	}

	if domain == "" {
		return fmt.Errorf("configure: a domain is required")
	}

	store := openStore()

	// Current resolution supplies the prompt defaults; a partially
	// configured domain is fine here.
	entry, _, err := store.Lookup(domain)
	if err != nil {
		return err
	}

	if legacy {
		return configureLegacy(cmd, in, store, domain, entry)
	}

	return configureModern(cmd, in, store, domain, entry)
}

func configureLegacy(cmd *cobra.Command, in *bufio.Reader, store *credstore.Store, domain string, entry credstore.Entry) error {
	username, err := promptDefault(in, "Username", pick(flagUsername, cliEnv.Username, entry.Username))
	if err != nil {
		return err
	}

	password, err := promptSecret(cmd, in, "Password", pick(flagPassword, cliEnv.Password, entry.Password))
	if err != nil {
		return err
	}

	if username == "" || password == "" {
		return fmt.Errorf("configure: username and password are both required")
	}

	if err := store.Upsert(domain, credstore.Entry{Username: username, Password: password}); err != nil {
		return err
	}

	statusf("Credentials for %s saved to %s\n", domain, store.Path())

	return nil
}

func configureModern(cmd *cobra.Command, in *bufio.Reader, store *credstore.Store, domain string, entry credstore.Entry) error {
	clientID, err := promptDefault(in, "Client ID", pick(flagClientID, cliEnv.ClientID, entry.ClientID))
	if err != nil {
		return err
	}

	clientSecret, err := promptSecret(cmd, in, "Client secret", pick(flagClientSecret, cliEnv.ClientSecret, entry.ClientSecret))
	if err != nil {
		return err
	}

	tenantID, err := promptDefault(in, "Tenant ID (blank to discover)", pick(flagTenantID, cliEnv.TenantID, entry.TenantID))
	if err != nil {
		return err
	}

	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("configure: client ID and client secret are both required")
	}

	if tenantID == "" {
		tenantID, err = resolver.DiscoverTenantID(cmd.Context(), httpClient(), domain)
		if err != nil {
			return fmt.Errorf("configure: tenant ID not given and discovery failed: %w", err)
		}

		statusf("Discovered tenant ID %s\n", tenantID)
	}

	err = store.Upsert(domain, credstore.Entry{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TenantID:     tenantID,
	})
	if err != nil {
		return err
	}

	statusf("Credentials for %s saved to %s\n", domain, store.Path())
	statusf("Run 'spo authenticate %s' to obtain a token.\n", domain)

	return nil
}

// pick returns the first non-empty value, mirroring the resolver's
// per-field precedence for prompt defaults.
func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// promptDefault prompts on stderr and reads one line; an empty answer
// keeps the default.
func promptDefault(in *bufio.Reader, label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(os.Stderr, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(os.Stderr, "%s: ", label)
	}

	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return current, nil
	}

	return line, nil
}

// promptSecret reads a value without echoing it when the command's input
// is a terminal; any other input (a pipe, a test buffer) falls back to a
// plain line read from the same reader promptDefault uses. The default is
// shown masked so the user knows one exists without it leaking to the
// screen.
func promptSecret(cmd *cobra.Command, in *bufio.Reader, label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(os.Stderr, "%s [%s]: ", label, strings.Repeat("*", len(current)))
	} else {
		fmt.Fprintf(os.Stderr, "%s: ", label)
	}

	if f, ok := cmd.InOrStdin().(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}

		if value := strings.TrimSpace(string(raw)); value != "" {
			return value, nil
		}

		return current, nil
	}

	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading secret: %w", err)
	}

	if value := strings.TrimSpace(line); value != "" {
		return value, nil
	}

	return current, nil
}
