package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/spocli/spo/internal/credstore"
	"github.com/spocli/spo/internal/resolver"
	"github.com/spocli/spo/internal/sharepoint"
)

// ErrNotAuthenticated means modern mode is configured but no token has
// been persisted yet.
var ErrNotAuthenticated = errors.New("auth: no saved token")

// Factory constructs authenticated SharePoint clients from resolved
// credentials. In modern mode it transparently refreshes an expired
// access token via the stored refresh token and persists the result
// before handing back a usable client.
type Factory struct {
	Store      *credstore.Store
	HTTPClient *http.Client
	Logger     *slog.Logger

	// endpoint overrides the provider endpoint. Zero means the Azure AD
	// endpoint for the credential's tenant; tests point it at a local server.
	endpoint oauth2.Endpoint
}

// Connect returns a client for the site at https://<domain><sitePath>,
// authenticated per the resolved credential's mode. Construction or
// refresh failure surfaces as AuthenticationError; nothing is retried.
func (f *Factory) Connect(ctx context.Context, cred *resolver.Resolved, sitePath string) (*sharepoint.Client, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cred.Mode == resolver.ModeLegacy {
		logger.Debug("building legacy client",
			slog.String("domain", cred.Domain),
		)

		authorizer := sharepoint.BasicAuth{
			Username: cred.Username,
			Password: cred.Password,
		}

		return sharepoint.NewClient(cred.Domain, sitePath, f.HTTPClient, authorizer, logger), nil
	}

	src, err := f.tokenSource(ctx, cred, logger)
	if err != nil {
		return nil, err
	}

	authorizer := sharepoint.BearerAuth{
		Source: &tokenBridge{domain: cred.Domain, src: src, logger: logger},
	}

	return sharepoint.NewClient(cred.Domain, sitePath, f.HTTPClient, authorizer, logger), nil
}

// tokenSource builds an auto-refreshing token source seeded from the
// stored token, with refreshed tokens persisted back to the store. The
// first token acquisition happens here so an expired or revoked refresh
// token fails at construction, not mid-command.
func (f *Factory) tokenSource(ctx context.Context, cred *resolver.Resolved, logger *slog.Logger) (oauth2.TokenSource, error) {
	stored := cred.Entry.Token()
	if stored == nil {
		return nil, &AuthenticationError{Domain: cred.Domain, Err: ErrNotAuthenticated}
	}

	endpoint := f.endpoint
	if endpoint.TokenURL == "" {
		endpoint = microsoft.AzureADEndpoint(cred.TenantID)
	}

	domain := cred.Domain
	store := f.Store

	cfg := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint:     endpoint,
		// Called after each silent refresh; keeps the store's token blob
		// current so the next invocation skips the refresh.
		OnTokenChange: func(tok *oauth2.Token) {
			logger.Info("token refreshed",
				slog.String("domain", domain),
				slog.Time("new_expiry", tok.Expiry),
			)

			var entry credstore.Entry
			entry.SetToken(tok)

			if err := store.Upsert(domain, entry); err != nil {
				logger.Warn("failed to persist refreshed token",
					slog.String("domain", domain),
					slog.String("error", err.Error()),
				)
			}
		},
	}

	if f.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.HTTPClient)
	}

	src := cfg.TokenSource(ctx, stored)

	// Force the initial acquisition (and refresh, if expired) now.
	if _, err := src.Token(); err != nil {
		return nil, &AuthenticationError{Domain: cred.Domain, Err: err}
	}

	return src, nil
}

// tokenBridge adapts oauth2.TokenSource to sharepoint.TokenSource and
// maps refresh failures to AuthenticationError.
type tokenBridge struct {
	domain string
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed",
			slog.String("domain", b.domain),
			slog.String("error", err.Error()),
		)

		return "", &AuthenticationError{Domain: b.domain, Err: err}
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}
