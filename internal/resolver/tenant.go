package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// wellKnownURL is the OpenID configuration endpoint for a tenant name.
const wellKnownURL = "https://login.windows.net/%s.onmicrosoft.com/.well-known/openid-configuration"

// DiscoverTenantID looks up the tenant ID for a SharePoint domain
// (e.g. "example.sharepoint.com" -> tenant name "example") via the
// identity provider's well-known OpenID configuration. Used by configure
// and authenticate when no tenant ID was supplied; Resolve itself never
// touches the network.
func DiscoverTenantID(ctx context.Context, httpClient *http.Client, domain string) (string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	name := strings.Split(domain, ".")[0]
	if name == "" {
		return "", fmt.Errorf("resolver: cannot derive tenant name from domain %q", domain)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(wellKnownURL, name), nil)
	if err != nil {
		return "", fmt.Errorf("resolver: building tenant discovery request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolver: tenant discovery for %s: %w", domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolver: tenant discovery for %s: HTTP %d", domain, resp.StatusCode)
	}

	var cfg struct {
		TokenEndpoint string `json:"token_endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return "", fmt.Errorf("resolver: decoding tenant discovery response: %w", err)
	}

	// token_endpoint looks like https://login.windows.net/<tenant-id>/oauth2/token.
	parts := strings.Split(cfg.TokenEndpoint, "/")
	if len(parts) < 4 || parts[3] == "" {
		return "", fmt.Errorf("resolver: unexpected token endpoint %q", cfg.TokenEndpoint)
	}

	return parts[3], nil
}
