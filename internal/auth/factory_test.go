package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/spocli/spo/internal/credstore"
	"github.com/spocli/spo/internal/resolver"
)

func legacyCred() *resolver.Resolved {
	return &resolver.Resolved{
		Domain:   testDomain,
		Mode:     resolver.ModeLegacy,
		Username: "alice@example.com",
		Password: "hunter2",
	}
}

func modernCred(entry credstore.Entry) *resolver.Resolved {
	return &resolver.Resolved{
		Domain:       testDomain,
		Mode:         resolver.ModeModern,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		TenantID:     "tenant-1",
		Entry:        entry,
	}
}

func TestConnectLegacy(t *testing.T) {
	f := &Factory{Store: testStore(t), Logger: discardLogger()}

	client, err := f.Connect(context.Background(), legacyCred(), "/sites/example")
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestConnectModernWithoutToken(t *testing.T) {
	f := &Factory{Store: testStore(t), Logger: discardLogger()}

	_, err := f.Connect(context.Background(), modernCred(credstore.Entry{}), "/sites/example")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrNotAuthenticated)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, testDomain, authErr.Domain)
}

func TestConnectModernWithValidToken(t *testing.T) {
	var entry credstore.Entry
	entry.SetToken(&oauth2.Token{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-def",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	})

	// A valid token needs no refresh; the token endpoint must stay silent.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected token endpoint call")
	}))
	defer server.Close()

	f := &Factory{
		Store:      testStore(t),
		HTTPClient: server.Client(),
		Logger:     discardLogger(),
		endpoint:   oauth2.Endpoint{TokenURL: server.URL + "/token"},
	}

	client, err := f.Connect(context.Background(), modernCred(entry), "/sites/example")
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestConnectModernRefreshesAndPersists(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials")
	store := credstore.New(storePath)

	var entry credstore.Entry
	entry.SetToken(&oauth2.Token{
		AccessToken:  "stale-access",
		RefreshToken: "refresh-def",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	})

	var gotGrant, gotRefresh string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotGrant = r.FormValue("grant_type")
		gotRefresh = r.FormValue("refresh_token")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-access","refresh_token":"fresh-refresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	f := &Factory{
		Store:      store,
		HTTPClient: server.Client(),
		Logger:     discardLogger(),
		endpoint:   oauth2.Endpoint{TokenURL: server.URL + "/token"},
	}

	client, err := f.Connect(context.Background(), modernCred(entry), "/sites/example")
	require.NoError(t, err)
	assert.NotNil(t, client)

	assert.Equal(t, "refresh_token", gotGrant)
	assert.Equal(t, "refresh-def", gotRefresh)

	// The refreshed token is written back so the next invocation starts
	// with a live access token.
	saved, found, err := credstore.New(storePath).Lookup(testDomain)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "fresh-access", saved.AccessToken)
	assert.Equal(t, "fresh-refresh", saved.RefreshToken)
}

func TestConnectModernRefreshRejected(t *testing.T) {
	var entry credstore.Entry
	entry.SetToken(&oauth2.Token{
		AccessToken:  "stale-access",
		RefreshToken: "revoked",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer server.Close()

	f := &Factory{
		Store:      testStore(t),
		HTTPClient: server.Client(),
		Logger:     discardLogger(),
		endpoint:   oauth2.Endpoint{TokenURL: server.URL + "/token"},
	}

	_, err := f.Connect(context.Background(), modernCred(entry), "/sites/example")
	require.Error(t, err)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, err.Error(), "spo authenticate")
}

func TestTokenBridgeError(t *testing.T) {
	cfg := &oauth2.Config{
		ClientID: "client-1",
		Endpoint: oauth2.Endpoint{TokenURL: "http://invalid.test/token"},
	}

	src := cfg.TokenSource(context.Background(), &oauth2.Token{
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	})

	bridge := &tokenBridge{domain: testDomain, src: src, logger: discardLogger()}

	_, err := bridge.Token()
	require.Error(t, err)

	var authErr *AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}
