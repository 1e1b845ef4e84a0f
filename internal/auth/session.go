// Package auth drives the interactive OAuth 2.0 authorization-code flow
// against the identity provider and constructs authenticated SharePoint
// clients from resolved credentials. Tokens are persisted through the
// credential store so later invocations skip the interactive dance.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/spocli/spo/internal/credstore"
)

// redirectURI is the fixed native-client redirect the provider sends the
// browser to after consent. The user pastes the resulting URL back into
// the terminal; nothing listens on it.
const redirectURI = "https://login.microsoftonline.com/common/oauth2/nativeclient"

// Scopes requested during authorization. offline_access yields the
// refresh token that keeps later invocations non-interactive.
var scopes = []string{
	"offline_access",
	"User.Read",
	"Sites.ReadWrite.All",
	"Files.ReadWrite.All",
}

// State is the position of a Session in the authorization-code flow.
type State int

const (
	StateStart State = iota
	StateAwaitingConsent
	StateAwaitingCode
	StateTokenExchange
	StateComplete
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAwaitingConsent:
		return "awaiting-consent"
	case StateAwaitingCode:
		return "awaiting-code"
	case StateTokenExchange:
		return "token-exchange"
	case StateComplete:
		return "complete"
	default:
		return "aborted"
	}
}

// InvalidAuthorizationResponseError reports a malformed pasted redirect
// URL during the flow. Retryable: the user can re-run authenticate and
// paste again.
type InvalidAuthorizationResponseError struct {
	Reason string
}

func (e *InvalidAuthorizationResponseError) Error() string {
	return fmt.Sprintf("invalid authorization response: %s", e.Reason)
}

// AuthenticationError reports that the identity provider rejected the
// credentials or a token exchange/refresh failed. The user must re-run
// 'spo authenticate' (or fix the configured credentials).
type AuthenticationError struct {
	Domain string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v (run 'spo authenticate %s')", e.Domain, e.Err, e.Domain)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Session is the transient state machine for one authenticate invocation.
// A fresh session is created per invocation; none is reused across
// domains or processes. On success its token is written into the
// credential store; nothing of the session itself survives.
type Session struct {
	domain   string
	tenantID string
	cfg      *oauth2.Config
	store    *credstore.Store
	logger   *slog.Logger

	state      State
	stateParam string
	code       string
}

// NewSession builds a session for one domain using modern-mode client
// credentials. tenantID selects the provider endpoint.
func NewSession(domain, clientID, clientSecret, tenantID string, store *credstore.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		domain:   domain,
		tenantID: tenantID,
		store:    store,
		logger:   logger,
		state:    StateStart,
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     microsoft.AzureADEndpoint(tenantID),
		},
	}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Begin builds the provider authorization URL for the user to open in a
// browser and moves the session to awaiting-consent. The state parameter
// is random per session and verified when the redirect is pasted back.
func (s *Session) Begin() string {
	s.stateParam = uuid.NewString()
	authURL := s.cfg.AuthCodeURL(s.stateParam, oauth2.AccessTypeOffline)

	s.logger.Info("authorization URL built",
		slog.String("domain", s.domain),
	)

	s.state = StateAwaitingConsent

	return authURL
}

// ProvideRedirect consumes the full redirected URL the user pasted back
// after granting consent and extracts the authorization code. On any
// malformation the session aborts with InvalidAuthorizationResponseError.
func (s *Session) ProvideRedirect(raw string) error {
	if s.state != StateAwaitingConsent {
		return fmt.Errorf("auth: redirect provided in state %s", s.state)
	}

	s.state = StateAwaitingCode

	u, err := url.Parse(raw)
	if err != nil {
		return s.abortInvalid(fmt.Sprintf("cannot parse pasted URL: %v", err))
	}

	q := u.Query()

	if errParam := q.Get("error"); errParam != "" {
		reason := errParam
		if desc := q.Get("error_description"); desc != "" {
			reason += ": " + desc
		}

		return s.abortInvalid("provider returned " + reason)
	}

	if state := q.Get("state"); state != s.stateParam {
		return s.abortInvalid("state parameter mismatch")
	}

	code := q.Get("code")
	if code == "" {
		return s.abortInvalid("no code query parameter in pasted URL")
	}

	s.code = code
	s.state = StateTokenExchange

	return nil
}

// Exchange trades the authorization code for an access/refresh token pair
// at the provider's token endpoint and persists it, together with the
// client credentials, into the credential store under the session's
// domain. Any transport or provider error aborts the session.
func (s *Session) Exchange(ctx context.Context) (*oauth2.Token, error) {
	if s.state != StateTokenExchange {
		return nil, fmt.Errorf("auth: exchange attempted in state %s", s.state)
	}

	tok, err := s.cfg.Exchange(ctx, s.code)
	if err != nil {
		s.state = StateAborted
		return nil, &AuthenticationError{Domain: s.domain, Err: err}
	}

	s.logger.Info("token exchange successful",
		slog.String("domain", s.domain),
		slog.Time("expiry", tok.Expiry),
	)

	entry := credstore.Entry{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		TenantID:     s.tenantID,
	}
	entry.SetToken(tok)

	if err := s.store.Upsert(s.domain, entry); err != nil {
		s.state = StateAborted
		return nil, err
	}

	s.state = StateComplete

	return tok, nil
}

// abortInvalid moves the session to aborted and returns the typed error.
func (s *Session) abortInvalid(reason string) error {
	s.state = StateAborted
	s.logger.Warn("authorization response rejected",
		slog.String("domain", s.domain),
		slog.String("reason", reason),
	)

	return &InvalidAuthorizationResponseError{Reason: reason}
}
