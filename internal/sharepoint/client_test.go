package sharepoint

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClient points a client at a test server with retry sleeps disabled.
func testClient(server *httptest.Server, auth Authorizer) *Client {
	if auth == nil {
		auth = BasicAuth{Username: "u", Password: "p"}
	}

	c := newClientForTest(server.URL, "/sites/example", server.Client(), auth, discardLogger())
	c.sleepFunc = func(_ context.Context, _ time.Duration) error { return nil }

	return c
}

func TestDoSetsStandardHeaders(t *testing.T) {
	var got http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer server.Close()

	c := testClient(server, nil)

	resp, err := c.Do(context.Background(), http.MethodGet, "/_api/web", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "spo/0.1", got.Get("User-Agent"))
	assert.Equal(t, "application/json;odata=nometadata", got.Get("Accept"))
}

func TestBasicAuthHeader(t *testing.T) {
	var user, pass string
	var ok bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
	}))
	defer server.Close()

	c := testClient(server, BasicAuth{Username: "alice@example.com", Password: "hunter2"})

	resp, err := c.Do(context.Background(), http.MethodGet, "/_api/web", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.True(t, ok)
	assert.Equal(t, "alice@example.com", user)
	assert.Equal(t, "hunter2", pass)
}

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func TestBearerAuthHeader(t *testing.T) {
	var got string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer server.Close()

	c := testClient(server, BearerAuth{Source: staticToken("token-abc")})

	resp, err := c.Do(context.Background(), http.MethodGet, "/_api/web", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer token-abc", got)
}

func TestDoClassifiesErrors(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", tt.status)
		}))

		c := testClient(server, nil)

		_, err := c.Do(context.Background(), http.MethodGet, "/_api/web", nil, nil)
		require.Error(t, err, tt.status)
		assert.ErrorIs(t, err, tt.sentinel, tt.status)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr, tt.status)
		assert.Equal(t, tt.status, apiErr.StatusCode)

		server.Close()
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	var attempts int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := testClient(server, nil)

	resp, err := c.Do(context.Background(), http.MethodGet, "/_api/web", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 3, attempts)
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	var attempts int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := testClient(server, nil)

	_, err := c.Do(context.Background(), http.MethodGet, "/_api/web", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, maxRetries+1, attempts)
}

func TestDoDoesNotRetryRequestsWithBody(t *testing.T) {
	var attempts int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := testClient(server, nil)

	// The body reader cannot be replayed, so one attempt only.
	_, err := c.Do(context.Background(), http.MethodPost, "/_api/web", strings.NewReader("payload"), nil)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoHonorsRetryAfter(t *testing.T) {
	var attempts int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var slept []time.Duration

	c := newClientForTest(server.URL, "/sites/example", server.Client(), BasicAuth{}, discardLogger())
	c.sleepFunc = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	resp, err := c.Do(context.Background(), http.MethodGet, "/_api/web", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, slept, 1)
	assert.Equal(t, 7*time.Second, slept[0])
}

func TestDoExtraHeaders(t *testing.T) {
	var got http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer server.Close()

	c := testClient(server, nil)

	hdr := http.Header{}
	hdr.Set("X-HTTP-Method", "DELETE")
	hdr.Set("IF-MATCH", "*")

	resp, err := c.Do(context.Background(), http.MethodPost, "/_api/web", nil, hdr)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "DELETE", got.Get("X-HTTP-Method"))
	assert.Equal(t, "*", got.Get("IF-MATCH"))
}

func TestQuotePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/sites/example/docs", "/sites/example/docs"},
		{"/sites/example/Shared Documents", "/sites/example/Shared%20Documents"},
		{"/sites/example/bob's files", "/sites/example/bob''s%20files"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, quotePath(tt.in), tt.in)
	}
}

func TestServerRelative(t *testing.T) {
	c := NewClient("example.sharepoint.com", "/sites/example", nil, BasicAuth{}, discardLogger())

	assert.Equal(t, "/sites/example/docs/report.pdf", c.serverRelative("docs/report.pdf"))
	assert.Equal(t, "/sites/example/docs", c.serverRelative("/docs/"))
	assert.Equal(t, "/sites/example/", c.serverRelative(""))
}

func TestCalcBackoffBounded(t *testing.T) {
	c := NewClient("example.sharepoint.com", "", nil, BasicAuth{}, discardLogger())

	for attempt := range 10 {
		b := c.calcBackoff(attempt)
		assert.Greater(t, b, time.Duration(0))
		assert.LessOrEqual(t, b, maxBackoff+maxBackoff/4)
	}
}
