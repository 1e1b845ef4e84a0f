package sharepoint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Retry and backoff constants.
const (
	maxRetries     = 3
	baseBackoff    = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "spo/0.1"
)

// acceptJSON asks the REST API for plain JSON without OData metadata noise.
const acceptJSON = "application/json;odata=nometadata"

// Authorizer attaches authentication to an outgoing request. Implemented
// by BasicAuth (legacy username/password) and BearerAuth (modern OAuth).
type Authorizer interface {
	Authorize(req *http.Request) error
}

// BasicAuth authenticates with a username/password pair (legacy mode).
type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) Authorize(req *http.Request) error {
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer per
// Go convention "accept interfaces, return structs"; the auth package
// provides the real implementation.
type TokenSource interface {
	Token() (string, error)
}

// BearerAuth authenticates with an OAuth bearer token (modern mode).
type BearerAuth struct {
	Source TokenSource
}

func (a BearerAuth) Authorize(req *http.Request) error {
	tok, err := a.Source.Token()
	if err != nil {
		return fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)

	return nil
}

// Client is an HTTP client for one SharePoint site. It handles request
// construction, authentication, retry with exponential backoff, and error
// classification.
type Client struct {
	baseURL    string // https://<domain><site path>, no trailing slash
	sitePath   string // server-relative site prefix, e.g. "/sites/example"
	httpClient *http.Client
	auth       Authorizer
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for the site at https://<domain><sitePath>.
// sitePath is server-relative, e.g. "/sites/example"; empty means the
// root site.
func NewClient(domain, sitePath string, httpClient *http.Client, auth Authorizer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	sitePath = strings.TrimSuffix(sitePath, "/")

	return &Client{
		baseURL:    "https://" + domain + sitePath,
		sitePath:   sitePath,
		httpClient: httpClient,
		auth:       auth,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// newClientForTest builds a client whose base URL points at a test server.
func newClientForTest(baseURL, sitePath string, httpClient *http.Client, auth Authorizer, logger *slog.Logger) *Client {
	c := NewClient("placeholder", sitePath, httpClient, auth, logger)
	c.baseURL = strings.TrimSuffix(baseURL, "/") + sitePath

	return c
}

// serverRelative converts a site-relative path ("Shared Documents/reports")
// to the server-relative form the API expects ("/sites/example/Shared
// Documents/reports").
func (c *Client) serverRelative(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return c.sitePath + "/"
	}

	return c.sitePath + "/" + path
}

// quotePath escapes a server-relative path for interpolation inside the
// single-quoted argument of GetFolderByServerRelativeUrl(...): apostrophes
// are doubled per OData literal rules, then each path segment is
// URL-encoded (slashes stay intact).
func quotePath(path string) string {
	segments := strings.Split(strings.ReplaceAll(path, "'", "''"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// Do executes an HTTP request against the site's REST API. The path is
// appended to the client's base URL. Transient failures (network errors,
// 429, 5xx) are retried with exponential backoff; everything else is
// classified into a sentinel error. The caller is responsible for closing
// the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, hdr http.Header) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, url, body, hdr)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("sharepoint: request canceled: %w", ctx.Err())
			}

			// Network errors are retryable, but only when the request body
			// can be replayed (nil body; callers with bodies get one shot).
			if body == nil && attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("sharepoint: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("sharepoint: %s %s: %w", method, path, err)
		}

		// 2xx — success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if body == nil && isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("sharepoint: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(errBody)),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, url string, body io.Reader, hdr http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if err := c.auth.Authorize(req); err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptJSON)

	for key, values := range hdr {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	return c.httpClient.Do(req)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
