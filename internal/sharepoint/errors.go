// Package sharepoint provides an HTTP client for the SharePoint Online
// REST API with error classification and bounded retry for transient
// failures. It is the transport collaborator: the rest of the program
// never builds requests against the service directly.
package sharepoint

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, sharepoint.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("sharepoint: bad request")
	ErrUnauthorized = errors.New("sharepoint: unauthorized")
	ErrForbidden    = errors.New("sharepoint: forbidden")
	ErrNotFound     = errors.New("sharepoint: not found")
	ErrConflict     = errors.New("sharepoint: conflict")
	ErrThrottled    = errors.New("sharepoint: throttled")
	ErrServerError  = errors.New("sharepoint: server error")
)

// APIError wraps a sentinel error with the HTTP status code and the API
// error message body for debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sharepoint: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		// 509 Bandwidth Limit Exceeded (SharePoint).
		const statusBandwidthExceeded = 509
		return code == statusBandwidthExceeded
	}
}
