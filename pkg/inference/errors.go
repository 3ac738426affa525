package inference

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when API key is required but missing.
	ErrNoAPIKey = errors.New("inference: API key required")

	// ErrNoModel is returned when model is required but missing.
	ErrNoModel = errors.New("inference: model required")

	// ErrProviderUnavailable is returned when no provider can serve a request.
	ErrProviderUnavailable = errors.New("inference: provider unavailable")

	// ErrStreamClosed is returned when reading from a closed stream.
	ErrStreamClosed = errors.New("inference: stream closed")

	// ErrEmptyReply is returned when a backend answered with no choices.
	ErrEmptyReply = errors.New("inference: empty reply")

	// ErrStreamTruncated is returned when a stream ends without its
	// terminating event.
	ErrStreamTruncated = errors.New("inference: stream ended before completion")
)

// APIError represents an error response from an inference API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error code (if provided).
	Code string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("inference [%s]: API error %d (%s): %s",
			e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("inference [%s]: API error %d: %s",
		e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsModelRejected returns true when the service refused the requested model
// as unknown, unsupported or deprecated.
func (e *APIError) IsModelRejected() bool {
	switch e.Code {
	case "model_not_found", "invalid_model", "model_deprecated", "unsupported_model":
		return true
	}
	if e.StatusCode == 404 {
		return true
	}
	if e.StatusCode != 400 && e.StatusCode != 403 {
		return false
	}
	msg := strings.ToLower(e.Message)
	if !strings.Contains(msg, "model") {
		return false
	}
	for _, hint := range []string{"deprecated", "does not exist", "not supported", "not found", "invalid"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsModelRejected reports whether err carries an APIError that rejected the model.
func IsModelRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsModelRejected()
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// FallbackError records both failures when the alternate model also failed.
type FallbackError struct {
	Primary   error
	Alternate error
}

// Error implements the error interface.
func (e *FallbackError) Error() string {
	return fmt.Sprintf("inference fallback: primary: %v; alternate: %v", e.Primary, e.Alternate)
}

// Unwrap returns both errors so errors.Is/As see either.
func (e *FallbackError) Unwrap() []error {
	return []error{e.Primary, e.Alternate}
}
