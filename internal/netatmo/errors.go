package netatmo

import (
	"errors"
	"fmt"
)

// Error classes. ErrRateLimited and ErrTimeout wrap ErrAPI so callers that
// only care about "the vendor call failed" can match the base class, while
// ErrAuth stays separate because it needs the re-authentication flow instead
// of a retry.
var (
	ErrAPI         = errors.New("netatmo: api error")
	ErrAuth        = errors.New("netatmo: authentication required")
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrAPI)
	ErrTimeout     = fmt.Errorf("%w: request timed out", ErrAPI)
)

// APIError carries the HTTP status and vendor error details of a failed
// request. Unwrap exposes the class sentinel for errors.Is.
type APIError struct {
	class      error
	StatusCode int    // HTTP status, 0 for transport-level failures
	Code       string // vendor error code, "" when not provided
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("%v (code %s): %s", e.class, e.Code, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v (status %d): %s", e.class, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%v: %s", e.class, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.class }

func newAPIError(status int, code, message string) *APIError {
	return &APIError{class: ErrAPI, StatusCode: status, Code: code, Message: message}
}

func newAuthError(status int, message string) *APIError {
	return &APIError{class: ErrAuth, StatusCode: status, Message: message}
}
