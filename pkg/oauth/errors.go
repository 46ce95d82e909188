package oauth

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by state validation and token access.
var (
	// ErrInvalidState is returned when a callback carries a state value that
	// was never issued, was already consumed, or is otherwise unknown.
	// Treat an occurrence as a possible CSRF or replay attempt.
	ErrInvalidState = errors.New("invalid state")

	// ErrStateExpired is returned when a callback arrives more than the
	// state TTL after the authorization URL was issued. The user should
	// restart the authorization flow.
	ErrStateExpired = errors.New("state expired")

	// ErrNoRefreshToken is returned when a refresh is attempted but the
	// current token has no refresh token. Equivalent to not being
	// authenticated.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrNotAuthenticated is returned when an access token is requested but
	// none can be produced: never authenticated, logged out, or the last
	// refresh failed and cleared the token state.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// ExchangeError indicates the token endpoint rejected an authorization code
// exchange with a non-2xx response.
type ExchangeError struct {
	// StatusCode is the HTTP status returned by the token endpoint.
	StatusCode int
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d", e.StatusCode)
}

// RefreshError indicates a token refresh failed, either because the token
// endpoint rejected the refresh token or because the request could not be
// completed. All local token state has been cleared by the time this error
// is returned; the user must re-authenticate.
//
// This is expected to happen eventually for any long-lived session and is
// not a bug: refresh tokens get revoked, rotated, and expired server-side.
type RefreshError struct {
	// StatusCode is the HTTP status from the token endpoint, or 0 when the
	// request itself failed before a response was received.
	StatusCode int

	// Err is the underlying transport error, if any.
	Err error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed with status %d", e.StatusCode)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// RequestError indicates a dispatched business request failed with a non-2xx
// status after a valid bearer token was attached. Whether to retry is the
// caller's decision; the dispatcher never retries on its own.
type RequestError struct {
	// StatusCode is the HTTP status of the failed response.
	StatusCode int

	// Challenge holds the parsed WWW-Authenticate header when the response
	// was a 401. Informational only.
	Challenge *AuthChallenge
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// IsAuthError reports whether err indicates the user needs to (re)authenticate:
// a missing token, a spent refresh token, or a failed refresh.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrNoRefreshToken) {
		return true
	}
	var refreshErr *RefreshError
	return errors.As(err, &refreshErr)
}

// IsStateError reports whether err is a state validation failure
// (invalid or expired state).
func IsStateError(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrStateExpired)
}
