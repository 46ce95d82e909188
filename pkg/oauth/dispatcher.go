package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// TokenProvider supplies valid access tokens. *Client implements it.
type TokenProvider interface {
	// AccessToken returns a currently valid access token or an error
	// satisfying IsAuthError.
	AccessToken(ctx context.Context) (string, error)
}

// Dispatcher sends HTTP requests with a bearer token obtained from a
// TokenProvider.
//
// Status handling stays with the caller: Do hands back every response, 401
// included, and never retries. The provider already guarantees the attached
// token was fresh, so a 401 means the token was revoked or lacks a required
// scope; retrying with another token from the same grant would loop.
// SendJSON interprets statuses for JSON round-trips and surfaces non-2xx as
// *RequestError, carrying the parsed WWW-Authenticate challenge on 401.
type Dispatcher struct {
	provider   TokenProvider
	httpClient *http.Client
	logger     *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherHTTPClient sets a custom HTTP client.
func WithDispatcherHTTPClient(httpClient *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		if httpClient != nil {
			d.httpClient = httpClient
		}
	}
}

// WithDispatcherLogger sets a custom logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher backed by the given token provider.
func NewDispatcher(provider TokenProvider, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		provider:   provider,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Do obtains an access token, attaches it as a bearer credential, and sends
// the request. The request's Authorization header is replaced.
//
// Token acquisition failures are returned as-is and satisfy IsAuthError; no
// network request is made in that case. The response is otherwise returned
// unchanged, success or failure, and the caller owns the body.
func (d *Dispatcher) Do(req *http.Request) (*http.Response, error) {
	accessToken, err := d.provider.AccessToken(req.Context())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// SendJSON performs an authenticated JSON round-trip: the body is encoded
// as JSON, the response decoded into out (which may be nil to discard the
// response). Any non-2xx status is returned as a *RequestError.
func (d *Dispatcher) SendJSON(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := &RequestError{StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusUnauthorized {
			reqErr.Challenge = ParseWWWAuthenticateFromResponse(resp)
			d.logger.Warn("Request rejected with 401, re-authorization required",
				"url", url,
				"challenge_error", challengeError(reqErr.Challenge),
			)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return reqErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func challengeError(c *AuthChallenge) string {
	if c == nil {
		return ""
	}
	return c.Error
}
