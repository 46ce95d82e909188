package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// defaultHTTPTimeout bounds token endpoint requests.
	defaultHTTPTimeout = 30 * time.Second

	// refreshKey is the singleflight key for refresh requests. A client
	// manages one token relationship, so one key suffices.
	refreshKey = "refresh"
)

// Client manages the full lifecycle of one OAuth token relationship:
// authorization URL issuance, code exchange, transparent refresh, and
// revocation. It is the exclusive owner of the live token; callers only
// ever see the access token string.
//
// All methods are safe for concurrent use. Any number of goroutines may
// call AccessToken; at most one refresh request is in flight at a time and
// its outcome is shared by every caller that was waiting on it.
type Client struct {
	config Config
	store  TokenStore
	states *StateRegistry

	httpClient *http.Client
	logger     *slog.Logger
	clock      Clock

	mu        sync.RWMutex
	token     *StoredToken
	authState AuthState

	refreshGroup singleflight.Group
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the time source. Tests use this to step through token
// expiry without sleeping.
func WithClock(clock Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient creates a client for the given configuration, restoring any
// persisted token relationship from the store.
//
// A restored token carries no access token, so the first AccessToken call
// after a restart performs exactly one refresh. A nil store keeps tokens in
// memory only.
func NewClient(config Config, store TokenStore, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid OAuth configuration: %w", err)
	}
	if store == nil {
		store = NewMemoryTokenStore()
	}

	c := &Client{
		config:     config,
		store:      store,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     slog.Default(),
		clock:      SystemClock(),
		authState:  StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.states = newStateRegistry(stateTTL, c.clock)

	projection, err := store.Load()
	if err != nil {
		// A corrupted token file must not brick the client. Start
		// unauthenticated; the stale file is overwritten on next login.
		c.logger.Warn("Failed to restore persisted token, starting unauthenticated", "error", err)
	} else if projection != nil {
		c.token = projection.restore()
		c.authState = StateAuthenticated
		c.logger.Debug("Restored persisted token relationship",
			"expires_at", projection.ExpiresAt.Format(time.RFC3339))
	}

	return c, nil
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// AuthorizationURL issues a new authorization attempt and returns the URL
// the user must visit, without PKCE. Confidential clients that authenticate
// with a client secret use this form.
func (c *Client) AuthorizationURL() (string, *OAuthState, error) {
	return c.authorizationURL(nil)
}

// AuthorizationURLWithPKCE issues a new authorization attempt protected by
// an S256 PKCE challenge and returns the URL the user must visit. The code
// verifier is bound to the attempt and replayed automatically during
// ExchangeCode.
func (c *Client) AuthorizationURLWithPKCE() (string, *OAuthState, error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return "", nil, err
	}
	return c.authorizationURL(pkce)
}

// AuthorizationURLWithChallenge issues a new authorization attempt carrying
// a caller-supplied S256 code challenge. The challenge is opaque to the
// client: the caller keeps the verifier, so nothing is bound to the attempt
// and ExchangeCode will not send one. An empty challenge behaves like
// AuthorizationURL.
func (c *Client) AuthorizationURLWithChallenge(codeChallenge string) (string, *OAuthState, error) {
	if codeChallenge == "" {
		return c.authorizationURL(nil)
	}
	return c.authorizationURL(&PKCEChallenge{
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: "S256",
	})
}

func (c *Client) authorizationURL(pkce *PKCEChallenge) (string, *OAuthState, error) {
	verifier := ""
	if pkce != nil {
		verifier = pkce.CodeVerifier
	}

	attempt, err := c.states.Issue(verifier)
	if err != nil {
		return "", nil, err
	}

	u, err := url.Parse(c.config.AuthorizationEndpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.config.ClientID)
	q.Set("redirect_uri", c.config.RedirectURI)
	q.Set("scope", c.config.scopeString())
	q.Set("state", attempt.State)
	q.Set("nonce", attempt.Nonce)
	if pkce != nil {
		q.Set("code_challenge", pkce.CodeChallenge)
		q.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}
	u.RawQuery = q.Encode()

	c.mu.Lock()
	if c.token == nil {
		c.authState = StateAuthorizationPending
	}
	c.mu.Unlock()

	c.logger.Debug("Issued authorization URL", "attempt_id", attempt.ID, "pkce", pkce != nil)
	return u.String(), attempt, nil
}

// ExchangeCode redeems an authorization code for tokens. The state value is
// consumed atomically: an unknown state fails with ErrInvalidState, an
// expired one with ErrStateExpired, and no network request is made in
// either case.
//
// On success the client is authenticated and the token projection is
// persisted.
func (c *Client) ExchangeCode(ctx context.Context, code, state string) error {
	attempt, err := c.states.Consume(state)
	if err != nil {
		c.logger.Info("SECURITY_AUDIT",
			"event", "authorization_rejected",
			"reason", err.Error(),
		)
		return err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.config.RedirectURI)
	form.Set("client_id", c.config.ClientID)
	if !c.config.ClientSecret.IsEmpty() {
		form.Set("client_secret", c.config.ClientSecret.Value())
	}
	if attempt.CodeVerifier != "" {
		form.Set("code_verifier", attempt.CodeVerifier)
	}

	c.logger.Debug("Exchanging authorization code", "attempt_id", attempt.ID)

	resp, status, err := c.doTokenRequest(ctx, form)
	if err != nil {
		if status != 0 {
			c.logger.Warn("Code exchange rejected", "attempt_id", attempt.ID, "status", status)
			return &ExchangeError{StatusCode: status}
		}
		return fmt.Errorf("token exchange request failed: %w", err)
	}

	token := c.tokenFromResponse(resp, "")

	c.mu.Lock()
	c.token = token
	c.authState = StateAuthenticated
	c.persistLocked()
	c.mu.Unlock()

	c.logger.Info("SECURITY_AUDIT",
		"event", "authorization_completed",
		"attempt_id", attempt.ID,
		"expires_at", token.ExpiresAt.Format(time.RFC3339),
		"has_refresh_token", token.RefreshToken != "",
	)
	return nil
}

// AccessToken returns a currently valid access token, refreshing first when
// needed. The hot path performs no I/O: a live token outside the expiry
// buffer is returned under a read lock.
//
// Concurrent callers needing a refresh share a single network request.
// Failures satisfy IsAuthError and mean the user must re-authorize.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	if tok := c.token; tok != nil && tok.AccessToken != "" && !c.staleLocked(tok) {
		accessToken := tok.AccessToken
		c.mu.RUnlock()
		return accessToken, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.refreshGroup.Do(refreshKey, func() (interface{}, error) {
		return c.refresh(ctx, false)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh forces a token refresh regardless of the current token's expiry
// and returns the refreshed token metadata. Concurrent callers, forced or
// not, share a single in-flight attempt. ErrNoRefreshToken when there is
// nothing to refresh with; a *RefreshError clears the relationship
// entirely, exactly as with AccessToken.
func (c *Client) Refresh(ctx context.Context) (StoredToken, error) {
	_, err, _ := c.refreshGroup.Do(refreshKey, func() (interface{}, error) {
		return c.refresh(ctx, true)
	})
	if err != nil {
		return StoredToken{}, err
	}

	tok, ok := c.CurrentToken()
	if !ok {
		return StoredToken{}, ErrNotAuthenticated
	}
	return tok, nil
}

// refresh runs inside the singleflight slot. Unforced calls re-check the
// token first: a caller that lost the race to the slot arrives after the
// winner already installed a fresh token and must not trigger a second
// request. A forced call always goes to the endpoint.
func (c *Client) refresh(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	tok := c.token
	if tok == nil {
		c.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	if !force && tok.AccessToken != "" && !c.staleLocked(tok) {
		accessToken := tok.AccessToken
		c.mu.Unlock()
		return accessToken, nil
	}
	if tok.RefreshToken == "" {
		// Nothing to refresh with. The relationship is dead weight; clear
		// it so the state machine lands in unauthenticated.
		c.mu.Unlock()
		if err := c.clearAuth("no_refresh_token"); err != nil {
			c.logger.Error("Failed to clear token state", "error", err)
		}
		return "", ErrNoRefreshToken
	}
	refreshToken := tok.RefreshToken
	c.authState = StateRefreshing
	c.mu.Unlock()

	c.logger.Debug("Refreshing access token")

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.config.ClientID)
	if !c.config.ClientSecret.IsEmpty() {
		form.Set("client_secret", c.config.ClientSecret.Value())
	}

	resp, status, err := c.doTokenRequest(ctx, form)
	if err != nil {
		// Fail closed: a refresh token that was rejected, or that may have
		// been consumed by a response we never saw, must not be retried.
		refreshErr := &RefreshError{StatusCode: status, Err: err}
		if clearErr := c.clearAuth("refresh_failed"); clearErr != nil {
			c.logger.Error("Failed to clear token state after refresh failure", "error", clearErr)
		}
		c.logger.Warn("Token refresh failed, authentication cleared", "status", status, "error", err)
		return "", refreshErr
	}

	newToken := c.tokenFromResponse(resp, refreshToken)

	c.mu.Lock()
	c.token = newToken
	c.authState = StateAuthenticated
	c.persistLocked()
	accessToken := newToken.AccessToken
	c.mu.Unlock()

	c.logger.Info("SECURITY_AUDIT",
		"event", "token_refreshed",
		"expires_at", newToken.ExpiresAt.Format(time.RFC3339),
		"refresh_token_rotated", newToken.RefreshToken != refreshToken,
	)
	return accessToken, nil
}

// IsTokenExpired reports whether the current token is absent, expired, or
// inside the expiry buffer. It shares its margin with AccessToken, so a
// token this method calls valid is one AccessToken would return without
// refreshing.
func (c *Client) IsTokenExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil {
		return true
	}
	return c.staleLocked(c.token)
}

// staleLocked reports whether a token is expired or will be within the
// expiry buffer. Caller holds mu.
func (c *Client) staleLocked(tok *StoredToken) bool {
	return !c.clock.Now().Add(tokenExpiryBuffer).Before(tok.ExpiresAt)
}

// State returns the current lifecycle state.
func (c *Client) State() AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authState
}

// IsAuthenticated reports whether a token relationship exists and is not
// expired. Pure read, no refresh side effect. The expiry margin is the
// same tokenExpiryBuffer AccessToken applies, so the two can never
// disagree about liveness.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != nil && !c.staleLocked(c.token)
}

// CurrentToken returns a copy of the current token metadata and whether one
// exists.
func (c *Client) CurrentToken() (StoredToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil {
		return StoredToken{}, false
	}
	return *c.token, true
}

// Logout discards the token relationship locally. No network request is
// made; the error, if any, is from clearing the persistent store.
func (c *Client) Logout(ctx context.Context) error {
	return c.clearAuth("logout")
}

// Revoke attempts best-effort remote revocation of the refresh token per
// RFC 7009, then clears local state unconditionally. A revocation endpoint
// that is missing, unreachable, or unhappy never blocks the local logout;
// the returned error only reflects the local clear.
func (c *Client) Revoke(ctx context.Context) error {
	c.mu.RLock()
	var refreshToken string
	if c.token != nil {
		refreshToken = c.token.RefreshToken
	}
	c.mu.RUnlock()

	if c.config.RevocationEndpoint != "" && refreshToken != "" {
		c.revokeRemote(ctx, refreshToken)
	}

	return c.clearAuth("revoked")
}

func (c *Client) revokeRemote(ctx context.Context, refreshToken string) {
	form := url.Values{}
	form.Set("token", refreshToken)
	form.Set("token_type_hint", "refresh_token")
	form.Set("client_id", c.config.ClientID)
	if !c.config.ClientSecret.IsEmpty() {
		form.Set("client_secret", c.config.ClientSecret.Value())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.RevocationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Warn("Failed to build revocation request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Token revocation request failed", "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Token revocation rejected", "status", resp.StatusCode)
		return
	}

	c.logger.Info("SECURITY_AUDIT", "event", "token_revoked")
}

// clearAuth drops the token relationship from memory and from the store and
// moves the state machine to unauthenticated.
func (c *Client) clearAuth(reason string) error {
	c.mu.Lock()
	c.token = nil
	c.authState = StateUnauthenticated
	c.mu.Unlock()

	err := c.store.Clear()

	c.logger.Info("SECURITY_AUDIT",
		"event", "authentication_cleared",
		"reason", reason,
	)
	if err != nil {
		return fmt.Errorf("failed to clear token store: %w", err)
	}
	return nil
}

// persistLocked saves the current token's projection. Persistence failures
// are logged, not returned: the in-memory session stays valid and the next
// successful grant overwrites the store. Caller holds mu.
func (c *Client) persistLocked() {
	if c.token == nil {
		return
	}
	if err := c.store.Save(c.token.Projection()); err != nil {
		c.logger.Error("Failed to persist token projection", "error", err)
	}
}

// tokenFromResponse converts a wire response into a StoredToken. The expiry
// is fixed here, at processing time, and never recomputed. A refresh
// response may omit the refresh token, in which case the previous one is
// retained.
func (c *Client) tokenFromResponse(resp *TokenResponse, previousRefreshToken string) *StoredToken {
	now := c.clock.Now()

	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefreshToken
	}

	expiresAt := now
	if resp.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	} else {
		c.logger.Warn("Token response has no expires_in, treating token as immediately stale")
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &StoredToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		TokenType:    tokenType,
		Scope:        resp.Scope,
		GrantedAt:    now,
	}
}

// doTokenRequest posts a form to the token endpoint and decodes the
// response. On an HTTP error status the returned int carries the status
// code; on a transport error it is zero.
func (c *Client) doTokenRequest(ctx context.Context, form url.Values) (*TokenResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("Token endpoint returned error",
			"status", resp.StatusCode, "body", truncateBody(body))
		return nil, resp.StatusCode, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, 0, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, 0, fmt.Errorf("token response missing access_token")
	}

	return &tokenResp, 0, nil
}

// truncateBody bounds an error body for logging. Error bodies from broken
// servers can be arbitrarily large.
func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
