package oauth

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// tokenExpiryBuffer is the margin applied when checking token validity.
// A token inside this buffer of its expiry is treated as expired, which
// accounts for clock skew, network latency, and long-running operations.
// Both IsTokenExpired and AccessToken use this single constant so the two
// checks can never drift apart.
const tokenExpiryBuffer = 60 * time.Second

// Config holds the immutable OAuth client configuration supplied at
// construction.
type Config struct {
	// ClientID is the OAuth client identifier.
	ClientID string

	// ClientSecret is the client secret. Empty for public/PKCE clients.
	ClientSecret RedactedToken

	// RedirectURI is the absolute URL the authorization server redirects
	// back to with code and state.
	RedirectURI string

	// Scopes are the requested OAuth scopes. Must be non-empty.
	Scopes []string

	// AuthorizationEndpoint is the absolute URL of the authorization endpoint.
	AuthorizationEndpoint string

	// TokenEndpoint is the absolute URL of the token endpoint.
	TokenEndpoint string

	// RevocationEndpoint is the absolute URL of the RFC 7009 revocation
	// endpoint. Optional; when empty, Revoke only clears local state.
	RevocationEndpoint string
}

// Validate checks the configuration invariants: client ID present, scopes
// non-empty, and all URLs well-formed and absolute.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if len(c.Scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}

	required := map[string]string{
		"redirect URI":           c.RedirectURI,
		"authorization endpoint": c.AuthorizationEndpoint,
		"token endpoint":         c.TokenEndpoint,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
		if err := validateAbsoluteURL(name, value); err != nil {
			return err
		}
	}

	if c.RevocationEndpoint != "" {
		if err := validateAbsoluteURL("revocation endpoint", c.RevocationEndpoint); err != nil {
			return err
		}
	}

	return nil
}

// FromMetadata fills the endpoint fields from discovered server metadata.
// Fields already set on the Config are left untouched, so explicit
// configuration always wins over discovery.
func (c *Config) FromMetadata(m *Metadata) {
	if m == nil {
		return
	}
	if c.AuthorizationEndpoint == "" {
		c.AuthorizationEndpoint = m.AuthorizationEndpoint
	}
	if c.TokenEndpoint == "" {
		c.TokenEndpoint = m.TokenEndpoint
	}
	if c.RevocationEndpoint == "" {
		c.RevocationEndpoint = m.RevocationEndpoint
	}
}

// scopeString returns the scopes joined with spaces, the form used in
// authorization request query strings.
func (c *Config) scopeString() string {
	return strings.Join(c.Scopes, " ")
}

func validateAbsoluteURL(name, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", name, value)
	}
	return nil
}

// OAuthState is one in-flight authorization attempt: the CSRF state value,
// the nonce, and the optional PKCE code verifier bound to it.
//
// State and nonce are secrets and never logged; the ID is a random UUID safe
// for log correlation.
type OAuthState struct {
	// ID identifies this attempt in logs and audit events.
	ID string

	// State is the unguessable anti-CSRF value embedded in the
	// authorization URL and echoed back on the callback.
	State string

	// Nonce is the anti-replay value embedded in the authorization URL.
	Nonce string

	// CodeVerifier is the PKCE verifier for this attempt, if PKCE is used.
	// Sent to the token endpoint on exchange, never to the authorization
	// endpoint.
	CodeVerifier string

	// CreatedAt is when the attempt was issued. Attempts expire a fixed
	// TTL after this instant.
	CreatedAt time.Time
}

// StoredToken is the current token relationship, exclusively owned by the
// Client. Only its Projection is ever persisted.
type StoredToken struct {
	// AccessToken is the live bearer credential. Empty after a restore from
	// durable storage until the first refresh completes.
	AccessToken string

	// RefreshToken is the long-lived credential used to obtain new access
	// tokens. Optional.
	RefreshToken string

	// ExpiresAt is when the access token expires. Derived as
	// GrantedAt + expires_in at the moment the token response was
	// processed, never recomputed later.
	ExpiresAt time.Time

	// TokenType is typically "Bearer".
	TokenType string

	// Scope is the granted scope(s), space-separated.
	Scope string

	// GrantedAt is when the token response was processed.
	GrantedAt time.Time
}

// Projection returns the durable subset of the token that a TokenStore may
// persist. The live access token is deliberately excluded: after a process
// restart it is re-derived via refresh rather than read from disk.
func (t *StoredToken) Projection() *TokenProjection {
	return &TokenProjection{
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
		TokenType:    t.TokenType,
		Scope:        t.Scope,
		GrantedAt:    t.GrantedAt,
	}
}

// Scopes returns the granted scopes as a slice, or nil when none were
// reported.
func (t *StoredToken) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// OAuth2Token converts the token to an oauth2.Token for interoperability
// with golang.org/x/oauth2 consumers.
func (t *StoredToken) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// TokenProjection is the persisted form of a token: refresh token and expiry
// metadata only.
type TokenProjection struct {
	// RefreshToken is the long-lived credential. May be empty when the
	// server granted none.
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is when the (not persisted) access token expires.
	ExpiresAt time.Time `json:"expires_at"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`

	// GrantedAt is when the token response was processed.
	GrantedAt time.Time `json:"granted_at"`
}

// restore turns a loaded projection back into a StoredToken with no access
// token. The first AccessToken call on a restored token always refreshes.
func (p *TokenProjection) restore() *StoredToken {
	return &StoredToken{
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt,
		TokenType:    p.TokenType,
		Scope:        p.Scope,
		GrantedAt:    p.GrantedAt,
	}
}

// TokenResponse is the wire shape returned by the token endpoint. It is
// transient: transformed into a StoredToken and discarded.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
}

// AuthState is the phase of the token lifecycle state machine.
type AuthState int

const (
	// StateUnauthenticated means no token exists. Initial state.
	StateUnauthenticated AuthState = iota

	// StateAuthorizationPending means an authorization URL has been issued
	// and the code exchange has not happened yet.
	StateAuthorizationPending

	// StateAuthenticated means a token exists and has not been cleared.
	StateAuthenticated

	// StateRefreshing means a refresh request is currently in flight.
	StateRefreshing
)

// String returns a human-readable representation of the auth state.
func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizationPending:
		return "authorization_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Metadata represents OAuth 2.0 Authorization Server Metadata as defined in
// RFC 8414. Only the fields the client consumes are modeled.
type Metadata struct {
	// Issuer is the authorization server's issuer identifier.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint"`

	// RevocationEndpoint is the URL of the RFC 7009 revocation endpoint.
	RevocationEndpoint string `json:"revocation_endpoint,omitempty"`

	// ScopesSupported lists the OAuth 2.0 scope values supported.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the response_type values supported.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`

	// CodeChallengeMethodsSupported lists the PKCE code challenge methods.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE returns true if the server supports S256 PKCE.
func (m *Metadata) SupportsPKCE() bool {
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	// If not specified, assume S256 is supported
	return len(m.CodeChallengeMethodsSupported) == 0
}

// AuthChallenge represents parsed information from a WWW-Authenticate header.
type AuthChallenge struct {
	// Scheme is the authentication scheme (typically "Bearer").
	Scheme string

	// Realm is the protection realm (often the authorization server URL).
	Realm string

	// Issuer is the OAuth/OIDC issuer URL, derived from the Realm when the
	// realm is a URL.
	Issuer string

	// Scope is the space-separated list of required OAuth scopes.
	Scope string

	// Error is the error code from the WWW-Authenticate header (if any).
	Error string

	// ErrorDescription is a human-readable error description (if any).
	ErrorDescription string
}

// IsOAuthChallenge returns true if this represents an OAuth bearer challenge.
func (c *AuthChallenge) IsOAuthChallenge() bool {
	if c == nil {
		return false
	}
	if !strings.EqualFold(c.Scheme, "Bearer") {
		return false
	}
	return c.Realm != "" || c.Issuer != ""
}

// GetIssuer returns the OAuth issuer URL. It prefers the explicit Issuer
// field and falls back to the Realm when the realm is a URL.
func (c *AuthChallenge) GetIssuer() string {
	if c == nil {
		return ""
	}
	if c.Issuer != "" {
		return c.Issuer
	}
	if strings.HasPrefix(c.Realm, "http://") || strings.HasPrefix(c.Realm, "https://") {
		return c.Realm
	}
	return ""
}

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
// PKCE protects public clients that cannot hold a client secret from
// authorization code interception.
type PKCEChallenge struct {
	// CodeVerifier is the cryptographically random string, base64url-encoded.
	// Kept secret, sent only to the token endpoint on exchange.
	CodeVerifier string

	// CodeChallenge is the SHA256 hash of the verifier, base64url-encoded.
	// Sent in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}
