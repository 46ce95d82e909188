package config

import (
	"fmt"

	"tokenward/pkg/oauth"
)

// Config is the top-level configuration structure for tokenward.
type Config struct {
	// Issuer is the authorization server base URL. Endpoints are
	// resolved from it through RFC 8414 discovery unless pinned
	// explicitly under endpoints.
	Issuer string `yaml:"issuer,omitempty"`

	// ClientID is the OAuth client identifier registered with the
	// authorization server.
	ClientID string `yaml:"client_id"`

	// ClientSecret is the confidential client secret. Empty for
	// public (PKCE-only) clients.
	ClientSecret string `yaml:"client_secret,omitempty"`

	// Scopes are requested during authorization.
	Scopes []string `yaml:"scopes,omitempty"`

	Endpoints EndpointConfig `yaml:"endpoints,omitempty"`
	Callback  CallbackConfig `yaml:"callback,omitempty"`

	// TokenDir overrides the directory tokens are persisted to
	// (default: ~/.config/tokenward/tokens).
	TokenDir string `yaml:"token_dir,omitempty"`

	// LogLevel is one of debug, info, warn, error (default: info).
	LogLevel string `yaml:"log_level,omitempty"`
}

// EndpointConfig pins authorization server endpoints explicitly.
// Any endpoint set here bypasses discovery for that endpoint.
type EndpointConfig struct {
	Authorization string `yaml:"authorization,omitempty"`
	Token         string `yaml:"token,omitempty"`
	Revocation    string `yaml:"revocation,omitempty"`
}

// IsComplete reports whether the endpoints required for the
// authorization code flow are all pinned, making discovery unnecessary.
func (e EndpointConfig) IsComplete() bool {
	return e.Authorization != "" && e.Token != ""
}

// CallbackConfig configures the loopback redirect listener used during
// login.
type CallbackConfig struct {
	Port int    `yaml:"port,omitempty"` // 0 picks a free port
	Path string `yaml:"path,omitempty"`
}

// RedirectURI returns the redirect URI this callback configuration
// registers with the authorization server. With port 0 the actual URI
// is only known once the listener is bound; callers in that situation
// should prefer the listener's own value.
func (c CallbackConfig) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", c.Port, c.Path)
}

// OAuthConfig assembles the oauth client configuration from this file
// configuration. The redirect URI is supplied by the caller because the
// loopback listener may bind an ephemeral port.
func (c Config) OAuthConfig(redirectURI string) oauth.Config {
	return oauth.Config{
		ClientID:              c.ClientID,
		ClientSecret:          oauth.NewRedactedToken(c.ClientSecret),
		RedirectURI:           redirectURI,
		Scopes:                c.Scopes,
		AuthorizationEndpoint: c.Endpoints.Authorization,
		TokenEndpoint:         c.Endpoints.Token,
		RevocationEndpoint:    c.Endpoints.Revocation,
	}
}
