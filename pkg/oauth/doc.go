// Package oauth implements the OAuth 2.0 Authorization Code token lifecycle:
// building authorization URLs, exchanging authorization codes for tokens,
// transparently refreshing tokens before expiry, and revoking or clearing
// them on logout.
//
// # Core Components
//
//   - Client: owns the current token, the single gateway for obtaining a
//     usable access token
//   - StateRegistry: short-lived CSRF state/nonce values bound to one
//     authorization attempt
//   - TokenStore: pluggable persistence for the refresh token and expiry
//     metadata (never the live access token)
//   - Dispatcher: attaches a bearer credential to outbound HTTP requests
//   - Clock: injectable time source for deterministic expiry testing
//
// # Typical Flow
//
//	store, err := oauth.NewFileTokenStore("https://auth.example.com")
//	client, err := oauth.NewClient(oauth.Config{
//	    ClientID:              "my-client",
//	    RedirectURI:           "http://127.0.0.1:8765/callback",
//	    Scopes:                []string{"openid", "profile"},
//	    AuthorizationEndpoint: "https://auth.example.com/authorize",
//	    TokenEndpoint:         "https://auth.example.com/token",
//	}, store)
//
//	authURL, _, err := client.AuthorizationURLWithPKCE()
//	// ... send the user to authURL, receive code+state on the callback ...
//	err = client.ExchangeCode(ctx, code, state)
//
//	// Later, on every outbound call:
//	dispatcher := oauth.NewDispatcher(client)
//	resp, err := dispatcher.Do(req)
//
// # Token Persistence
//
// A TokenStore only ever holds a projection of the token: the refresh token,
// expiry metadata, token type, scope, and grant time. The live access token
// is deliberately excluded; after a process restart the first AccessToken
// call re-derives it with a single refresh. FileTokenStore writes the
// projection as JSON with 0600 permissions in a 0700 directory.
//
// # Concurrency
//
// All Client operations are safe for concurrent use. Concurrent refresh
// attempts are deduplicated: while one refresh request is in flight, every
// other caller attaches to it and receives the same result, so a rotating
// refresh token is never spent twice.
package oauth
