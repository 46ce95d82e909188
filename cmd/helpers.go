package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"tokenward/internal/config"
	"tokenward/pkg/logging"
	"tokenward/pkg/oauth"
)

const (
	// DefaultDiscoveryTimeout is the maximum time to wait for authorization
	// server metadata discovery.
	DefaultDiscoveryTimeout = 10 * time.Second

	// DefaultRevokeTimeout is the maximum time to spend on the best-effort
	// revocation request during logout.
	DefaultRevokeTimeout = 30 * time.Second
)

// authPrint prints to stdout unless quiet mode is enabled.
func authPrint(format string, args ...interface{}) {
	if !rootQuiet {
		fmt.Printf(format, args...)
	}
}

// authPrintln prints a line to stdout unless quiet mode is enabled.
func authPrintln(args ...interface{}) {
	if !rootQuiet {
		fmt.Println(args...)
	}
}

// loadConfig reads the configuration file and wires the logger to the
// configured level. Logs go to stderr so stdout stays scriptable.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(rootConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), os.Stderr)
	return cfg, nil
}

// issuerKey returns the identifier for the configured authorization server.
// It names the token file and appears in user-facing messages. The issuer
// URL when known, otherwise the pinned token endpoint, which is just as
// stable.
func issuerKey(cfg config.Config) string {
	if cfg.Issuer != "" {
		return cfg.Issuer
	}
	return cfg.Endpoints.Token
}

// newTokenStore opens the file-backed token store for the configured
// issuer, honoring a token_dir override.
func newTokenStore(cfg config.Config) (*oauth.FileTokenStore, error) {
	if cfg.TokenDir != "" {
		return oauth.NewFileTokenStoreAt(cfg.TokenDir, issuerKey(cfg))
	}
	return oauth.NewFileTokenStore(issuerKey(cfg))
}

// resolveOAuthConfig builds the OAuth client configuration, running
// metadata discovery when the file configuration does not pin both
// endpoints.
func resolveOAuthConfig(ctx context.Context, cfg config.Config, redirectURI string) (oauth.Config, error) {
	ocfg := cfg.OAuthConfig(redirectURI)
	if cfg.Endpoints.IsComplete() {
		return ocfg, nil
	}

	discoverCtx, cancel := context.WithTimeout(ctx, DefaultDiscoveryTimeout)
	defer cancel()

	metadata, err := oauth.NewDiscoverer().Discover(discoverCtx, cfg.Issuer)
	if err != nil {
		return oauth.Config{}, fmt.Errorf("failed to discover endpoints for %s: %w", cfg.Issuer, err)
	}
	ocfg.FromMetadata(metadata)
	return ocfg, nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiryWithDirection formats an expiry time relative to now,
// indicating whether it is in the future or the past.
func formatExpiryWithDirection(expiresAt time.Time) string {
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	// Token is expired
	expiredAgo := -remaining
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(expiredAgo))
}
