package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tokenward/pkg/oauth"
)

var logoutRevoke bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored token relationship",
	Long: `Clear stored OAuth tokens for the configured authorization server.

By default only local state is removed: the persisted refresh token is
deleted and the next authenticated operation will require a fresh login.
With --revoke, the refresh token is first revoked at the authorization
server so the grant is invalidated there as well. Revocation is
best-effort; local state is cleared even when the server cannot be
reached.

Examples:
  tokenward logout           # Local clear only
  tokenward logout --revoke  # Revoke at the server, then clear`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().BoolVar(&logoutRevoke, "revoke", false, "Revoke the refresh token at the authorization server before clearing")
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if issuerKey(cfg) == "" {
		return fmt.Errorf("no issuer or token endpoint configured in %s", rootConfigPath)
	}

	store, err := newTokenStore(cfg)
	if err != nil {
		return err
	}

	if !logoutRevoke {
		// Local clear only, no network involved.
		if err := store.Clear(); err != nil {
			return fmt.Errorf("failed to clear stored tokens: %w", err)
		}
		authPrint("Logged out from %s\n", issuerKey(cfg))
		return nil
	}

	// Revocation needs a full client: resolved endpoints plus the stored
	// refresh token.
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), DefaultRevokeTimeout)
	defer cancel()

	ocfg, err := resolveOAuthConfig(ctx, cfg, cfg.Callback.RedirectURI())
	if err != nil {
		return err
	}

	client, err := oauth.NewClient(ocfg, store)
	if err != nil {
		return err
	}

	if err := client.Revoke(ctx); err != nil {
		return fmt.Errorf("failed to clear stored tokens: %w", err)
	}

	authPrint("Revoked and logged out from %s\n", issuerKey(cfg))
	return nil
}
