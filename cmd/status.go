package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"tokenward/internal/cli"
	"tokenward/internal/config"
	"tokenward/internal/tokenwatch"
	"tokenward/pkg/oauth"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current authentication status",
	Long: `Show the authentication status for the configured authorization server.

This command reports whether a token relationship exists, when the access
token expires, and whether a refresh token is available for automatic
renewal. It reads only local state and never contacts the authorization
server.

The exit code reflects the state: 0 when authenticated, 2 when not.

Examples:
  tokenward status          # Show current status
  tokenward status --watch  # Reprint whenever the token file changes
  tokenward status --quiet  # Exit code only, no output`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Watch the token file and reprint the status on changes")
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	if !statusWatch {
		err := printStatus(store, cfg)
		if isAuthStateError(err) {
			// The status block already told the user what to do; the
			// exit code carries the state for scripts.
			cmd.SilenceErrors = true
		}
		return err
	}

	return watchStatus(cmd, store, cfg)
}

// watchStatus reprints the status whenever the token file changes, until
// the command is interrupted. State changes are expected here, so they are
// not treated as errors.
func watchStatus(cmd *cobra.Command, store *oauth.FileTokenStore, cfg config.Config) error {
	if err := printStatus(store, cfg); err != nil && !isAuthStateError(err) {
		return err
	}

	changes := make(chan struct{}, 1)
	watcher, err := tokenwatch.NewWatcher(tokenwatch.WatcherConfig{
		Path: store.Path(),
		OnChange: func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to watch %s: %w", store.Path(), err)
	}
	defer watcher.Stop()

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			authPrintln()
			if err := printStatus(store, cfg); err != nil && !isAuthStateError(err) {
				return err
			}
		}
	}
}

// printStatus prints the status block for the stored token relationship.
// It returns an AuthRequiredError or AuthExpiredError when the state
// warrants a nonzero exit, and a plain error only for real failures.
func printStatus(store oauth.TokenStore, cfg config.Config) error {
	issuer := issuerKey(cfg)

	projection, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to read token state: %w", err)
	}

	authPrintln("Authorization Server")
	authPrint("  Issuer:    %s\n", issuer)

	if projection == nil {
		authPrint("  Status:    %s\n", text.FgYellow.Sprint("Not authenticated"))
		authPrint("             Run: tokenward login\n")
		return &cli.AuthRequiredError{Issuer: issuer}
	}

	expired := !projection.ExpiresAt.IsZero() && time.Now().After(projection.ExpiresAt)

	if expired && projection.RefreshToken == "" {
		authPrint("  Status:    %s\n", text.FgRed.Sprint("Expired"))
		authPrint("  Expires:   %s\n", formatExpiryWithDirection(projection.ExpiresAt))
		authPrint("             Run: tokenward login\n")
		return &cli.AuthExpiredError{Issuer: issuer}
	}

	authPrint("  Status:    %s\n", text.FgGreen.Sprint("Authenticated"))
	if !projection.ExpiresAt.IsZero() {
		authPrint("  Expires:   %s\n", formatExpiryWithDirection(projection.ExpiresAt))
	}
	if projection.RefreshToken != "" {
		authPrint("  Refresh:   %s\n", text.FgGreen.Sprint("Available"))
	} else {
		authPrint("  Refresh:   %s\n", text.FgYellow.Sprint("Not available (re-auth required on expiry)"))
	}
	if projection.Scope != "" {
		authPrint("  Scope:     %s\n", projection.Scope)
	}
	if !projection.GrantedAt.IsZero() {
		authPrint("  Granted:   %s\n", projection.GrantedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

// isAuthStateError reports whether err describes the authentication state
// rather than a failure to determine it.
func isAuthStateError(err error) bool {
	var requiredErr *cli.AuthRequiredError
	var expiredErr *cli.AuthExpiredError
	return errors.As(err, &requiredErr) || errors.As(err, &expiredErr)
}
