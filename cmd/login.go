package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"tokenward/internal/browser"
	"tokenward/internal/callback"
	"tokenward/internal/cli"
	"tokenward/pkg/oauth"
)

var (
	loginNoBrowser bool
	loginTimeout   time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate to the configured authorization server",
	Long: `Authenticate using the OAuth 2.0 authorization code flow with PKCE.

This command starts a loopback callback listener, opens your browser at
the authorization URL, waits for the redirect, and exchanges the returned
code for tokens. The refresh token is persisted under
~/.config/tokenward/tokens; access tokens stay in memory only and are
gone when the process exits.

Examples:
  tokenward login               # Browser-based login
  tokenward login --no-browser  # Print the URL instead of opening a browser
  tokenward login --timeout 2m  # Bound the wait for the callback`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", callback.DefaultTimeout, "Maximum time to wait for the authorization callback")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	issuer := issuerKey(cfg)

	// The listener starts first: its bound port determines the redirect
	// URI that goes into the authorization request.
	server := callback.NewServer(cfg.Callback.Port, cfg.Callback.Path)
	redirectURI, err := server.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}
	defer server.Stop()

	ocfg, err := resolveOAuthConfig(ctx, cfg, redirectURI)
	if err != nil {
		return err
	}

	store, err := newTokenStore(cfg)
	if err != nil {
		return err
	}

	client, err := oauth.NewClient(ocfg, store)
	if err != nil {
		return err
	}

	authURL, _, err := client.AuthorizationURLWithPKCE()
	if err != nil {
		return &cli.AuthFailedError{Issuer: issuer, Reason: err}
	}

	if loginNoBrowser {
		authPrintln("Open this URL in your browser to authenticate:")
		authPrint("\n  %s\n\n", authURL)
	} else {
		authPrintln("Opening browser for authentication...")
		if err := browser.Open(authURL); err != nil {
			authPrintln("Could not open browser automatically.")
			authPrint("\nPlease open this URL in your browser:\n  %s\n\n", authURL)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	var s *spinner.Spinner
	if !rootQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Waiting for authorization..."
		s.Start()
	}

	result, err := server.Wait(waitCtx)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &cli.AuthFailedError{
				Issuer: issuer,
				Reason: fmt.Errorf("timed out after %s waiting for the authorization callback", loginTimeout),
			}
		}
		return &cli.AuthFailedError{Issuer: issuer, Reason: err}
	}

	if result.IsError() {
		return &cli.AuthFailedError{
			Issuer: issuer,
			Reason: fmt.Errorf("authorization server returned %s: %s", result.Error, result.ErrorDescription),
		}
	}

	if err := client.ExchangeCode(ctx, result.Code, result.State); err != nil {
		return &cli.AuthFailedError{Issuer: issuer, Reason: err}
	}

	authPrint("%s Authenticated to %s\n", text.FgGreen.Sprint("✓"), issuer)
	if tok, ok := client.CurrentToken(); ok && !tok.ExpiresAt.IsZero() {
		authPrint("  Access token expires %s\n", formatExpiryWithDirection(tok.ExpiresAt))
		if tok.RefreshToken == "" {
			authPrint("  %s\n", text.FgYellow.Sprint("No refresh token granted; re-login needed on expiry"))
		}
	}
	return nil
}
