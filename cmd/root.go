package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tokenward/internal/cli"
	"tokenward/internal/config"
	"tokenward/pkg/oauth"
)

// Exit codes used by tokenward commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required or expired.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates an authentication attempt failed.
	ExitCodeAuthFailed = 3
)

var (
	rootConfigPath string
	rootQuiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "tokenward",
	Short: "Manage OAuth tokens for command-line workflows",
	Long: `tokenward manages the OAuth 2.0 authorization code lifecycle for
command-line tools: browser-based login with PKCE, durable refresh-token
storage, automatic access-token renewal, and clean logout.

Access tokens are held in memory only. The file under
~/.config/tokenward/tokens holds just the refresh token and grant
metadata, so a leaked file never exposes a live bearer credential.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Path to the tokenward configuration directory")
	rootCmd.PersistentFlags().BoolVarP(&rootQuiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.AddCommand(newVersionCmd())
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the root command.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits the process with a code that
// reflects the failure class: 2 when authentication is required, 3 when an
// authentication attempt failed, 1 otherwise.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "tokenward version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps an error to the appropriate exit code.
func getExitCode(err error) int {
	var authRequiredErr *cli.AuthRequiredError
	if errors.As(err, &authRequiredErr) {
		return ExitCodeAuthRequired
	}

	var authExpiredErr *cli.AuthExpiredError
	if errors.As(err, &authExpiredErr) {
		return ExitCodeAuthRequired
	}

	var authFailedErr *cli.AuthFailedError
	if errors.As(err, &authFailedErr) {
		return ExitCodeAuthFailed
	}

	// 401-shaped errors from the token layer mean the stored grant is no
	// longer usable and a fresh login is needed.
	if oauth.IsAuthError(err) {
		return ExitCodeAuthRequired
	}

	return ExitCodeError
}
