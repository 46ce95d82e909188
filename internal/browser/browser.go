package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// launcher starts the prepared command. Tests swap it out so they can
// exercise Open without actually opening a browser.
var launcher = func(cmd *exec.Cmd) error {
	return cmd.Start()
}

// Open opens the given URL in the default web browser. It supports
// Linux, macOS, and Windows. Only http and https URLs are accepted;
// other schemes could invoke arbitrary protocol handlers.
func Open(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q: only http and https are supported", parsed.Scheme)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", rawURL)
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", rawURL)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	// Start the command but don't wait for it to complete.
	// The browser keeps running on its own.
	if err := launcher(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
