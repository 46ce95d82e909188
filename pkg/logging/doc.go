// Package logging provides structured logging for tokenward with unified
// log handling and level filtering.
//
// The package is a thin layer over Go's standard slog: Init installs a
// text handler on a chosen writer, and the level functions tag every
// entry with a subsystem for filtering.
//
// # Usage
//
//	import "tokenward/pkg/logging"
//
//	// Initialize with Info level logging to stderr
//	logging.Init(logging.LevelInfo, os.Stderr)
//
//	// Log messages
//	logging.Info("ConfigLoader", "Loaded configuration from %s", configPath)
//	logging.Debug("OAuth", "Issued authorization attempt %s", attemptID)
//	logging.Warn("OAuth", "State validation failed: unknown state")
//	logging.Error("TokenWatcher", err, "fsnotify error")
//
// Error takes the error as its own argument so it lands in a structured
// attribute rather than being flattened into the message.
//
// # Subsystem Organization
//
// Logs are tagged by subsystem to enable filtering:
//
//   - ConfigLoader: configuration loading and validation
//   - OAuth: authorization attempt issuance and consumption
//   - TokenWatcher: token file change detection
//
// The OAuth client, dispatcher, and discoverer take a *slog.Logger and
// default to slog.Default, which Init configures. The token store emits
// its audit events through the global slog functions, so all entries
// land on the same handler.
//
// # Security Audit Events
//
// Token lifecycle transitions (grant persisted, refresh rotated, tokens
// cleared) are logged at Info with a SECURITY_AUDIT marker so they can be
// picked out by log aggregation. Token values never appear in log output
// at any level.
//
// Before Init is called, all log calls are silently dropped. Callers that
// need the slog.Logger itself (for handing to libraries) use Default().
package logging
