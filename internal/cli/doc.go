// Package cli provides shared error types for the tokenward command-line
// interface.
//
// The error types here carry enough context to print actionable guidance
// and to map failures onto process exit codes: authentication-required
// conditions exit with code 2, failed authentication attempts with code 3.
package cli
