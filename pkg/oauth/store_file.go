package oauth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// tokenDirPerm restricts the token directory to the owner.
	tokenDirPerm = 0700

	// tokenFilePerm restricts token files to the owner.
	tokenFilePerm = 0600
)

// FileTokenStore is a TokenStore that persists one projection per issuer
// under the user's config directory. Files are owner-readable only and
// contain the projection as indented JSON.
type FileTokenStore struct {
	mu     sync.Mutex
	dir    string
	issuer string
	path   string
}

// NewFileTokenStore creates a store for the given issuer rooted at the
// default directory (~/.config/tokenward/tokens).
func NewFileTokenStore(issuer string) (*FileTokenStore, error) {
	dir, err := DefaultTokenDir()
	if err != nil {
		return nil, err
	}
	return NewFileTokenStoreAt(dir, issuer)
}

// NewFileTokenStoreAt creates a store for the given issuer rooted at an
// explicit directory.
func NewFileTokenStoreAt(dir, issuer string) (*FileTokenStore, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	return &FileTokenStore{
		dir:    dir,
		issuer: issuer,
		path:   filepath.Join(dir, tokenKey(issuer)+".json"),
	}, nil
}

// DefaultTokenDir returns the default token directory.
func DefaultTokenDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tokenward", "tokens"), nil
}

// Path returns the file this store reads and writes. Watchers use it to
// observe token changes made by other processes.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Save writes the projection to disk with owner-only permissions.
func (s *FileTokenStore) Save(projection *TokenProjection) error {
	if projection == nil {
		return fmt.Errorf("cannot save nil projection")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, tokenDirPerm); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(projection, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token projection: %w", err)
	}

	if err := os.WriteFile(s.path, data, tokenFilePerm); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	slog.Info("SECURITY_AUDIT",
		"event", "token_stored",
		"issuer", s.issuer,
		"expires_at", projection.ExpiresAt.Format(time.RFC3339),
	)
	return nil
}

// Load reads the projection from disk. A missing file yields (nil, nil).
func (s *FileTokenStore) Load() (*TokenProjection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var projection TokenProjection
	if err := json.Unmarshal(data, &projection); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}

	slog.Info("SECURITY_AUDIT",
		"event", "token_accessed",
		"issuer", s.issuer,
	)
	return &projection, nil
}

// Clear removes the token file. A missing file is not an error.
func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to remove token file: %w", err)
	}

	slog.Info("SECURITY_AUDIT",
		"event", "token_cleared",
		"issuer", s.issuer,
	)
	return nil
}

// tokenKey derives a filesystem-safe key from an issuer URL. The first 16
// bytes of the SHA256 hash are enough to avoid collisions between issuers
// while keeping filenames short.
func tokenKey(issuer string) string {
	sum := sha256.Sum256([]byte(issuer))
	return hex.EncodeToString(sum[:16])
}
