package oauth

import (
	"fmt"
	"sync"
)

// TokenStore persists token projections across process restarts.
//
// A store holds at most one projection. Implementations must be safe for
// concurrent use and must never be handed a live access token; the Client
// only passes projections.
type TokenStore interface {
	// Save replaces the stored projection.
	Save(projection *TokenProjection) error

	// Load returns the stored projection, or (nil, nil) when none exists.
	Load() (*TokenProjection, error)

	// Clear removes the stored projection. Clearing an empty store is not
	// an error.
	Clear() error
}

// MemoryTokenStore is a TokenStore backed by process memory. Useful for
// tests and for callers that do not want tokens to outlive the process.
type MemoryTokenStore struct {
	mu         sync.RWMutex
	projection *TokenProjection
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Save replaces the stored projection with a copy.
func (s *MemoryTokenStore) Save(projection *TokenProjection) error {
	if projection == nil {
		return fmt.Errorf("cannot save nil projection")
	}

	copied := *projection
	s.mu.Lock()
	s.projection = &copied
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the stored projection, or nil when empty. Copying
// keeps the caller from mutating store internals.
func (s *MemoryTokenStore) Load() (*TokenProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.projection == nil {
		return nil, nil
	}
	copied := *s.projection
	return &copied, nil
}

// Clear removes the stored projection.
func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	s.projection = nil
	s.mu.Unlock()
	return nil
}
