package oauth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tokenward/pkg/logging"
)

// stateTTL is how long an issued authorization attempt stays redeemable.
// Five minutes comfortably covers a user completing a browser login while
// keeping the replay window short.
const stateTTL = 5 * time.Minute

// StateRegistry tracks in-flight authorization attempts keyed by their state
// value. Every lookup consumes the entry, so a state value can never be
// redeemed twice. Expired entries are purged lazily on each Issue call; the
// registry runs no background goroutine.
//
// All methods are safe for concurrent use.
type StateRegistry struct {
	mu      sync.Mutex
	entries map[string]*OAuthState
	ttl     time.Duration
	clock   Clock
}

// NewStateRegistry creates an empty registry with the default TTL.
func NewStateRegistry() *StateRegistry {
	return newStateRegistry(stateTTL, SystemClock())
}

func newStateRegistry(ttl time.Duration, clock Clock) *StateRegistry {
	if ttl <= 0 {
		ttl = stateTTL
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &StateRegistry{
		entries: make(map[string]*OAuthState),
		ttl:     ttl,
		clock:   clock,
	}
}

// Issue creates a new authorization attempt with fresh state and nonce
// values and registers it. The codeVerifier is bound to the attempt here,
// at issuance, so Consume hands back everything the code exchange needs.
//
// Issue also purges expired attempts, so abandoned logins cannot accumulate.
func (r *StateRegistry) Issue(codeVerifier string) (*OAuthState, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	attempt := &OAuthState{
		ID:           uuid.New().String(),
		State:        state,
		Nonce:        nonce,
		CodeVerifier: codeVerifier,
		CreatedAt:    r.clock.Now(),
	}

	r.mu.Lock()
	r.purgeExpiredLocked(attempt.CreatedAt)
	r.entries[state] = attempt
	pending := len(r.entries)
	r.mu.Unlock()

	logging.Debug("OAuth", "Issued authorization attempt %s (%d pending)", attempt.ID, pending)
	return attempt, nil
}

// Consume atomically looks up and removes the attempt for a state value.
//
// An unknown state returns ErrInvalidState. A known but expired state
// returns ErrStateExpired; the entry is removed in that case too, so a
// second redemption of an expired state reports ErrInvalidState like any
// other unknown value.
func (r *StateRegistry) Consume(state string) (*OAuthState, error) {
	r.mu.Lock()
	attempt, ok := r.entries[state]
	if ok {
		delete(r.entries, state)
	}
	r.mu.Unlock()

	if !ok {
		// The state value itself is a secret, never logged.
		logging.Warn("OAuth", "State validation failed: unknown state")
		return nil, ErrInvalidState
	}

	if r.clock.Now().Sub(attempt.CreatedAt) > r.ttl {
		logging.Warn("OAuth", "State validation failed: attempt %s expired", attempt.ID)
		return nil, ErrStateExpired
	}

	logging.Debug("OAuth", "Consumed authorization attempt %s", attempt.ID)
	return attempt, nil
}

// purgeExpiredLocked removes all entries older than the TTL. Caller holds mu.
func (r *StateRegistry) purgeExpiredLocked(now time.Time) {
	for state, attempt := range r.entries {
		if now.Sub(attempt.CreatedAt) > r.ttl {
			delete(r.entries, state)
		}
	}
}
