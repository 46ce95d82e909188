package oauth

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func (r *StateRegistry) pendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func TestStateRegistry_IssueAndConsume(t *testing.T) {
	r := NewStateRegistry()

	attempt, err := r.Issue("verifier-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if attempt.State == "" || attempt.Nonce == "" {
		t.Fatalf("Issue() returned empty state or nonce: %+v", attempt)
	}
	if attempt.ID == "" {
		t.Error("Issue() returned empty attempt ID")
	}
	if attempt.CodeVerifier != "verifier-123" {
		t.Errorf("CodeVerifier = %q, want the bound verifier", attempt.CodeVerifier)
	}

	got, err := r.Consume(attempt.State)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if got.ID != attempt.ID {
		t.Errorf("Consume() returned attempt %s, want %s", got.ID, attempt.ID)
	}
	if got.CodeVerifier != "verifier-123" {
		t.Errorf("consumed CodeVerifier = %q", got.CodeVerifier)
	}

	if n := r.pendingCount(); n != 0 {
		t.Errorf("pending entries = %d after consume, want 0", n)
	}
}

func TestStateRegistry_UnknownState(t *testing.T) {
	r := NewStateRegistry()

	_, err := r.Consume("never-issued")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Consume() error = %v, want ErrInvalidState", err)
	}
}

func TestStateRegistry_SingleUse(t *testing.T) {
	r := NewStateRegistry()

	attempt, err := r.Issue("")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := r.Consume(attempt.State); err != nil {
		t.Fatalf("first Consume() error = %v", err)
	}
	if _, err := r.Consume(attempt.State); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Consume() error = %v, want ErrInvalidState", err)
	}
}

func TestStateRegistry_Expiry(t *testing.T) {
	clock := newFakeClock()
	r := newStateRegistry(5*time.Minute, clock)

	attempt, err := r.Issue("")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(5*time.Minute + time.Second)

	_, err = r.Consume(attempt.State)
	if !errors.Is(err, ErrStateExpired) {
		t.Fatalf("Consume() error = %v, want ErrStateExpired", err)
	}

	// The expired entry was removed, so a replay is indistinguishable from
	// a forged state.
	_, err = r.Consume(attempt.State)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("replayed Consume() error = %v, want ErrInvalidState", err)
	}
}

func TestStateRegistry_ConsumeJustBeforeExpiry(t *testing.T) {
	clock := newFakeClock()
	r := newStateRegistry(5*time.Minute, clock)

	attempt, err := r.Issue("")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(5*time.Minute - time.Second)

	if _, err := r.Consume(attempt.State); err != nil {
		t.Fatalf("Consume() just before expiry error = %v", err)
	}
}

func TestStateRegistry_LazyPurge(t *testing.T) {
	clock := newFakeClock()
	r := newStateRegistry(5*time.Minute, clock)

	for i := 0; i < 3; i++ {
		if _, err := r.Issue(""); err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
	}
	if n := r.pendingCount(); n != 3 {
		t.Fatalf("pending entries = %d, want 3", n)
	}

	clock.Advance(6 * time.Minute)

	// The next Issue purges the three stale entries.
	if _, err := r.Issue(""); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if n := r.pendingCount(); n != 1 {
		t.Errorf("pending entries = %d after lazy purge, want 1", n)
	}
}

func TestStateRegistry_ConcurrentConsume(t *testing.T) {
	r := NewStateRegistry()

	attempt, err := r.Issue("")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	const workers = 20
	var successes int32
	var invalid int32

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer done.Done()
			start.Wait()
			_, err := r.Consume(attempt.State)
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, ErrInvalidState):
				atomic.AddInt32(&invalid, 1)
			default:
				t.Errorf("Consume() error = %v", err)
			}
		}()
	}
	start.Done()
	done.Wait()

	if successes != 1 {
		t.Errorf("successful consumes = %d, want exactly 1", successes)
	}
	if invalid != workers-1 {
		t.Errorf("ErrInvalidState count = %d, want %d", invalid, workers-1)
	}
}

func TestStateRegistry_DistinctValues(t *testing.T) {
	r := NewStateRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		attempt, err := r.Issue("")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if seen[attempt.State] {
			t.Fatal("Issue() produced a duplicate state value")
		}
		seen[attempt.State] = true
	}
}
