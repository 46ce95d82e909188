package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDiscover(t *testing.T) {
	t.Run("discovers via RFC 8414 endpoint", func(t *testing.T) {
		metadata := &Metadata{
			Issuer:                "https://issuer.example.com",
			AuthorizationEndpoint: "https://issuer.example.com/authorize",
			TokenEndpoint:         "https://issuer.example.com/token",
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/.well-known/oauth-authorization-server" {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(metadata)
				return
			}
			http.NotFound(w, r)
		}))
		defer server.Close()

		d := NewDiscoverer(WithMetadataHTTPClient(server.Client()))
		result, err := d.Discover(context.Background(), server.URL)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Issuer != metadata.Issuer {
			t.Errorf("expected issuer %s, got %s", metadata.Issuer, result.Issuer)
		}
		if result.AuthorizationEndpoint != metadata.AuthorizationEndpoint {
			t.Errorf("expected auth endpoint %s, got %s", metadata.AuthorizationEndpoint, result.AuthorizationEndpoint)
		}
	})

	t.Run("falls back to OIDC endpoint", func(t *testing.T) {
		metadata := &Metadata{
			Issuer:                "https://issuer.example.com",
			AuthorizationEndpoint: "https://issuer.example.com/authorize",
			TokenEndpoint:         "https://issuer.example.com/token",
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/.well-known/openid-configuration" {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(metadata)
				return
			}
			// RFC 8414 endpoint returns 404
			http.NotFound(w, r)
		}))
		defer server.Close()

		d := NewDiscoverer(WithMetadataHTTPClient(server.Client()))
		result, err := d.Discover(context.Background(), server.URL)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Issuer != metadata.Issuer {
			t.Errorf("expected issuer %s, got %s", metadata.Issuer, result.Issuer)
		}
	})

	t.Run("returns error when both endpoints fail", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer server.Close()

		d := NewDiscoverer(WithMetadataHTTPClient(server.Client()))
		_, err := d.Discover(context.Background(), server.URL)

		if err == nil {
			t.Error("expected error when discovery fails")
		}
	})

	t.Run("rejects metadata without endpoints", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"issuer": "https://issuer.example.com"}`))
		}))
		defer server.Close()

		d := NewDiscoverer(WithMetadataHTTPClient(server.Client()))
		_, err := d.Discover(context.Background(), server.URL)

		if err == nil {
			t.Error("expected error for metadata missing required endpoints")
		}
	})

	t.Run("caches metadata", func(t *testing.T) {
		var callCount int32
		metadata := &Metadata{
			Issuer:                "https://issuer.example.com",
			AuthorizationEndpoint: "https://issuer.example.com/authorize",
			TokenEndpoint:         "https://issuer.example.com/token",
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&callCount, 1)
			if r.URL.Path == "/.well-known/oauth-authorization-server" {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(metadata)
				return
			}
			http.NotFound(w, r)
		}))
		defer server.Close()

		d := NewDiscoverer(WithMetadataHTTPClient(server.Client()))

		// First call should hit the server
		_, err := d.Discover(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Second call should use cache
		_, err = d.Discover(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if atomic.LoadInt32(&callCount) != 1 {
			t.Errorf("expected 1 server call (cached), got %d", callCount)
		}
	})

	t.Run("deduplicates concurrent requests", func(t *testing.T) {
		var callCount int32
		metadata := &Metadata{
			Issuer:                "https://issuer.example.com",
			AuthorizationEndpoint: "https://issuer.example.com/authorize",
			TokenEndpoint:         "https://issuer.example.com/token",
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Add a small delay to ensure concurrent requests overlap
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&callCount, 1)
			if r.URL.Path == "/.well-known/oauth-authorization-server" {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(metadata)
				return
			}
			http.NotFound(w, r)
		}))
		defer server.Close()

		d := NewDiscoverer(WithMetadataHTTPClient(server.Client()))

		// Make concurrent requests
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = d.Discover(context.Background(), server.URL)
			}()
		}
		wg.Wait()

		// With singleflight, only 1 request should be made
		if atomic.LoadInt32(&callCount) != 1 {
			t.Errorf("expected 1 server call (singleflight), got %d", callCount)
		}
	})

	t.Run("strips trailing slash from issuer", func(t *testing.T) {
		metadata := &Metadata{
			Issuer:                "https://issuer.example.com",
			AuthorizationEndpoint: "https://issuer.example.com/authorize",
			TokenEndpoint:         "https://issuer.example.com/token",
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/.well-known/oauth-authorization-server" {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(metadata)
				return
			}
			http.NotFound(w, r)
		}))
		defer server.Close()

		d := NewDiscoverer(WithMetadataHTTPClient(server.Client()))
		// Pass URL with trailing slash
		_, err := d.Discover(context.Background(), server.URL+"/")

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestClearCache(t *testing.T) {
	metadata := &Metadata{
		Issuer:                "https://issuer.example.com",
		AuthorizationEndpoint: "https://issuer.example.com/authorize",
		TokenEndpoint:         "https://issuer.example.com/token",
	}

	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
		if r.URL.Path == "/.well-known/oauth-authorization-server" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(metadata)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	d := NewDiscoverer(WithMetadataHTTPClient(server.Client()))

	// First call
	_, err := d.Discover(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second call (should be cached)
	_, err = d.Discover(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if atomic.LoadInt32(&callCount) != 1 {
		t.Errorf("expected 1 call before cache clear, got %d", callCount)
	}

	// Clear cache
	d.ClearCache()

	// Third call (cache cleared, should hit server)
	_, err = d.Discover(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if atomic.LoadInt32(&callCount) != 2 {
		t.Errorf("expected 2 calls after cache clear, got %d", callCount)
	}
}

func TestMetadataCacheExpiry(t *testing.T) {
	metadata := &Metadata{
		Issuer:                "https://issuer.example.com",
		AuthorizationEndpoint: "https://issuer.example.com/authorize",
		TokenEndpoint:         "https://issuer.example.com/token",
	}

	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
		if r.URL.Path == "/.well-known/oauth-authorization-server" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(metadata)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	// Use very short TTL for testing
	d := NewDiscoverer(
		WithMetadataHTTPClient(server.Client()),
		WithMetadataCacheTTL(50*time.Millisecond),
	)

	// First call
	_, err := d.Discover(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Wait for cache to expire
	time.Sleep(100 * time.Millisecond)

	// Second call (cache expired)
	_, err = d.Discover(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if atomic.LoadInt32(&callCount) != 2 {
		t.Errorf("expected 2 calls after cache expiry, got %d", callCount)
	}
}
