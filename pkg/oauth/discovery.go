package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMetadataCacheTTL is the default TTL for cached server metadata.
const DefaultMetadataCacheTTL = 30 * time.Minute

// metadataCacheEntry holds cached server metadata with its timestamp.
type metadataCacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Discoverer fetches OAuth 2.0 Authorization Server Metadata (RFC 8414)
// with an OpenID Connect discovery fallback. Results are cached per issuer
// with a TTL, and concurrent fetches for the same issuer are deduplicated.
type Discoverer struct {
	httpClient *http.Client
	logger     *slog.Logger

	cacheMu sync.RWMutex
	cache   map[string]*metadataCacheEntry
	ttl     time.Duration

	group singleflight.Group
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithMetadataCacheTTL sets the metadata cache TTL.
func WithMetadataCacheTTL(ttl time.Duration) DiscovererOption {
	return func(d *Discoverer) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithMetadataHTTPClient sets a custom HTTP client for discovery requests.
func WithMetadataHTTPClient(httpClient *http.Client) DiscovererOption {
	return func(d *Discoverer) {
		if httpClient != nil {
			d.httpClient = httpClient
		}
	}
}

// WithMetadataLogger sets a custom logger.
func WithMetadataLogger(logger *slog.Logger) DiscovererOption {
	return func(d *Discoverer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDiscoverer creates a metadata discoverer.
func NewDiscoverer(opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     slog.Default(),
		cache:      make(map[string]*metadataCacheEntry),
		ttl:        DefaultMetadataCacheTTL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover fetches metadata from the issuer's well-known endpoint. It tries
// RFC 8414 (/.well-known/oauth-authorization-server) first, then falls back
// to OpenID Connect (/.well-known/openid-configuration) when the server
// answers 404.
//
// Results are cached with a TTL to reduce network requests.
func (d *Discoverer) Discover(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = strings.TrimSuffix(issuer, "/")

	// Check cache first with read lock
	d.cacheMu.RLock()
	if entry, ok := d.cache[issuer]; ok {
		if time.Since(entry.fetchedAt) < d.ttl {
			d.cacheMu.RUnlock()
			return entry.metadata, nil
		}
	}
	d.cacheMu.RUnlock()

	// Use singleflight to deduplicate concurrent fetches
	result, err, _ := d.group.Do(issuer, func() (interface{}, error) {
		// Double-check cache after winning the singleflight slot
		d.cacheMu.RLock()
		if entry, ok := d.cache[issuer]; ok {
			if time.Since(entry.fetchedAt) < d.ttl {
				d.cacheMu.RUnlock()
				return entry.metadata, nil
			}
		}
		d.cacheMu.RUnlock()

		metadata, err := d.doDiscover(ctx, issuer)
		if err != nil {
			return nil, err
		}

		d.cacheMu.Lock()
		d.cache[issuer] = &metadataCacheEntry{
			metadata:  metadata,
			fetchedAt: time.Now(),
		}
		d.cacheMu.Unlock()

		return metadata, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*Metadata), nil
}

// ClearCache drops all cached metadata. The next Discover call for any
// issuer hits the network again.
func (d *Discoverer) ClearCache() {
	d.cacheMu.Lock()
	d.cache = make(map[string]*metadataCacheEntry)
	d.cacheMu.Unlock()
}

func (d *Discoverer) doDiscover(ctx context.Context, issuer string) (*Metadata, error) {
	oauthURL := issuer + "/.well-known/oauth-authorization-server"
	metadata, status, err := d.fetchMetadata(ctx, oauthURL)
	if err == nil {
		d.logger.Debug("Discovered OAuth server metadata", "issuer", issuer, "url", oauthURL)
		return metadata, nil
	}
	if status != http.StatusNotFound {
		return nil, fmt.Errorf("metadata discovery failed for %s: %w", issuer, err)
	}

	// RFC 8414 path not served, try OpenID Connect discovery
	oidcURL := issuer + "/.well-known/openid-configuration"
	metadata, _, err = d.fetchMetadata(ctx, oidcURL)
	if err != nil {
		return nil, fmt.Errorf("metadata discovery failed for %s: %w", issuer, err)
	}

	d.logger.Debug("Discovered OIDC server metadata", "issuer", issuer, "url", oidcURL)
	return metadata, nil
}

// fetchMetadata retrieves and validates metadata from one well-known URL.
// The returned status is nonzero when the server answered with an HTTP
// error.
func (d *Discoverer) fetchMetadata(ctx context.Context, wellKnownURL string) (*Metadata, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("metadata request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("metadata endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read metadata response: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, 0, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if metadata.AuthorizationEndpoint == "" || metadata.TokenEndpoint == "" {
		return nil, 0, fmt.Errorf("metadata from %s is missing required endpoints", wellKnownURL)
	}

	return &metadata, 0, nil
}
