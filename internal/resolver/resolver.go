// Package resolver produces a best-effort absolute Agent Card document from
// a user-supplied URL. Resolution is polymorphic over two card sources: the
// strict source decodes into the canonical A2A schema, the direct source
// accepts any JSON that structurally looks like a card. Results for bare
// URLs are cached and concurrent resolutions of the same URL are collapsed.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/a2aproject/a2a-go/a2a"
)

// Resolved is an immutable resolution result. Re-resolving a URL replaces
// the whole value; there are no partial updates.
type Resolved struct {
	Card map[string]any  `json:"card"` // raw card object, input to the validator
	Raw  json.RawMessage `json:"raw"`  // exact payload as fetched
	URL  string          `json:"url"`  // effective URL the card was served from

	// Typed is the card decoded against the A2A SDK schema. Only the strict
	// source sets it; the lenient path leaves it nil.
	Typed *a2a.AgentCard `json:"typed,omitempty"`
}

// Endpoint returns the URL live messages should be dispatched to: the
// card's own url field when present, else the URL the card came from.
func (r *Resolved) Endpoint() string {
	if r.Typed != nil && r.Typed.URL != "" {
		return r.Typed.URL
	}
	if u, ok := r.Card["url"].(string); ok && u != "" {
		return u
	}
	return r.URL
}

// Streaming reports whether the card declares SSE streaming support.
func (r *Resolved) Streaming() bool {
	if r.Typed != nil {
		return r.Typed.Capabilities.Streaming
	}
	caps, ok := r.Card["capabilities"].(map[string]any)
	if !ok {
		return false
	}
	streaming, _ := caps["streaming"].(bool)
	return streaming
}

// Source resolves a normalized agent URL into a card. Implementations must
// converge on the same Resolved shape so the validator sees one input type.
type Source interface {
	Resolve(ctx context.Context, normURL string, headers http.Header) (*Resolved, error)
}

// Cache stores serialized resolution results. Implemented by the ristretto
// adapter; a nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Resolver normalizes user input, consults the cache, and delegates to its
// Source with concurrent lookups of the same URL collapsed into one probe
// sequence.
type Resolver struct {
	src   Source
	cache Cache
	ttl   time.Duration
	group singleflight.Group
}

// New creates a Resolver around src. cache may be nil.
func New(src Source, cache Cache, ttl time.Duration) *Resolver {
	return &Resolver{src: src, cache: cache, ttl: ttl}
}

// Resolve fetches and normalizes the Agent Card for rawURL. Requests with
// custom headers bypass both the cache and request collapsing, since the
// target may vary its response on them.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, headers map[string]string) (*Resolved, error) {
	norm, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, &ResolutionError{Reason: err.Error()}
	}

	hdr := make(http.Header, len(headers))
	for name, value := range headers {
		hdr.Set(name, value)
	}

	// Custom headers can change what the target serves, so header-carrying
	// lookups bypass the cache and never collapse into a probe issued with
	// another caller's headers.
	if len(headers) > 0 {
		return r.src.Resolve(ctx, norm, hdr)
	}

	cacheable := r.cache != nil
	if cacheable {
		if data, ok, err := r.cache.Get(ctx, norm); err == nil && ok {
			var cached Resolved
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	res, err, _ := r.group.Do(norm, func() (any, error) {
		return r.src.Resolve(ctx, norm, hdr)
	})
	if err != nil {
		return nil, err
	}
	resolved := res.(*Resolved)

	if cacheable {
		if data, err := json.Marshal(resolved); err == nil {
			_ = r.cache.Set(ctx, norm, data, r.ttl)
		}
	}
	return resolved, nil
}

// NormalizeURL trims the input, defaults a missing scheme to http, and
// rejects anything that is not an absolute http(s) URL.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("agent URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid agent URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("agent URL %q has no host", raw)
	}
	return u.String(), nil
}
