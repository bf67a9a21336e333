package resolver

import (
	"context"
	"net/http"

	"github.com/agent-matrix/a2a-validator/internal/config"
)

// DirectSource is the lenient resolution path: any JSON object that
// structurally looks like a card is accepted as-is, leaving every schema
// judgment to the validator. This is the fallback when strict decoding is
// unavailable or fails.
type DirectSource struct {
	f fetcher
}

// NewDirectSource creates the lenient card source.
func NewDirectSource(cfg config.Resolver) *DirectSource {
	return &DirectSource{f: newFetcher(cfg)}
}

// Resolve implements Source.
func (s *DirectSource) Resolve(ctx context.Context, normURL string, headers http.Header) (*Resolved, error) {
	return resolveRaw(ctx, s.f, normURL, headers)
}
