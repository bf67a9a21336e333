package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/agent-matrix/a2a-validator/internal/config"
)

// SDKSource is the strict resolution path: the fetched document must decode
// against the canonical A2A SDK card schema. The typed card is kept on the
// result so the session layer can read transport hints from it.
type SDKSource struct {
	f fetcher
}

// NewSDKSource creates the strict card source.
func NewSDKSource(cfg config.Resolver) *SDKSource {
	return &SDKSource{f: newFetcher(cfg)}
}

// Resolve implements Source.
func (s *SDKSource) Resolve(ctx context.Context, normURL string, headers http.Header) (*Resolved, error) {
	res, err := resolveRaw(ctx, s.f, normURL, headers)
	if err != nil {
		return nil, err
	}

	var card a2a.AgentCard
	if err := json.Unmarshal(res.Raw, &card); err != nil {
		return nil, &ResolutionError{
			Reason: fmt.Sprintf("agent card at %s does not decode against the A2A schema: %v", res.URL, err),
			err:    err,
		}
	}
	if card.Name == "" || card.URL == "" {
		return nil, &ResolutionError{
			Reason: fmt.Sprintf("agent card at %s is missing name or url", res.URL),
		}
	}

	res.Typed = &card
	return res, nil
}

// FallbackSource tries the strict source first and falls back to the
// lenient one, mirroring "prefer the SDK, degrade to manual probing".
// Both legs see the same URL and headers.
type FallbackSource struct {
	primary   Source
	secondary Source
}

// Resolve implements Source.
func (s *FallbackSource) Resolve(ctx context.Context, normURL string, headers http.Header) (*Resolved, error) {
	res, err := s.primary.Resolve(ctx, normURL, headers)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	slog.Debug("strict card resolution failed, falling back", "url", normURL, "error", err)
	return s.secondary.Resolve(ctx, normURL, headers)
}

// ForMode builds the Source configured by resolver.mode.
func ForMode(cfg config.Resolver) Source {
	switch cfg.Mode {
	case "sdk":
		return NewSDKSource(cfg)
	case "direct":
		return NewDirectSource(cfg)
	default:
		return &FallbackSource{
			primary:   NewSDKSource(cfg),
			secondary: NewDirectSource(cfg),
		}
	}
}
