package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/agent-matrix/a2a-validator/internal/config"
)

// wellKnownPaths are the conventional card locations probed, in order,
// when the URL the user pasted does not serve a card directly.
var wellKnownPaths = []string{
	"/.well-known/agent.json",
	"/.well-known/agent-card.json",
	"/agent.json",
}

// maxCardBytes bounds how much of a candidate response is read.
const maxCardBytes = 2 << 20

// fetcher issues bounded card probes: one overall timeout per candidate URL
// and a hard cap on followed redirects.
type fetcher struct {
	timeout      time.Duration
	maxRedirects int
}

func newFetcher(cfg config.Resolver) fetcher {
	return fetcher{timeout: cfg.ProbeTimeout, maxRedirects: cfg.MaxRedirects}
}

func (f fetcher) httpClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= f.maxRedirects {
				return fmt.Errorf("stopped after %d redirects", f.maxRedirects)
			}
			return nil
		},
	}
}

// fetchJSON GETs one candidate URL and returns the parsed JSON object, the
// raw payload, and the effective URL after redirects.
func (f fetcher) fetchJSON(ctx context.Context, candidate string, headers http.Header) (map[string]any, json.RawMessage, string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, http.NoBody)
	if err != nil {
		return nil, nil, "", 0, fmt.Errorf("build request for %s: %w", candidate, err)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return nil, nil, "", 0, fmt.Errorf("fetch %s: %w", candidate, err)
	}
	defer func() { _ = resp.Body.Close() }()

	effective := candidate
	if resp.Request != nil && resp.Request.URL != nil {
		effective = resp.Request.URL.String()
	}

	if resp.StatusCode >= 400 {
		return nil, nil, effective, resp.StatusCode, fmt.Errorf("fetch %s: status %d", candidate, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCardBytes))
	if err != nil {
		return nil, nil, effective, resp.StatusCode, fmt.Errorf("read %s: %w", candidate, err)
	}

	var card map[string]any
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, nil, effective, resp.StatusCode, fmt.Errorf("parse %s: not a JSON object: %w", candidate, err)
	}
	return card, raw, effective, resp.StatusCode, nil
}

// looksLikeCard applies the minimal shape check: a card carries at least a
// name or a url.
func looksLikeCard(card map[string]any) bool {
	if _, ok := card["name"]; ok {
		return true
	}
	_, ok := card["url"]
	return ok
}

// resolveRaw runs the probing algorithm: the pasted URL first, then the
// well-known candidates against its origin. A redirect that lands on a
// non-card page is surfaced through the final error, never guessed around.
func resolveRaw(ctx context.Context, f fetcher, normURL string, headers http.Header) (*Resolved, error) {
	var (
		lastErr    error
		lastStatus int
	)

	card, raw, effective, status, err := f.fetchJSON(ctx, normURL, headers)
	if err == nil && looksLikeCard(card) {
		return &Resolved{Card: card, Raw: raw, URL: effective}, nil
	}
	if err != nil {
		lastErr, lastStatus = err, status
	} else {
		lastErr = fmt.Errorf("%s returned JSON that does not look like an agent card", effective)
		lastStatus = status
	}
	if ctx.Err() != nil {
		return nil, &ResolutionError{Reason: lastErr.Error(), LastStatus: lastStatus, err: ctx.Err()}
	}

	origin, err := originOf(normURL)
	if err != nil {
		return nil, &ResolutionError{Reason: err.Error(), LastStatus: lastStatus, err: lastErr}
	}

	for _, path := range wellKnownPaths {
		candidate := origin + path
		if candidate == normURL {
			continue
		}
		card, raw, effective, status, err := f.fetchJSON(ctx, candidate, headers)
		if err == nil && looksLikeCard(card) {
			return &Resolved{Card: card, Raw: raw, URL: effective}, nil
		}
		if err != nil {
			lastErr, lastStatus = err, status
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, &ResolutionError{
		Reason:     fmt.Sprintf("no agent card found at %s or its well-known paths: %v", normURL, lastErr),
		LastStatus: lastStatus,
		err:        lastErr,
	}
}

func originOf(normURL string) (string, error) {
	u, err := url.Parse(normURL)
	if err != nil {
		return "", fmt.Errorf("derive origin of %q: %w", normURL, err)
	}
	return u.Scheme + "://" + u.Host, nil
}

// IsTimeout reports whether err is ultimately a deadline expiry, so callers
// can attach a timeout reason instead of a generic failure.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
