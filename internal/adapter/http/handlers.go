// Package http provides the REST surface of the validator: agent card
// resolution plus read access to the debug log relay. Live traffic flows
// over the websocket bridge; this package only serves request/response
// endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agent-matrix/a2a-validator/internal/debuglog"
	"github.com/agent-matrix/a2a-validator/internal/resolver"
	"github.com/agent-matrix/a2a-validator/internal/validator"
)

const maxBodyBytes = 1 << 20

// CardResolver resolves an agent URL into its card. Satisfied by
// *resolver.Resolver.
type CardResolver interface {
	Resolve(ctx context.Context, rawURL string, headers map[string]string) (*resolver.Resolved, error)
}

// Handlers bundles the HTTP endpoint implementations.
type Handlers struct {
	cards CardResolver
	relay *debuglog.Relay
	ready func() bool
	log   *slog.Logger
}

// NewHandlers creates the handler set. ready gates the readiness probe; nil
// means always ready.
func NewHandlers(cards CardResolver, relay *debuglog.Relay, ready func() bool, log *slog.Logger) *Handlers {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handlers{cards: cards, relay: relay, ready: ready, log: log}
}

type agentCardRequest struct {
	URL string `json:"url"`
	SID string `json:"sid"`
}

type agentCardResponse struct {
	Card               map[string]any `json:"card"`
	ValidationErrors   []string       `json:"validation_errors"`
	ValidationWarnings []string       `json:"validation_warnings,omitempty"`
	ResolvedURL        string         `json:"resolved_url"`
}

// standardHeaders are inbound headers never forwarded to the target agent.
// Everything else the browser sends (auth tokens, API keys) passes through.
var standardHeaders = map[string]struct{}{
	"host":              {},
	"user-agent":        {},
	"accept":            {},
	"accept-encoding":   {},
	"accept-language":   {},
	"connection":        {},
	"content-length":    {},
	"content-type":      {},
	"origin":            {},
	"referer":           {},
	"cookie":            {},
	"upgrade":           {},
	"pragma":            {},
	"cache-control":     {},
	"x-request-id":      {},
	"x-forwarded-for":   {},
	"x-forwarded-proto": {},
	"x-forwarded-host":  {},
	"x-real-ip":         {},
}

// forwardableHeaders extracts the non-standard inbound headers.
func forwardableHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string)
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if _, standard := standardHeaders[lower]; standard {
			continue
		}
		if strings.HasPrefix(lower, "sec-") {
			continue
		}
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	return headers
}

// HandleAgentCard resolves and validates the card for the requested agent
// URL. The exchange is recorded in the relay under the caller's sid so the
// card fetch shows up in the debug console alongside message traffic.
func (h *Handlers) HandleAgentCard(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agentCardRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if !requireField(w, req.URL, "url") || !requireField(w, req.SID, "sid") {
		return
	}

	headers := forwardableHeaders(r)
	corrID := "card-" + req.SID
	h.relay.Record(corrID, debuglog.TypeRequest, map[string]any{"url": req.URL})

	res, err := h.cards.Resolve(r.Context(), req.URL, headers)
	if err != nil {
		h.relay.Record(corrID, debuglog.TypeError, map[string]any{"error": err.Error()})
		h.log.Warn("agent card resolution failed", "url", req.URL, "sid", req.SID, "error", err)
		writeResolutionError(w, err)
		return
	}
	h.relay.Record(corrID, debuglog.TypeResponse, res.Card)

	result := validator.ValidateCard(res.Card)
	h.log.Info("agent card resolved",
		"url", req.URL, "resolved_url", res.URL,
		"errors", len(result.Errors), "warnings", len(result.Warnings))

	writeJSON(w, http.StatusOK, agentCardResponse{
		Card:               res.Card,
		ValidationErrors:   result.Errors,
		ValidationWarnings: result.Warnings,
		ResolvedURL:        res.URL,
	})
}

// HandleDebugLogs returns every retained relay entry in append order.
func (h *Handlers) HandleDebugLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"logs": h.relay.Entries()})
}

// HandleDebugLogByID returns the entries recorded under one correlation id.
func (h *Handlers) HandleDebugLogByID(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	entries := h.relay.Get(id)
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "no entries for id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "logs": entries})
}

// HandleHealthz is the liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadyz is the readiness probe.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !h.ready() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
