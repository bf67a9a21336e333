package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the validator API on the given chi router. The
// websocket upgrade endpoint is mounted alongside so the whole surface lives
// behind one middleware chain.
func MountRoutes(r chi.Router, h *Handlers, serveWS http.HandlerFunc) {
	r.Post("/agent-card", h.HandleAgentCard)
	r.Get("/debug-logs", h.HandleDebugLogs)
	r.Get("/debug-logs/{id}", h.HandleDebugLogByID)
	r.Get("/ws", serveWS)
	r.Get("/healthz", h.HandleHealthz)
	r.Get("/readyz", h.HandleReadyz)
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
