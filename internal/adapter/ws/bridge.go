// Package ws implements the WebSocket adapter for real-time client
// communication. Each connection gets its own sid and Bridge; the bridge
// translates wire envelopes into session manager calls and session emissions
// back into envelopes.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/agent-matrix/a2a-validator/internal/debuglog"
	"github.com/agent-matrix/a2a-validator/internal/logger"
	"github.com/agent-matrix/a2a-validator/internal/session"
	"github.com/agent-matrix/a2a-validator/internal/validator"
)

const writeTimeout = 10 * time.Second

// Controller is the slice of the session manager the bridge drives.
// Satisfied by *session.Manager; faked in tests.
type Controller interface {
	Open(sid string, emitter session.Emitter) error
	Initialize(ctx context.Context, sid, rawURL string, headers map[string]string) error
	SendMessage(sid string, req session.SendRequest) error
	Close(sid string)
}

// Handler upgrades connections and runs one Bridge per connection.
type Handler struct {
	ctrl Controller
	log  *slog.Logger
}

// NewHandler creates the websocket handler.
func NewHandler(ctrl Controller, log *slog.Logger) *Handler {
	return &Handler{ctrl: ctrl, log: log}
}

// ServeWS upgrades the request and blocks until the connection drops. The
// session lives exactly as long as the connection.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		h.log.Error("websocket accept failed", "error", err)
		return
	}

	sid := uuid.NewString()
	ctx, cancel := context.WithCancel(logger.WithSID(r.Context(), sid))
	b := &Bridge{sid: sid, conn: conn, ctx: ctx, cancel: cancel, log: h.log}

	if err := h.ctrl.Open(sid, b); err != nil {
		h.log.Error("session open failed", "sid", sid, "error", err)
		cancel()
		_ = conn.Close(websocket.StatusInternalError, "session open failed")
		return
	}
	h.log.Info("websocket connected", "sid", sid, "remote", r.RemoteAddr)
	b.send(EventConnected, ConnectedPayload{SID: sid})

	b.readLoop(h.ctrl)

	h.ctrl.Close(sid)
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.log.Info("websocket disconnected", "sid", sid)
}

// Bridge is one connection's duplex endpoint. It implements session.Emitter,
// so the session manager writes straight to the browser that owns the sid.
type Bridge struct {
	sid    string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	writeMu sync.Mutex
}

// ClientInitialized implements session.Emitter.
func (b *Bridge) ClientInitialized(status, reason string) {
	b.send(EventClientInitialized, ClientInitializedPayload{Status: status, Message: reason})
}

// AgentResponse implements session.Emitter.
func (b *Bridge) AgentResponse(id string, event map[string]any, result validator.Result) {
	b.send(EventAgentResponse, AgentResponsePayload{
		ID:                 id,
		Event:              event,
		ValidationErrors:   result.Errors,
		ValidationWarnings: result.Warnings,
	})
}

// SendFailed implements session.Emitter.
func (b *Bridge) SendFailed(id, reason string) {
	b.send(EventAgentResponse, AgentResponsePayload{
		ID:               id,
		Error:            reason,
		ValidationErrors: []string{reason},
	})
}

// DebugLog implements session.Emitter.
func (b *Bridge) DebugLog(entry debuglog.Entry) {
	b.send(EventDebugLog, DebugLogPayload{
		ID:        entry.ID,
		Type:      string(entry.Type),
		Timestamp: entry.Timestamp,
		Data:      entry.Payload,
	})
}

// send marshals and writes one envelope. Session goroutines and the read
// loop both emit, so writes are serialized.
func (b *Bridge) send(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("marshal ws payload", "sid", b.sid, "type", eventType, "error", err)
		return
	}
	frame, err := json.Marshal(Envelope{Type: eventType, Payload: data})
	if err != nil {
		b.log.Error("marshal ws envelope", "sid", b.sid, "type", eventType, "error", err)
		return
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(b.ctx, writeTimeout)
	defer cancel()
	if err := b.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		b.log.Debug("websocket write failed", "sid", b.sid, "type", eventType, "error", err)
	}
}

// readLoop consumes client envelopes until the connection drops.
func (b *Bridge) readLoop(ctrl Controller) {
	for {
		_, data, err := b.conn.Read(b.ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			b.log.Debug("discarding malformed frame", "sid", b.sid, "error", err)
			continue
		}
		b.handle(ctrl, env)
	}
}

func (b *Bridge) handle(ctrl Controller, env Envelope) {
	switch env.Type {
	case EventInitializeClient:
		var p InitializeClientPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			b.ClientInitialized("error", "malformed initialize_client payload")
			return
		}
		// Initialization blocks for up to the probe timeout; run it off the
		// read loop so the client can keep talking. The outcome reaches the
		// client through the client_initialized emission.
		go func() {
			_ = ctrl.Initialize(b.ctx, b.sid, p.URL, p.CustomHeaders)
		}()

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			b.SendFailed(p.ID, "malformed send_message payload")
			return
		}
		if err := ctrl.SendMessage(b.sid, session.SendRequest{
			Text:      p.Message,
			ID:        p.ID,
			ContextID: p.ContextID,
			Metadata:  p.Metadata,
		}); err != nil {
			b.SendFailed(p.ID, err.Error())
		}

	default:
		b.log.Debug("unknown ws event", "sid", b.sid, "type", env.Type)
	}
}
