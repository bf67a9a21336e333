package ws

import (
	"encoding/json"
	"time"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event type constants for the browser bridge.
const (
	// server to client
	EventConnected         = "connected"
	EventClientInitialized = "client_initialized"
	EventAgentResponse     = "agent_response"
	EventDebugLog          = "debug_log"

	// client to server
	EventInitializeClient = "initialize_client"
	EventSendMessage      = "send_message"
)

// ConnectedPayload carries the sid assigned to a fresh connection. The
// client echoes nothing; the sid only matters for the HTTP card endpoint.
type ConnectedPayload struct {
	SID string `json:"sid"`
}

// InitializeClientPayload binds the session to an agent URL.
type InitializeClientPayload struct {
	URL           string            `json:"url"`
	CustomHeaders map[string]string `json:"customHeaders,omitempty"`
}

// ClientInitializedPayload reports the outcome of an initialization attempt.
type ClientInitializedPayload struct {
	Status  string `json:"status"` // "success" or "error"
	Message string `json:"message,omitempty"`
}

// SendMessagePayload submits one user message to the connected agent.
type SendMessagePayload struct {
	Message   string         `json:"message"`
	ID        string         `json:"id,omitempty"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AgentResponsePayload is one agent event annotated with its validation
// findings. Error is set when the send produced no usable response.
type AgentResponsePayload struct {
	ID                 string         `json:"id"`
	Event              map[string]any `json:"event,omitempty"`
	ValidationErrors   []string       `json:"validation_errors"`
	ValidationWarnings []string       `json:"validation_warnings,omitempty"`
	Error              string         `json:"error,omitempty"`
}

// DebugLogPayload mirrors one relay entry to the live console.
type DebugLogPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
