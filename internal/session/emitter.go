package session

import (
	"time"

	"github.com/agent-matrix/a2a-validator/internal/debuglog"
	"github.com/agent-matrix/a2a-validator/internal/validator"
)

// Emitter is the outbound half of one session's transport, implemented by
// the websocket bridge. The manager calls it from session goroutines, so
// implementations must be safe for concurrent use.
type Emitter interface {
	// ClientInitialized reports the outcome of an initialization attempt.
	// status is "success" or "error"; reason is set only on error.
	ClientInitialized(status, reason string)

	// AgentResponse delivers one agent event annotated with its validation
	// findings. id is the correlation id of the send that produced it.
	AgentResponse(id string, event map[string]any, validation validator.Result)

	// SendFailed reports that a dispatched message produced no usable
	// response. The failure is already recorded in the debug log relay.
	SendFailed(id, reason string)

	// DebugLog streams one relay entry as it is recorded.
	DebugLog(entry debuglog.Entry)
}

// Stats receives session lifecycle counters. A nil Stats is valid and
// disables reporting.
type Stats interface {
	SessionOpened()
	SessionClosed()
	MessageDispatched(elapsed time.Duration, failed bool)
}
