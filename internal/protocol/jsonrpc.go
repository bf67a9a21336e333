package protocol

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC methods defined by the A2A protocol for message dispatch.
const (
	MethodMessageSend   = "message/send"
	MethodMessageStream = "message/stream"
)

// Request is a JSON-RPC 2.0 request envelope sent to the agent.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope received from the agent.
// Result is kept raw so malformed payloads survive long enough to be linted.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// SendParams is the params object for message/send and message/stream.
type SendParams struct {
	Message       OutboundMessage    `json:"message"`
	Configuration *SendConfiguration `json:"configuration,omitempty"`
}

// SendConfiguration narrows what the agent may answer with.
type SendConfiguration struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
}

// OutboundMessage is the user message envelope dispatched to the agent.
type OutboundMessage struct {
	Kind      string         `json:"kind"`
	MessageID string         `json:"messageId"`
	Role      string         `json:"role"`
	Parts     []TextPart     `json:"parts"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TextPart is the text variant of a message part.
type TextPart struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// NewUserMessage builds a single-text-part user message.
func NewUserMessage(text, messageID, contextID string, metadata map[string]any) OutboundMessage {
	return OutboundMessage{
		Kind:      KindMessage,
		MessageID: messageID,
		Role:      RoleUser,
		Parts:     []TextPart{{Kind: PartText, Text: text}},
		ContextID: contextID,
		Metadata:  metadata,
	}
}

// NewSendRequest wraps a user message in a message/send or message/stream
// request envelope. The request id mirrors the message id so wire traffic
// correlates with the debug log.
func NewSendRequest(method string, msg OutboundMessage, outputModes []string) Request {
	params := SendParams{Message: msg}
	if len(outputModes) > 0 {
		params.Configuration = &SendConfiguration{AcceptedOutputModes: outputModes}
	}
	return Request{
		JSONRPC: "2.0",
		ID:      msg.MessageID,
		Method:  method,
		Params:  params,
	}
}
