// Package protocol defines the A2A wire model shared by the validator,
// session, and transport layers: event kinds, message part variants, and the
// JSON-RPC envelopes used to talk to a remote agent.
package protocol

// Event kind discriminators carried in the "kind" field of streamed events.
const (
	KindTask           = "task"
	KindMessage        = "message"
	KindStatusUpdate   = "status-update"
	KindArtifactUpdate = "artifact-update"
)

// Message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Part variant discriminators inside message and artifact parts.
const (
	PartText = "text"
	PartFile = "file"
	PartData = "data"
)

// EventKind extracts the kind discriminator from a raw event object.
// Returns an empty string when the field is absent or not a string.
func EventKind(event map[string]any) string {
	kind, _ := event["kind"].(string)
	return kind
}
