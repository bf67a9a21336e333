package validator

import (
	"github.com/agent-matrix/a2a-validator/internal/protocol"
)

// kindValidators maps each known event kind to its rule set. Adding a new
// kind means adding a function here; unknown kinds only warn.
var kindValidators = map[string]func(map[string]any, *Result){
	protocol.KindTask:           validateTask,
	protocol.KindMessage:        validateMessage,
	protocol.KindStatusUpdate:   validateStatusUpdate,
	protocol.KindArtifactUpdate: validateArtifactUpdate,
}

// ValidateEvent checks one streamed event against the rules for its kind.
// An event that fails validation is annotated, never dropped: the caller is
// expected to forward it regardless.
func ValidateEvent(kind string, event map[string]any) Result {
	var res Result
	if event == nil {
		res.errorf("event must be an object")
		return res
	}
	validate, known := kindValidators[kind]
	if !known {
		if kind == "" {
			res.errorf("event is missing the required %q field", "kind")
		} else {
			res.warnf("unknown event kind %q; forwarded without kind-specific checks", kind)
		}
		return res
	}
	validate(event, &res)
	return res
}

func validateTask(event map[string]any, res *Result) {
	if !nonEmptyString(event["id"]) {
		res.errorf("task is missing required field %q", "id")
	}
	status, ok := event["status"].(map[string]any)
	if !ok || !nonEmptyString(status["state"]) {
		res.errorf("task is missing required field %q", "status.state")
	}
}

func validateMessage(event map[string]any, res *Result) {
	validateParts(event["parts"], "parts", res)

	role, _ := event["role"].(string)
	if role != protocol.RoleUser && role != protocol.RoleAgent {
		res.errorf("message field %q must be %q or %q", "role", protocol.RoleUser, protocol.RoleAgent)
	}
}

func validateStatusUpdate(event map[string]any, res *Result) {
	status, ok := event["status"].(map[string]any)
	if !ok {
		res.errorf("status-update is missing required field %q", "status")
		return
	}
	if !nonEmptyString(status["state"]) {
		res.errorf("status-update is missing required field %q", "status.state")
	}
	// A nested status message is linted with the message rules; its findings
	// bubble up under a status.message prefix rather than being re-emitted
	// verbatim.
	if nested, present := status["message"]; present {
		msg, ok := nested.(map[string]any)
		if !ok {
			res.errorf("field %q must be an object", "status.message")
			return
		}
		var nestedRes Result
		validateMessage(msg, &nestedRes)
		for _, e := range nestedRes.Errors {
			res.errorf("status.message: %s", e)
		}
		for _, w := range nestedRes.Warnings {
			res.warnf("status.message: %s", w)
		}
	}
}

func validateArtifactUpdate(event map[string]any, res *Result) {
	artifact, ok := event["artifact"].(map[string]any)
	if !ok {
		res.errorf("artifact-update is missing required field %q", "artifact")
		return
	}
	validateParts(artifact["parts"], "artifact.parts", res)
}

// validateParts checks that v is a non-empty array whose entries each match
// exactly one of the text/file/data part variants.
func validateParts(v any, field string, res *Result) {
	parts, ok := v.([]any)
	if !ok || len(parts) == 0 {
		res.errorf("field %q must be a non-empty array", field)
		return
	}
	for i, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			res.errorf("%s[%d] must be an object", field, i)
			continue
		}
		switch n := countVariants(part); {
		case n == 0:
			res.errorf("%s[%d] matches none of the %s/%s/%s part variants",
				field, i, protocol.PartText, protocol.PartFile, protocol.PartData)
		case n > 1:
			res.errorf("%s[%d] matches multiple part variants; exactly one of %s/%s/%s is allowed",
				field, i, protocol.PartText, protocol.PartFile, protocol.PartData)
		}
	}
}

// countVariants counts how many part variant payloads are present on one
// part object. A well-formed part carries exactly one.
func countVariants(part map[string]any) int {
	n := 0
	for _, key := range []string{protocol.PartText, protocol.PartFile, protocol.PartData} {
		if _, present := part[key]; present {
			n++
		}
	}
	return n
}
