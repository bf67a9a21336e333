package resolver

import "fmt"

// ResolutionError reports that no candidate URL yielded a parseable Agent
// Card. It is surfaced to the user verbatim and never retried silently;
// pasting a different URL is the retry path.
type ResolutionError struct {
	Reason     string
	LastStatus int // last HTTP status observed, 0 when the request never completed
	err        error
}

func (e *ResolutionError) Error() string {
	if e.LastStatus != 0 {
		return fmt.Sprintf("agent card resolution failed: %s (last status %d)", e.Reason, e.LastStatus)
	}
	return "agent card resolution failed: " + e.Reason
}

func (e *ResolutionError) Unwrap() error {
	return e.err
}
