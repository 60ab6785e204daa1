// Package rules defines the event contracts the agent consumes and produces,
// the canonical action-key fingerprint, and schema validation for both. The
// active ruleset is resolved once at startup: the built-in schemas by default,
// or an external schema directory when one is configured.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Event names this agent consumes.
const (
	EventAutomationRequest       = "AUTOMATION_REQUEST"
	EventAutomationErrorDetected = "AUTOMATION_ERROR_DETECTED"
)

// Event names this agent produces.
const (
	EventAutomationFlowDefined               = "AUTOMATION_FLOW_DEFINED"
	EventAutomationFixSuggested              = "AUTOMATION_FIX_SUGGESTED"
	EventAutomationSimplificationRecommended = "AUTOMATION_SIMPLIFICATION_RECOMMENDED"
)

// ConsumedEvents lists the inbound event names the handler supports.
var ConsumedEvents = []string{EventAutomationRequest, EventAutomationErrorDetected}

// ProducedEvents lists the derived event names the handler may publish.
var ProducedEvents = []string{
	EventAutomationFlowDefined,
	EventAutomationFixSuggested,
	EventAutomationSimplificationRecommended,
}

// ErrValidation marks schema or shape violations. Callers match it with
// errors.Is to map failures to a client error.
var ErrValidation = errors.New("validation error")

// AgentResult statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Event is an inbound message. Immutable once decoded.
type Event struct {
	ID         string         `json:"id"`
	TraceID    string         `json:"trace_id"`
	Name       string         `json:"name"`
	Source     string         `json:"source"`
	LocationID string         `json:"location_id"`
	ContactID  string         `json:"contact_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// EventDraft is an outbound message handed to the publisher. Never mutated
// after construction.
type EventDraft struct {
	Name       string         `json:"name"`
	Source     string         `json:"source"`
	LocationID string         `json:"location_id"`
	ContactID  string         `json:"contact_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// AgentResult is the response contract returned to the caller.
type AgentResult struct {
	TraceID    string         `json:"trace_id"`
	EventID    string         `json:"event_id"`
	Handler    string         `json:"handler"`
	Status     string         `json:"status"`
	NextEvents []EventDraft   `json:"next_events"`
	Evidence   map[string]any `json:"evidence"`
	Errors     []string       `json:"errors"`
	DurationMS int64          `json:"duration_ms"`
}

// Ruleset validates events, drafts and results, gates draft names against the
// allow-list, and computes the idempotency action key.
type Ruleset interface {
	ValidateEvent(raw map[string]any) (Event, error)
	ValidateDraft(draft EventDraft) error
	ValidateResult(result AgentResult) error
	EventNameAllowed(name string) bool
	ActionKey(eventName, traceID string, payload map[string]any) string
}

// CanonicalJSON renders a payload in a stable form: encoding/json emits map
// keys in sorted order at every nesting level, so identical content yields
// identical bytes regardless of construction order.
func CanonicalJSON(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		// Payloads come from decoded JSON and always re-marshal; a failure
		// here means a non-JSON value was injected programmatically.
		return fmt.Sprintf("%v", payload)
	}
	return string(b)
}

// ActionKey derives the deterministic idempotency fingerprint for a logical
// action: a UUIDv5 over name|trace_id|canonical(payload), hex without dashes.
func ActionKey(eventName, traceID string, payload map[string]any) string {
	base := eventName + "|" + traceID + "|" + CanonicalJSON(payload)
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(base))
	return strings.ReplaceAll(id.String(), "-", "")
}
