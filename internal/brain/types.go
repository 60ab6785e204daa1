// Package brain produces the structured proposals the agent derives from an
// inbound event: a flow definition for automation requests, and a fix plus a
// simplification for detected automation errors. Two interchangeable
// strategies satisfy the same contract: deterministic templates and an
// OpenAI-backed generative strategy. Output from either is validated against
// the proposal schemas before use.
package brain

import "errors"

// Kind selects which proposal a strategy should produce.
type Kind int

const (
	KindFlow Kind = iota + 1
	KindFix
	KindSimplification
)

// String returns the snake_case kind name.
func (k Kind) String() string {
	switch k {
	case KindFlow:
		return "flow"
	case KindFix:
		return "fix"
	case KindSimplification:
		return "simplification"
	default:
		return "unspecified"
	}
}

// Priority tags for fix suggestions.
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"
)

// Impact tags recognized in inbound error payloads.
const ImpactHigh = "HIGH"

// Area tags for simplification recommendations.
const (
	AreaProspect   = "PROSPECT"
	AreaCommercial = "COMMERCIAL"
	AreaDelivery   = "DELIVERY"
	AreaOperations = "OPERATIONS"
)

// Issue tags for simplification recommendations.
const (
	IssueExcessAutomation = "EXCESS_AUTOMATION"
	IssueRecurringFailure = "RECURRING_FAILURE"
)

// ErrSchemaViolation marks a strategy output that failed proposal-schema
// validation. It is a hard failure for the invocation; the engine never
// substitutes the template output for a malformed generative response.
var ErrSchemaViolation = errors.New("proposal schema violation")

// FlowDefinition describes the automation flow proposed for a request.
type FlowDefinition struct {
	WorkflowSummary string   `json:"workflow_summary"`
	Triggers        []string `json:"triggers"`
	Conditions      []string `json:"conditions"`
	Actions         []string `json:"actions"`
	SystemsUsed     []string `json:"systems_used"`
}

// FixSuggestion describes the proposed fix for a detected automation error.
type FixSuggestion struct {
	RootCause    string `json:"root_cause"`
	SuggestedFix string `json:"suggested_fix"`
	Priority     string `json:"priority"`
}

// SimplificationRecommendation points at automation worth removing.
type SimplificationRecommendation struct {
	Area           string `json:"area"`
	Issue          string `json:"issue"`
	Recommendation string `json:"recommendation"`
}

// Proposal is the tagged union returned by a strategy. Exactly one variant is
// set, matching Kind.
type Proposal struct {
	Kind           Kind
	Flow           *FlowDefinition
	Fix            *FixSuggestion
	Simplification *SimplificationRecommendation
}
