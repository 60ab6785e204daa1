package brain

import (
	"context"
	"fmt"
	"strings"
)

// knownSystems is the provider-tag vocabulary accepted in systems_used.
var knownSystems = map[string]struct{}{"GHL": {}, "MAKE": {}, "ZAPIER": {}}

var knownAreas = map[string]struct{}{
	AreaProspect:   {},
	AreaCommercial: {},
	AreaDelivery:   {},
	AreaOperations: {},
}

// TemplateStrategy builds proposals by deterministic interpolation of payload
// fields. It is the default strategy and needs no credentials.
type TemplateStrategy struct{}

func NewTemplateStrategy() *TemplateStrategy {
	return &TemplateStrategy{}
}

func (s *TemplateStrategy) Propose(_ context.Context, kind Kind, payload map[string]any) (Proposal, error) {
	switch kind {
	case KindFlow:
		flow := buildFlow(payload)
		return Proposal{Kind: KindFlow, Flow: &flow}, nil
	case KindFix:
		fix := buildFix(payload)
		return Proposal{Kind: KindFix, Fix: &fix}, nil
	case KindSimplification:
		simp := buildSimplification(payload)
		return Proposal{Kind: KindSimplification, Simplification: &simp}, nil
	default:
		return Proposal{}, fmt.Errorf("brain: unknown proposal kind %d", kind)
	}
}

func buildFlow(payload map[string]any) FlowDefinition {
	goal := textOrDefault(payload["goal"], "Requested automation")
	contextTag := textOrDefault(payload["context"], AreaOperations)

	systems := []string{"GHL"}
	if raw, ok := payload["systems"].([]any); ok {
		filtered := make([]string, 0, len(raw))
		for _, s := range raw {
			tag := strings.ToUpper(safeText(s))
			if _, known := knownSystems[tag]; known {
				filtered = append(filtered, tag)
			}
		}
		if len(filtered) > 0 {
			systems = filtered
		}
	}

	return FlowDefinition{
		WorkflowSummary: fmt.Sprintf("Flow for %s in the %s context.", goal, contextTag),
		Triggers:        []string{fmt.Sprintf("%s event received", contextTag), "Tag applied in GHL"},
		Conditions:      []string{"Minimum data present", "Do not duplicate execution"},
		Actions:         []string{"Update field in GHL", "Fire webhook to Make"},
		SystemsUsed:     systems,
	}
}

func buildFix(payload map[string]any) FixSuggestion {
	source := textOrDefault(payload["source"], "GHL")
	desc := textOrDefault(payload["description"], "Integration failure")
	impact := strings.ToUpper(safeText(payload["impact"]))

	priority := PriorityMedium
	if impact == ImpactHigh {
		priority = PriorityHigh
	}

	return FixSuggestion{
		RootCause:    fmt.Sprintf("Failure detected in %s: %s.", source, desc),
		SuggestedFix: "Review credentials and field mappings in the flow.",
		Priority:     priority,
	}
}

func buildSimplification(payload map[string]any) SimplificationRecommendation {
	area := strings.ToUpper(textOrDefault(payload["context"], AreaOperations))
	if _, known := knownAreas[area]; !known {
		area = AreaOperations
	}
	return SimplificationRecommendation{
		Area:           area,
		Issue:          IssueExcessAutomation,
		Recommendation: "Reduce the number of triggers and consolidate flow steps.",
	}
}

func safeText(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func textOrDefault(v any, def string) string {
	if s := safeText(v); s != "" {
		return s
	}
	return def
}
