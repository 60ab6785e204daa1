package brain

import (
	"context"
	"errors"
	"testing"
)

// stubStrategy returns a fixed proposal, standing in for a generative call.
type stubStrategy struct {
	proposal Proposal
	err      error
}

func (s *stubStrategy) Propose(_ context.Context, _ Kind, _ map[string]any) (Proposal, error) {
	return s.proposal, s.err
}

func TestEngine_TemplateOutputPassesSchemas(t *testing.T) {
	engine, err := NewEngine(NewTemplateStrategy())
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	payload := map[string]any{"goal": "sync", "impact": "HIGH", "context": "OPERATIONS"}
	for _, kind := range []Kind{KindFlow, KindFix, KindSimplification} {
		if _, err := engine.Propose(context.Background(), kind, payload); err != nil {
			t.Errorf("expected %s proposal to validate, got: %v", kind, err)
		}
	}
}

func TestEngine_RejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		proposal Proposal
	}{
		{
			"unknown priority",
			KindFix,
			Proposal{Kind: KindFix, Fix: &FixSuggestion{RootCause: "x", SuggestedFix: "y", Priority: "URGENT"}},
		},
		{
			"empty root cause",
			KindFix,
			Proposal{Kind: KindFix, Fix: &FixSuggestion{RootCause: "", SuggestedFix: "y", Priority: "HIGH"}},
		},
		{
			"unknown system tag",
			KindFlow,
			Proposal{Kind: KindFlow, Flow: &FlowDefinition{
				WorkflowSummary: "s",
				Triggers:        []string{"t"},
				Conditions:      []string{"c"},
				Actions:         []string{"a"},
				SystemsUsed:     []string{"HUBSPOT"},
			}},
		},
		{
			"unknown area",
			KindSimplification,
			Proposal{Kind: KindSimplification, Simplification: &SimplificationRecommendation{
				Area: "FINANCE", Issue: IssueExcessAutomation, Recommendation: "r",
			}},
		},
		{"missing variant", KindFlow, Proposal{Kind: KindFlow}},
		{"wrong kind", KindFlow, Proposal{Kind: KindFix, Fix: &FixSuggestion{RootCause: "x", SuggestedFix: "y", Priority: "HIGH"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewEngine(&stubStrategy{proposal: tt.proposal})
			if err != nil {
				t.Fatalf("failed to build engine: %v", err)
			}
			_, err = engine.Propose(context.Background(), tt.kind, nil)
			if !errors.Is(err, ErrSchemaViolation) {
				t.Errorf("expected ErrSchemaViolation, got: %v", err)
			}
		})
	}
}

func TestEngine_StrategyErrorPropagates(t *testing.T) {
	boom := errors.New("model unavailable")
	engine, err := NewEngine(&stubStrategy{err: boom})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	_, err = engine.Propose(context.Background(), KindFlow, nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected strategy error propagated, got: %v", err)
	}
}

func TestDecodeProposal_MalformedIsSchemaViolation(t *testing.T) {
	_, err := decodeProposal(KindFix, "not json at all")
	if !errors.Is(err, ErrSchemaViolation) {
		t.Errorf("expected ErrSchemaViolation for malformed model output, got: %v", err)
	}
}
