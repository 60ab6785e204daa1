package brain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Strategy produces a structured proposal of the requested kind from the
// inbound event payload.
type Strategy interface {
	Propose(ctx context.Context, kind Kind, payload map[string]any) (Proposal, error)
}

// Per-kind output schemas. The same validation applies to both strategies,
// and the flow/fix/simplification schemas double as the strict response
// format sent to the model by the generative strategy.
const (
	flowSchemaJSON = `{
		"type": "object",
		"properties": {
			"workflow_summary": {"type": "string", "minLength": 1},
			"triggers": {"type": "array", "items": {"type": "string"}},
			"conditions": {"type": "array", "items": {"type": "string"}},
			"actions": {"type": "array", "items": {"type": "string"}},
			"systems_used": {"type": "array", "items": {"enum": ["GHL", "MAKE", "ZAPIER"]}}
		},
		"required": ["workflow_summary", "triggers", "conditions", "actions", "systems_used"],
		"additionalProperties": false
	}`

	fixSchemaJSON = `{
		"type": "object",
		"properties": {
			"root_cause": {"type": "string", "minLength": 1},
			"suggested_fix": {"type": "string", "minLength": 1},
			"priority": {"enum": ["HIGH", "MEDIUM", "LOW"]}
		},
		"required": ["root_cause", "suggested_fix", "priority"],
		"additionalProperties": false
	}`

	simplificationSchemaJSON = `{
		"type": "object",
		"properties": {
			"area": {"enum": ["PROSPECT", "COMMERCIAL", "DELIVERY", "OPERATIONS"]},
			"issue": {"enum": ["EXCESS_AUTOMATION", "RECURRING_FAILURE"]},
			"recommendation": {"type": "string", "minLength": 1}
		},
		"required": ["area", "issue", "recommendation"],
		"additionalProperties": false
	}`
)

// Engine wraps a strategy with uniform post-call schema enforcement.
type Engine struct {
	strategy Strategy
	schemas  map[Kind]*jsonschema.Schema
}

// NewEngine compiles the proposal schemas and binds them to the strategy
// selected at configuration time.
func NewEngine(strategy Strategy) (*Engine, error) {
	schemas := make(map[Kind]*jsonschema.Schema, 3)
	for kind, raw := range map[Kind]string{
		KindFlow:           flowSchemaJSON,
		KindFix:            fixSchemaJSON,
		KindSimplification: simplificationSchemaJSON,
	} {
		var doc any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("brain: schema %s: %w", kind, err)
		}
		c := jsonschema.NewCompiler()
		name := kind.String() + ".json"
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("brain: schema %s: %w", kind, err)
		}
		sch, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("brain: compile schema %s: %w", kind, err)
		}
		schemas[kind] = sch
	}
	return &Engine{strategy: strategy, schemas: schemas}, nil
}

// Propose invokes the strategy and validates its output against the schema
// for the requested kind.
func (e *Engine) Propose(ctx context.Context, kind Kind, payload map[string]any) (Proposal, error) {
	proposal, err := e.strategy.Propose(ctx, kind, payload)
	if err != nil {
		return Proposal{}, err
	}
	if err := e.validate(kind, proposal); err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

func (e *Engine) validate(kind Kind, proposal Proposal) error {
	if proposal.Kind != kind {
		return fmt.Errorf("%w: strategy returned %s for %s", ErrSchemaViolation, proposal.Kind, kind)
	}

	var variant any
	switch kind {
	case KindFlow:
		variant = proposal.Flow
	case KindFix:
		variant = proposal.Fix
	case KindSimplification:
		variant = proposal.Simplification
	}
	if variant == nil {
		return fmt.Errorf("%w: %s variant missing", ErrSchemaViolation, kind)
	}

	b, err := json.Marshal(variant)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrSchemaViolation, kind, err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrSchemaViolation, kind, err)
	}
	if err := e.schemas[kind].Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, kind, err)
	}
	return nil
}
