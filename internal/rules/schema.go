package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Built-in JSON schemas for the agent contracts. An external ruleset directory
// may override any of them file-by-file (see Resolve).
const (
	eventSchemaJSON = `{
		"type": "object",
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"trace_id": {"type": "string", "minLength": 1},
			"name": {"type": "string", "minLength": 1},
			"source": {"type": "string", "minLength": 1},
			"location_id": {"type": "string", "minLength": 1},
			"contact_id": {"type": ["string", "null"]},
			"payload": {"type": "object"}
		},
		"required": ["id", "trace_id", "name", "source", "location_id", "payload"]
	}`

	draftSchemaJSON = `{
		"type": "object",
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"source": {"type": "string", "minLength": 1},
			"location_id": {"type": "string", "minLength": 1},
			"contact_id": {"type": ["string", "null"]},
			"payload": {"type": "object"}
		},
		"required": ["name", "source", "location_id", "payload"]
	}`

	resultSchemaJSON = `{
		"type": "object",
		"properties": {
			"trace_id": {"type": "string"},
			"event_id": {"type": "string"},
			"handler": {"type": "string", "minLength": 1},
			"status": {"enum": ["success", "skipped", "error"]},
			"next_events": {"type": "array"},
			"evidence": {"type": "object"},
			"errors": {"type": "array", "items": {"type": "string"}},
			"duration_ms": {"type": "integer", "minimum": 0}
		},
		"required": ["trace_id", "event_id", "handler", "status", "next_events", "evidence", "errors", "duration_ms"]
	}`
)

// Schema file names recognized inside an external ruleset directory.
const (
	eventSchemaFile  = "event.json"
	draftSchemaFile  = "event_draft.json"
	resultSchemaFile = "agent_result.json"
	eventNamesFile   = "event_names.json"
)

// schemaRuleset validates the agent contracts against compiled JSON schemas.
type schemaRuleset struct {
	event  *jsonschema.Schema
	draft  *jsonschema.Schema
	result *jsonschema.Schema

	// allowedNames gates draft names before publishing. nil means no
	// allow-list is available and every name is permitted.
	allowedNames map[string]struct{}
}

// Builtin returns the compiled built-in ruleset.
func Builtin() (Ruleset, error) {
	return compileRuleset(
		[]byte(eventSchemaJSON),
		[]byte(draftSchemaJSON),
		[]byte(resultSchemaJSON),
		append(append([]string{}, ConsumedEvents...), ProducedEvents...),
	)
}

// Resolve returns the active ruleset. With an empty dir the built-in ruleset
// is used. Otherwise schema files found in dir override the built-in ones;
// an event_names.json file (JSON array of strings) replaces the allow-list,
// and its absence permits all names. Resolution happens once, at startup.
func Resolve(dir string) (Ruleset, error) {
	if dir == "" {
		return Builtin()
	}

	eventSchema, err := schemaFileOrDefault(dir, eventSchemaFile, eventSchemaJSON)
	if err != nil {
		return nil, err
	}
	draftSchema, err := schemaFileOrDefault(dir, draftSchemaFile, draftSchemaJSON)
	if err != nil {
		return nil, err
	}
	resultSchema, err := schemaFileOrDefault(dir, resultSchemaFile, resultSchemaJSON)
	if err != nil {
		return nil, err
	}

	var names []string
	namesPath := filepath.Join(dir, eventNamesFile)
	if raw, err := os.ReadFile(namesPath); err == nil {
		if err := json.Unmarshal(raw, &names); err != nil {
			return nil, fmt.Errorf("rules: parse %s: %w", namesPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("rules: read %s: %w", namesPath, err)
	}

	return compileRuleset(eventSchema, draftSchema, resultSchema, names)
}

func schemaFileOrDefault(dir, name, fallback string) ([]byte, error) {
	path := filepath.Join(dir, name)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []byte(fallback), nil
	}
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return raw, nil
}

func compileRuleset(eventSchema, draftSchema, resultSchema []byte, names []string) (Ruleset, error) {
	rs := &schemaRuleset{}

	var err error
	if rs.event, err = compileSchema(eventSchemaFile, eventSchema); err != nil {
		return nil, err
	}
	if rs.draft, err = compileSchema(draftSchemaFile, draftSchema); err != nil {
		return nil, err
	}
	if rs.result, err = compileSchema(resultSchemaFile, resultSchema); err != nil {
		return nil, err
	}

	if names != nil {
		rs.allowedNames = make(map[string]struct{}, len(names))
		for _, n := range names {
			rs.allowedNames[n] = struct{}{}
		}
	}
	return rs, nil
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("rules: schema %s is not valid JSON: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("rules: add schema %s: %w", name, err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("rules: compile schema %s: %w", name, err)
	}
	return sch, nil
}

func (r *schemaRuleset) ValidateEvent(raw map[string]any) (Event, error) {
	if err := r.event.Validate(anyView(raw)); err != nil {
		return Event{}, fmt.Errorf("%w: invalid event: %v", ErrValidation, err)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return Event{}, fmt.Errorf("%w: encode event: %v", ErrValidation, err)
	}
	var evt Event
	if err := json.Unmarshal(b, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: decode event: %v", ErrValidation, err)
	}
	if evt.Payload == nil {
		evt.Payload = map[string]any{}
	}
	return evt, nil
}

func (r *schemaRuleset) ValidateDraft(draft EventDraft) error {
	doc, err := toDocument(draft)
	if err != nil {
		return fmt.Errorf("%w: encode draft: %v", ErrValidation, err)
	}
	if err := r.draft.Validate(doc); err != nil {
		return fmt.Errorf("%w: invalid event draft: %v", ErrValidation, err)
	}
	return nil
}

func (r *schemaRuleset) ValidateResult(result AgentResult) error {
	doc, err := toDocument(result)
	if err != nil {
		return fmt.Errorf("%w: encode result: %v", ErrValidation, err)
	}
	if err := r.result.Validate(doc); err != nil {
		return fmt.Errorf("%w: invalid agent result: %v", ErrValidation, err)
	}
	return nil
}

func (r *schemaRuleset) EventNameAllowed(name string) bool {
	if r.allowedNames == nil {
		return true
	}
	_, ok := r.allowedNames[name]
	return ok
}

func (r *schemaRuleset) ActionKey(eventName, traceID string, payload map[string]any) string {
	return ActionKey(eventName, traceID, payload)
}

// toDocument round-trips a typed value through JSON so the validator sees the
// generic shapes it expects.
func toDocument(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// anyView widens a decoded JSON object for the validator without copying.
func anyView(raw map[string]any) any {
	if raw == nil {
		return map[string]any{}
	}
	return raw
}
