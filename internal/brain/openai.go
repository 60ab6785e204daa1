package brain

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig carries the generative-strategy settings.
type OpenAIConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
}

// OpenAIStrategy delegates proposal generation to a chat-completion call
// constrained by a strict JSON schema matching the proposal's field set.
// Enabled only when BRAIN_ENABLED is set and an API key is present.
type OpenAIStrategy struct {
	client *openai.Client
	cfg    OpenAIConfig
}

func NewOpenAIStrategy(cfg OpenAIConfig) *OpenAIStrategy {
	return &OpenAIStrategy{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
	}
}

// responseSchema pairs the wire name and raw schema for a proposal kind.
func responseSchema(kind Kind) (string, json.RawMessage, error) {
	switch kind {
	case KindFlow:
		return "FlowDefinition", json.RawMessage(flowSchemaJSON), nil
	case KindFix:
		return "FixSuggestion", json.RawMessage(fixSchemaJSON), nil
	case KindSimplification:
		return "SimplificationRecommendation", json.RawMessage(simplificationSchemaJSON), nil
	default:
		return "", nil, fmt.Errorf("brain: unknown proposal kind %d", kind)
	}
}

func (s *OpenAIStrategy) Propose(ctx context.Context, kind Kind, payload map[string]any) (Proposal, error) {
	name, schema, err := responseSchema(kind)
	if err != nil {
		return Proposal{}, err
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxOutputTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("brain: %s completion: %w", kind, err)
	}
	if len(resp.Choices) == 0 {
		return Proposal{}, fmt.Errorf("%w: %s: empty completion", ErrSchemaViolation, kind)
	}

	return decodeProposal(kind, resp.Choices[0].Message.Content)
}

// decodeProposal parses model output into the typed variant. A response that
// does not parse is a schema violation, never silently replaced by the
// template output.
func decodeProposal(kind Kind, content string) (Proposal, error) {
	raw := []byte(content)
	switch kind {
	case KindFlow:
		var flow FlowDefinition
		if err := json.Unmarshal(raw, &flow); err != nil {
			return Proposal{}, fmt.Errorf("%w: %s: %v", ErrSchemaViolation, kind, err)
		}
		return Proposal{Kind: KindFlow, Flow: &flow}, nil
	case KindFix:
		var fix FixSuggestion
		if err := json.Unmarshal(raw, &fix); err != nil {
			return Proposal{}, fmt.Errorf("%w: %s: %v", ErrSchemaViolation, kind, err)
		}
		return Proposal{Kind: KindFix, Fix: &fix}, nil
	case KindSimplification:
		var simp SimplificationRecommendation
		if err := json.Unmarshal(raw, &simp); err != nil {
			return Proposal{}, fmt.Errorf("%w: %s: %v", ErrSchemaViolation, kind, err)
		}
		return Proposal{Kind: KindSimplification, Simplification: &simp}, nil
	default:
		return Proposal{}, fmt.Errorf("brain: unknown proposal kind %d", kind)
	}
}
