// Package agent orchestrates event handling: validate the inbound event,
// claim the action key, compute proposals, dispatch outbound delivery,
// publish derived events, persist the report, write the audit record, and
// confirm idempotency. Failures in the side-effecting tail abort the
// remaining steps; nothing already done is rolled back.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dma-digital/automation-agent/internal/audit"
	"github.com/dma-digital/automation-agent/internal/brain"
	"github.com/dma-digital/automation-agent/internal/delivery"
	"github.com/dma-digital/automation-agent/internal/idempotency"
	"github.com/dma-digital/automation-agent/internal/publisher"
	"github.com/dma-digital/automation-agent/internal/report"
	"github.com/dma-digital/automation-agent/internal/rules"
	"go.uber.org/zap"
)

// Audit action tags.
const (
	actionFlowDefined  = "automation_flow_defined"
	actionFixSuggested = "automation_fix_suggested"
)

// Skip reasons surfaced in evidence.
const (
	reasonUnsupportedEvent = "unsupported_event"
	reasonIdempotent       = "idempotent"
)

// Deps holds the collaborators injected into the agent.
type Deps struct {
	AgentName  string
	Rules      rules.Ruleset
	Engine     *brain.Engine
	Dispatcher *delivery.Dispatcher
	Publisher  *publisher.Publisher
	Idem       idempotency.Store
	Audit      *audit.Logger
	ReportsDir string
	Logger     *zap.Logger
}

// Agent is the event handler.
type Agent struct {
	deps Deps
}

func New(deps Deps) *Agent {
	return &Agent{deps: deps}
}

// HandleEvent runs the full pipeline for one inbound event. Validation
// failures wrap rules.ErrValidation; everything else that errors is an
// operation-level failure for the caller to surface.
func (a *Agent) HandleEvent(ctx context.Context, raw map[string]any) (rules.AgentResult, error) {
	start := time.Now()

	evt, err := a.deps.Rules.ValidateEvent(raw)
	if err != nil {
		return rules.AgentResult{}, err
	}

	name := strings.ToUpper(evt.Name)
	if name != rules.EventAutomationRequest && name != rules.EventAutomationErrorDetected {
		return a.finish(a.skipped(evt, reasonUnsupportedEvent, "Unsupported event.", start))
	}

	key := a.deps.Rules.ActionKey(evt.Name, evt.TraceID, evt.Payload)
	claimed, err := a.deps.Idem.Claim(ctx, key)
	if err != nil {
		return a.errorResult(evt, err, start), err
	}
	if !claimed {
		return a.finish(a.skipped(evt, reasonIdempotent, "Event already processed.", start))
	}

	result, err := a.process(ctx, evt, name, key, start)
	if err != nil {
		// Unconfirmed claims are released so a retry can reprocess.
		if relErr := a.deps.Idem.Release(ctx, key); relErr != nil {
			a.deps.Logger.Error("failed to release idempotency claim",
				zap.String("action_key", key),
				zap.Error(relErr),
			)
		}
		a.deps.Logger.Error("event handling failed",
			zap.String("trace_id", evt.TraceID),
			zap.String("event", evt.Name),
			zap.Error(err),
		)
		return a.errorResult(evt, err, start), err
	}
	return result, nil
}

func (a *Agent) process(ctx context.Context, evt rules.Event, name, key string, start time.Time) (rules.AgentResult, error) {
	if name == rules.EventAutomationRequest {
		return a.processRequest(ctx, evt, key, start)
	}
	return a.processErrorDetected(ctx, evt, key, start)
}

func (a *Agent) processRequest(ctx context.Context, evt rules.Event, key string, start time.Time) (rules.AgentResult, error) {
	// Delivery outcome is evidence only; it never blocks the pipeline.
	deliveryResult := a.deps.Dispatcher.Dispatch(ctx, evt, evt.Payload)

	proposal, err := a.deps.Engine.Propose(ctx, brain.KindFlow, evt.Payload)
	if err != nil {
		return rules.AgentResult{}, err
	}
	flow := proposal.Flow

	now := time.Now().UTC().Format(time.RFC3339)
	flowPayload := map[string]any{
		"request_id":       safeText(evt.Payload["request_id"]),
		"workflow_summary": flow.WorkflowSummary,
		"triggers":         flow.Triggers,
		"conditions":       flow.Conditions,
		"actions":          flow.Actions,
		"systems_used":     flow.SystemsUsed,
		"timestamp":        now,
	}

	nextEvents := []rules.EventDraft{}
	draft := a.buildDraft(rules.EventAutomationFlowDefined, evt, flowPayload)
	if a.deps.Rules.EventNameAllowed(rules.EventAutomationFlowDefined) {
		if _, err := a.deps.Publisher.Publish(ctx, draft); err != nil {
			return rules.AgentResult{}, err
		}
		nextEvents = append(nextEvents, draft)
	}

	reportPath, err := report.Persist(a.deps.ReportsDir, evt.TraceID, map[string]any{
		"trace_id":        evt.TraceID,
		"event":           evt.Name,
		"decision":        flowPayload,
		"payload":         evt.Payload,
		"delivery_result": deliveryResult,
	})
	if err != nil {
		return rules.AgentResult{}, err
	}

	if err := a.deps.Audit.Append(audit.Record{
		TraceID:    evt.TraceID,
		Action:     actionFlowDefined,
		ActionKey:  key,
		ReportPath: reportPath,
		Event:      evt.Name,
	}); err != nil {
		return rules.AgentResult{}, err
	}

	if err := a.deps.Idem.MarkProcessed(ctx, key); err != nil {
		return rules.AgentResult{}, err
	}

	evidence := map[string]any{"report_path": reportPath, "delivery_result": deliveryResult}
	for k, v := range flowPayload {
		evidence[k] = v
	}
	return a.finish(a.success(evt, nextEvents, evidence, start))
}

func (a *Agent) processErrorDetected(ctx context.Context, evt rules.Event, key string, start time.Time) (rules.AgentResult, error) {
	fixProposal, err := a.deps.Engine.Propose(ctx, brain.KindFix, evt.Payload)
	if err != nil {
		return rules.AgentResult{}, err
	}
	simpProposal, err := a.deps.Engine.Propose(ctx, brain.KindSimplification, evt.Payload)
	if err != nil {
		return rules.AgentResult{}, err
	}
	fix, simp := fixProposal.Fix, simpProposal.Simplification

	now := time.Now().UTC().Format(time.RFC3339)
	fixPayload := map[string]any{
		"error_id":      safeText(evt.Payload["error_id"]),
		"root_cause":    fix.RootCause,
		"suggested_fix": fix.SuggestedFix,
		"priority":      fix.Priority,
		"timestamp":     now,
	}
	simpPayload := map[string]any{
		"area":           simp.Area,
		"issue":          simp.Issue,
		"recommendation": simp.Recommendation,
		"timestamp":      now,
	}

	// Fixed publish order: fix first, then simplification. A publish failure
	// aborts the remaining steps.
	nextEvents := []rules.EventDraft{}
	fixDraft := a.buildDraft(rules.EventAutomationFixSuggested, evt, fixPayload)
	if a.deps.Rules.EventNameAllowed(rules.EventAutomationFixSuggested) {
		if _, err := a.deps.Publisher.Publish(ctx, fixDraft); err != nil {
			return rules.AgentResult{}, err
		}
		nextEvents = append(nextEvents, fixDraft)
	}
	simpDraft := a.buildDraft(rules.EventAutomationSimplificationRecommended, evt, simpPayload)
	if a.deps.Rules.EventNameAllowed(rules.EventAutomationSimplificationRecommended) {
		if _, err := a.deps.Publisher.Publish(ctx, simpDraft); err != nil {
			return rules.AgentResult{}, err
		}
		nextEvents = append(nextEvents, simpDraft)
	}

	reportPath, err := report.Persist(a.deps.ReportsDir, evt.TraceID, map[string]any{
		"trace_id": evt.TraceID,
		"event":    evt.Name,
		"decision": map[string]any{
			"fix":            fixPayload,
			"simplification": simpPayload,
		},
		"payload": evt.Payload,
	})
	if err != nil {
		return rules.AgentResult{}, err
	}

	if err := a.deps.Audit.Append(audit.Record{
		TraceID:    evt.TraceID,
		Action:     actionFixSuggested,
		ActionKey:  key,
		ReportPath: reportPath,
		Event:      evt.Name,
	}); err != nil {
		return rules.AgentResult{}, err
	}

	if err := a.deps.Idem.MarkProcessed(ctx, key); err != nil {
		return rules.AgentResult{}, err
	}

	evidence := map[string]any{"report_path": reportPath}
	for k, v := range fixPayload {
		evidence[k] = v
	}
	return a.finish(a.success(evt, nextEvents, evidence, start))
}

// buildDraft creates a derived event draft carrying the inbound identifiers
// and the agent's own identity as source. The payload is enriched with the
// trace_id when absent.
func (a *Agent) buildDraft(name string, evt rules.Event, payload map[string]any) rules.EventDraft {
	enriched := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		enriched[k] = v
	}
	if evt.TraceID != "" {
		if _, ok := enriched["trace_id"]; !ok {
			enriched["trace_id"] = evt.TraceID
		}
	}
	return rules.EventDraft{
		Name:       name,
		Source:     a.deps.AgentName,
		LocationID: evt.LocationID,
		ContactID:  evt.ContactID,
		Payload:    enriched,
	}
}

func (a *Agent) skipped(evt rules.Event, reason, summary string, start time.Time) rules.AgentResult {
	return rules.AgentResult{
		TraceID:    evt.TraceID,
		EventID:    evt.ID,
		Handler:    a.deps.AgentName,
		Status:     rules.StatusSkipped,
		NextEvents: []rules.EventDraft{},
		Evidence:   map[string]any{"reason": reason, "summary": summary},
		Errors:     []string{},
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func (a *Agent) success(evt rules.Event, nextEvents []rules.EventDraft, evidence map[string]any, start time.Time) rules.AgentResult {
	return rules.AgentResult{
		TraceID:    evt.TraceID,
		EventID:    evt.ID,
		Handler:    a.deps.AgentName,
		Status:     rules.StatusSuccess,
		NextEvents: nextEvents,
		Evidence:   evidence,
		Errors:     []string{},
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func (a *Agent) errorResult(evt rules.Event, err error, start time.Time) rules.AgentResult {
	return rules.AgentResult{
		TraceID:    evt.TraceID,
		EventID:    evt.ID,
		Handler:    a.deps.AgentName,
		Status:     rules.StatusError,
		NextEvents: []rules.EventDraft{},
		Evidence:   map[string]any{},
		Errors:     []string{err.Error()},
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// finish validates the assembled result against the active ruleset before
// returning it to the caller. The error deliberately does not carry the
// validation sentinel: a rejected result is a server fault, not a client one.
func (a *Agent) finish(result rules.AgentResult) (rules.AgentResult, error) {
	if err := a.deps.Rules.ValidateResult(result); err != nil {
		return result, fmt.Errorf("assembled result rejected by ruleset: %v", err)
	}
	return result, nil
}

func safeText(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}
