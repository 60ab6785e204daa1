// Package delivery attempts outbound message delivery through two webhook
// providers: Make first, GoHighLevel as fallback. A provider transport
// failure is captured as detail and never raised, so the fallback always
// runs. Neither provider is ever retried.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dma-digital/automation-agent/internal/rules"
	"go.uber.org/zap"
)

// Provider identifies which webhook endpoint handled (or failed) a delivery.
type Provider string

const (
	ProviderMake Provider = "MAKE"
	ProviderGHL  Provider = "GHL"
	ProviderNone Provider = "NONE"
)

// responsePreviewLength caps the provider response bytes kept as detail.
const responsePreviewLength = 500

// Precondition reason codes for attempted=false results.
const (
	ReasonMissingMessageText  = "missing_message_text"
	ReasonMissingContactID    = "missing_contact_id"
	ReasonMissingLocationID   = "missing_location_id"
	ReasonAgentModeNotExecute = "agent_mode_not_execute"
	reasonMissingMakeURL      = "missing_make_webhook_url"
	reasonMissingGHLToken     = "missing_ghl_token"
)

// AttemptDetail records a single provider attempt. attempted=false with a
// reason means the provider was skipped before any network call
// (unconfigured), as opposed to configured-but-unreachable.
type AttemptDetail struct {
	Attempted  bool     `json:"attempted"`
	Provider   Provider `json:"provider"`
	Success    bool     `json:"success"`
	StatusCode int      `json:"status_code,omitempty"`
	Response   string   `json:"response,omitempty"`
	Error      string   `json:"error,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	URL        string   `json:"url,omitempty"`
}

// Result is the dispatcher outcome recorded as handler evidence.
type Result struct {
	Attempted bool           `json:"attempted"`
	Success   bool           `json:"success"`
	Provider  Provider       `json:"provider,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Details   *AttemptDetail `json:"details,omitempty"`
	Make      *AttemptDetail `json:"make,omitempty"`
	GHL       *AttemptDetail `json:"ghl,omitempty"`
}

// Config holds the provider endpoints and the agent operating mode.
type Config struct {
	AgentMode string

	MakeWebhookURL   string
	MakeWebhookToken string

	GHLBaseURL      string
	GHLToken        string
	GHLWhatsAppPath string
	GHLAPIVersion   string

	Timeout time.Duration
}

// Dispatcher fans a message out to the providers.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func NewDispatcher(cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// outboundPayload is the message shape sent to Make; GHL derives its own
// body from the same fields.
type outboundPayload struct {
	TraceID     string `json:"trace_id"`
	RequestID   string `json:"request_id,omitempty"`
	ContactID   string `json:"contact_id"`
	LocationID  string `json:"location_id"`
	Channel     string `json:"channel"`
	MessageText string `json:"message_text"`
	Source      string `json:"source"`
}

// Dispatch checks the preconditions and, in EXECUTE mode, attempts Make then
// GHL, short-circuiting on the first success.
func (d *Dispatcher) Dispatch(ctx context.Context, event rules.Event, payload map[string]any) Result {
	messageText := strings.TrimSpace(firstText(payload["message_text"], payload["text"]))
	if messageText == "" {
		return Result{Reason: ReasonMissingMessageText}
	}
	if event.ContactID == "" {
		return Result{Reason: ReasonMissingContactID}
	}
	if event.LocationID == "" {
		return Result{Reason: ReasonMissingLocationID}
	}
	if !strings.EqualFold(d.cfg.AgentMode, "EXECUTE") {
		return Result{Reason: ReasonAgentModeNotExecute}
	}

	outbound := outboundPayload{
		TraceID:     event.TraceID,
		RequestID:   safeText(payload["request_id"]),
		ContactID:   event.ContactID,
		LocationID:  event.LocationID,
		Channel:     firstTextOr(payload["channel"], "WHATSAPP"),
		MessageText: messageText,
		Source:      firstTextOr(payload["source"], event.Name),
	}

	makeDetail := d.sendViaMake(ctx, outbound)
	if makeDetail.Success {
		return Result{Attempted: true, Success: true, Provider: ProviderMake, Details: &makeDetail}
	}

	ghlDetail := d.sendViaGHL(ctx, outbound)
	if ghlDetail.Success {
		return Result{Attempted: true, Success: true, Provider: ProviderGHL, Details: &ghlDetail}
	}

	d.logger.Warn("outbound delivery failed on all providers",
		zap.String("trace_id", event.TraceID),
		zap.String("make_reason", makeDetail.Reason),
		zap.String("make_error", makeDetail.Error),
		zap.String("ghl_reason", ghlDetail.Reason),
		zap.String("ghl_error", ghlDetail.Error),
	)
	return Result{
		Attempted: makeDetail.Attempted || ghlDetail.Attempted,
		Success:   false,
		Provider:  ProviderNone,
		Make:      &makeDetail,
		GHL:       &ghlDetail,
	}
}

func (d *Dispatcher) sendViaMake(ctx context.Context, payload outboundPayload) AttemptDetail {
	if d.cfg.MakeWebhookURL == "" {
		return AttemptDetail{Provider: ProviderMake, Reason: reasonMissingMakeURL}
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if d.cfg.MakeWebhookToken != "" {
		headers["Authorization"] = "Bearer " + d.cfg.MakeWebhookToken
	}

	return d.post(ctx, ProviderMake, d.cfg.MakeWebhookURL, payload, headers)
}

func (d *Dispatcher) sendViaGHL(ctx context.Context, payload outboundPayload) AttemptDetail {
	if d.cfg.GHLToken == "" {
		return AttemptDetail{Provider: ProviderGHL, Reason: reasonMissingGHLToken}
	}

	path := strings.ReplaceAll(d.cfg.GHLWhatsAppPath, "{location_id}", payload.LocationID)
	url := strings.TrimRight(d.cfg.GHLBaseURL, "/") + "/" + strings.TrimLeft(path, "/")

	headers := map[string]string{
		"Authorization": "Bearer " + d.cfg.GHLToken,
		"Content-Type":  "application/json",
		"Accept":        "application/json",
		"Version":       d.cfg.GHLAPIVersion,
	}

	body := map[string]any{
		"contactId":   payload.ContactID,
		"locationId":  payload.LocationID,
		"message":     payload.MessageText,
		"type":        "WhatsApp",
		"channel":     "whatsapp",
		"messageType": 0,
	}

	detail := d.post(ctx, ProviderGHL, url, body, headers)
	detail.URL = url
	return detail
}

// post issues the provider call. Transport errors come back as detail, not as
// an error, so the caller can fall through to the next provider.
func (d *Dispatcher) post(ctx context.Context, provider Provider, url string, body any, headers map[string]string) AttemptDetail {
	encoded, err := json.Marshal(body)
	if err != nil {
		return AttemptDetail{Attempted: true, Provider: provider, Error: fmt.Sprintf("encode body: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return AttemptDetail{Attempted: true, Provider: provider, Error: fmt.Sprintf("build request: %v", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return AttemptDetail{Attempted: true, Provider: provider, Error: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, responsePreviewLength))
	return AttemptDetail{
		Attempted:  true,
		Provider:   provider,
		Success:    resp.StatusCode < 400,
		StatusCode: resp.StatusCode,
		Response:   string(preview),
	}
}

func safeText(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func firstText(values ...any) string {
	for _, v := range values {
		if s := safeText(v); s != "" {
			return s
		}
	}
	return ""
}

func firstTextOr(v any, def string) string {
	if s := safeText(v); s != "" {
		return s
	}
	return def
}
