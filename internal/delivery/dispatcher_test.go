package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dma-digital/automation-agent/internal/rules"
	"go.uber.org/zap"
)

func testEvent() rules.Event {
	return rules.Event{
		ID:         "evt-1",
		TraceID:    "trace-1",
		Name:       rules.EventAutomationRequest,
		Source:     "maestro",
		LocationID: "loc-1",
		ContactID:  "contact-1",
		Payload:    map[string]any{},
	}
}

func executeConfig() Config {
	return Config{
		AgentMode:       "EXECUTE",
		GHLBaseURL:      "https://services.example.com",
		GHLWhatsAppPath: "conversations/messages",
		GHLAPIVersion:   "2021-04-15",
	}
}

func TestDispatch_Preconditions(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		mode     string
		event    func() rules.Event
		payload  map[string]any
		expected string
	}{
		{
			"missing message", "EXECUTE", testEvent,
			map[string]any{}, ReasonMissingMessageText,
		},
		{
			"whitespace message", "EXECUTE", testEvent,
			map[string]any{"message_text": "   "}, ReasonMissingMessageText,
		},
		{
			"missing contact", "EXECUTE",
			func() rules.Event { e := testEvent(); e.ContactID = ""; return e },
			map[string]any{"message_text": "hello"}, ReasonMissingContactID,
		},
		{
			"missing location", "EXECUTE",
			func() rules.Event { e := testEvent(); e.LocationID = ""; return e },
			map[string]any{"message_text": "hello"}, ReasonMissingLocationID,
		},
		{
			"propose mode", "PROPOSE", testEvent,
			map[string]any{"message_text": "hello"}, ReasonAgentModeNotExecute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := executeConfig()
			cfg.AgentMode = tt.mode
			cfg.MakeWebhookURL = srv.URL
			d := NewDispatcher(cfg, zap.NewNop())

			result := d.Dispatch(context.Background(), tt.event(), tt.payload)
			if result.Attempted {
				t.Error("expected attempted=false")
			}
			if result.Success {
				t.Error("expected success=false")
			}
			if result.Reason != tt.expected {
				t.Errorf("expected reason %s, got %s", tt.expected, result.Reason)
			}
		})
	}

	if calls.Load() != 0 {
		t.Errorf("expected zero network calls for precondition failures, got %d", calls.Load())
	}
}

func TestDispatch_FallsBackToTextField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["message_text"] != "from text field" {
			t.Errorf("expected message from text field, got %v", body["message_text"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := executeConfig()
	cfg.MakeWebhookURL = srv.URL
	d := NewDispatcher(cfg, zap.NewNop())

	result := d.Dispatch(context.Background(), testEvent(), map[string]any{"text": "from text field"})
	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}
}

func TestDispatch_MakeSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["contact_id"] != "contact-1" || body["location_id"] != "loc-1" {
			t.Errorf("unexpected outbound payload: %v", body)
		}
		if body["channel"] != "WHATSAPP" {
			t.Errorf("expected default channel WHATSAPP, got %v", body["channel"])
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer srv.Close()

	cfg := executeConfig()
	cfg.MakeWebhookURL = srv.URL
	cfg.MakeWebhookToken = "make-token"
	d := NewDispatcher(cfg, zap.NewNop())

	result := d.Dispatch(context.Background(), testEvent(), map[string]any{"message_text": "hello"})
	if !result.Attempted || !result.Success {
		t.Fatalf("expected successful delivery, got %+v", result)
	}
	if result.Provider != ProviderMake {
		t.Errorf("expected provider MAKE, got %s", result.Provider)
	}
	if result.Details == nil || result.Details.StatusCode != http.StatusOK {
		t.Errorf("expected MAKE detail with 200, got %+v", result.Details)
	}
	if gotAuth != "Bearer make-token" {
		t.Errorf("expected bearer token header, got %q", gotAuth)
	}
}

func TestDispatch_FallsBackToGHL(t *testing.T) {
	makeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer makeSrv.Close()

	ghlSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/messages/loc-1" {
			t.Errorf("unexpected GHL path: %s", r.URL.Path)
		}
		if r.Header.Get("Version") != "2021-04-15" {
			t.Errorf("missing Version header, got %q", r.Header.Get("Version"))
		}
		if r.Header.Get("Authorization") != "Bearer ghl-token" {
			t.Errorf("unexpected auth header: %q", r.Header.Get("Authorization"))
		}

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["contactId"] != "contact-1" || body["locationId"] != "loc-1" {
			t.Errorf("unexpected GHL body: %v", body)
		}
		if body["channel"] != "whatsapp" || body["type"] != "WhatsApp" {
			t.Errorf("unexpected channel tagging: %v", body)
		}
		if body["messageType"] != float64(0) {
			t.Errorf("expected messageType 0, got %v", body["messageType"])
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ghlSrv.Close()

	cfg := executeConfig()
	cfg.MakeWebhookURL = makeSrv.URL
	cfg.GHLBaseURL = ghlSrv.URL
	cfg.GHLToken = "ghl-token"
	cfg.GHLWhatsAppPath = "conversations/messages/{location_id}"
	d := NewDispatcher(cfg, zap.NewNop())

	result := d.Dispatch(context.Background(), testEvent(), map[string]any{"message_text": "hello"})
	if !result.Success {
		t.Fatalf("expected GHL fallback success, got %+v", result)
	}
	if result.Provider != ProviderGHL {
		t.Errorf("expected provider GHL, got %s", result.Provider)
	}
}

func TestDispatch_BothProvidersFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	cfg := executeConfig()
	cfg.MakeWebhookURL = srv.URL
	cfg.GHLBaseURL = srv.URL
	cfg.GHLToken = "ghl-token"
	d := NewDispatcher(cfg, zap.NewNop())

	result := d.Dispatch(context.Background(), testEvent(), map[string]any{"message_text": "hello"})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Provider != ProviderNone {
		t.Errorf("expected provider NONE, got %s", result.Provider)
	}
	if !result.Attempted {
		t.Error("expected attempted=true when providers were reached")
	}
	if result.Make == nil || !result.Make.Attempted || result.Make.StatusCode != http.StatusBadGateway {
		t.Errorf("expected MAKE detail attached, got %+v", result.Make)
	}
	if len(result.Make.Response) != responsePreviewLength {
		t.Errorf("expected response preview capped at %d bytes, got %d", responsePreviewLength, len(result.Make.Response))
	}
	if result.GHL == nil || !result.GHL.Attempted {
		t.Errorf("expected GHL detail attached, got %+v", result.GHL)
	}
}

func TestDispatch_UnconfiguredVsUnreachable(t *testing.T) {
	// Make unconfigured (no URL), GHL configured but unreachable.
	cfg := executeConfig()
	cfg.GHLBaseURL = "http://127.0.0.1:1" // nothing listens here
	cfg.GHLToken = "ghl-token"
	d := NewDispatcher(cfg, zap.NewNop())

	result := d.Dispatch(context.Background(), testEvent(), map[string]any{"message_text": "hello"})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Make == nil || result.Make.Attempted {
		t.Errorf("expected unconfigured MAKE to report attempted=false, got %+v", result.Make)
	}
	if result.Make.Reason == "" {
		t.Error("expected a reason on the unconfigured MAKE detail")
	}
	if result.GHL == nil || !result.GHL.Attempted || result.GHL.Error == "" {
		t.Errorf("expected unreachable GHL to report attempted=true with error, got %+v", result.GHL)
	}
	// Overall attempted reflects that at least one provider was reached.
	if !result.Attempted {
		t.Error("expected attempted=true")
	}
}
