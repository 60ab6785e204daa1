package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dma-digital/automation-agent/internal/rules"
	"go.uber.org/zap"
)

func validDraft() rules.EventDraft {
	return rules.EventDraft{
		Name:       rules.EventAutomationFlowDefined,
		Source:     "automation_integrations_ai",
		LocationID: "loc-1",
		Payload:    map[string]any{"workflow_summary": "Flow."},
	}
}

func newTestPublisher(t *testing.T, url string, opts ...Option) *Publisher {
	t.Helper()
	rs, err := rules.Builtin()
	if err != nil {
		t.Fatalf("failed to build ruleset: %v", err)
	}
	opts = append([]Option{WithBackoff(time.Millisecond)}, opts...)
	return New(url, rs, zap.NewNop(), opts...)
}

func TestPublish_Success(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/events/publish" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var draft map[string]any
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			t.Errorf("failed to decode draft: %v", err)
		}
		if draft["name"] != rules.EventAutomationFlowDefined {
			t.Errorf("unexpected draft name: %v", draft["name"])
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"event_id": "evt-99"}`))
	}))
	defer srv.Close()

	resp, err := newTestPublisher(t, srv.URL).Publish(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if resp["event_id"] != "evt-99" {
		t.Errorf("expected parsed bus response, got %v", resp)
	}
	if calls.Load() != 1 {
		t.Errorf("expected single request, got %d", calls.Load())
	}
}

func TestPublish_EmptyBodyIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := newTestPublisher(t, srv.URL).Publish(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if resp != nil {
		t.Errorf("expected nil response for empty body, got %v", resp)
	}
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newTestPublisher(t, srv.URL, WithRetries(2)).Publish(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("expected eventual success, got: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", calls.Load())
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bus down"))
	}))
	defer srv.Close()

	_, err := newTestPublisher(t, srv.URL, WithRetries(2)).Publish(context.Background(), validDraft())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", calls.Load())
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "bus down") {
		t.Errorf("expected last bus error in message, got: %v", err)
	}
}

func TestPublish_InvalidDraftSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	draft := validDraft()
	draft.Name = ""
	_, err := newTestPublisher(t, srv.URL).Publish(context.Background(), draft)
	if !errors.Is(err, rules.ErrValidation) {
		t.Fatalf("expected ErrValidation, got: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no requests for invalid draft, got %d", calls.Load())
	}
}

func TestPublish_ContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPublisher(t, srv.URL, WithRetries(5), WithBackoff(time.Hour))
	_, err := p.Publish(ctx, validDraft())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled during backoff, got: %v", err)
	}
}
