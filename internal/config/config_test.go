package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.AppHost != "0.0.0.0" || cfg.AppPort != 8021 {
		t.Errorf("unexpected bind defaults: %s:%d", cfg.AppHost, cfg.AppPort)
	}
	if cfg.AgentName != "automation_integrations_ai" {
		t.Errorf("unexpected agent name: %s", cfg.AgentName)
	}
	if cfg.AgentMode != "PROPOSE" {
		t.Errorf("unexpected agent mode: %s", cfg.AgentMode)
	}
	if cfg.MaestroBaseURL != "http://localhost:8000" {
		t.Errorf("unexpected bus URL: %s", cfg.MaestroBaseURL)
	}
	if cfg.PublishRetries != 2 {
		t.Errorf("unexpected publish retries: %d", cfg.PublishRetries)
	}
	if cfg.RequestTimeout != 8*time.Second {
		t.Errorf("unexpected request timeout: %v", cfg.RequestTimeout)
	}
	if cfg.BrainEnabled {
		t.Error("expected brain disabled by default")
	}
	if cfg.AuditLogPath != "data/audit.jsonl" {
		t.Errorf("unexpected audit path: %s", cfg.AuditLogPath)
	}
	if cfg.GHLBaseURL != "https://services.leadconnectorhq.com" {
		t.Errorf("unexpected GHL base URL: %s", cfg.GHLBaseURL)
	}
	if cfg.GHLAPIVersion != "2021-04-15" {
		t.Errorf("unexpected GHL API version: %s", cfg.GHLAPIVersion)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("AGENT_MODE", "EXECUTE")
	t.Setenv("BRAIN_ENABLED", "true")
	t.Setenv("REQUEST_TIMEOUT_S", "3")
	t.Setenv("DATA_DIR", "/var/lib/agent")
	t.Setenv("OPENAI_TEMPERATURE", "0.7")

	cfg := Load()

	if cfg.AppPort != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.AppPort)
	}
	if cfg.AgentMode != "EXECUTE" {
		t.Errorf("expected EXECUTE, got %s", cfg.AgentMode)
	}
	if !cfg.BrainEnabled {
		t.Error("expected brain enabled")
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.AuditLogPath != "/var/lib/agent/audit.jsonl" {
		t.Errorf("expected audit path derived from data dir, got %s", cfg.AuditLogPath)
	}
	if cfg.OpenAITemperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", cfg.OpenAITemperature)
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("APP_PORT", "not-a-number")
	t.Setenv("OPENAI_TEMPERATURE", "warm")
	t.Setenv("BRAIN_ENABLED", "maybe")

	cfg := Load()

	if cfg.AppPort != 8021 {
		t.Errorf("expected default port for malformed value, got %d", cfg.AppPort)
	}
	if cfg.OpenAITemperature != 0.2 {
		t.Errorf("expected default temperature, got %v", cfg.OpenAITemperature)
	}
	if cfg.BrainEnabled {
		t.Error("expected unrecognized boolean treated as false")
	}
}
