package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds all runtime configuration for the agent. Loaded once at
// startup from the environment (a .env file is read first if present).
type Settings struct {
	AppHost string
	AppPort int

	AgentName string
	AgentMode string // PROPOSE or EXECUTE

	InternalAgentAPIKey     string
	InternalAgentAPIKeyHash string // bcrypt hash; takes precedence over the plain key

	MaestroBaseURL string
	PublishRetries int

	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAITemperature     float32
	OpenAIMaxOutputTokens int
	BrainEnabled          bool

	RequestTimeout time.Duration

	DataDir      string
	ReportsDir   string
	AuditLogPath string
	RulesDir     string
	LogLevel     string

	MakeWebhookURL   string
	MakeWebhookToken string

	GHLBaseURL      string
	GHLToken        string
	GHLWhatsAppPath string
	GHLAPIVersion   string

	IdempotencyPostgresDSN string
	AuditClickHouseDSN     string
}

// Load reads settings from the environment. Missing keys fall back to the
// defaults the agent shipped with.
func Load() Settings {
	_ = godotenv.Load() // best-effort; absence of a .env file is normal

	dataDir := envOrDefault("DATA_DIR", "data")
	reportsDir := envOrDefault("REPORTS_DIR", "reports")

	return Settings{
		AppHost: envOrDefault("APP_HOST", "0.0.0.0"),
		AppPort: envOrDefaultInt("APP_PORT", 8021),

		AgentName: envOrDefault("AGENT_NAME", "automation_integrations_ai"),
		AgentMode: envOrDefault("AGENT_MODE", "PROPOSE"),

		InternalAgentAPIKey:     os.Getenv("INTERNAL_AGENT_API_KEY"),
		InternalAgentAPIKeyHash: os.Getenv("INTERNAL_AGENT_API_KEY_HASH"),

		MaestroBaseURL: envOrDefault("MAESTRO_BASE_URL", "http://localhost:8000"),
		PublishRetries: envOrDefaultInt("PUBLISH_RETRIES", 2),

		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:           envOrDefault("OPENAI_MODEL", "gpt-5.2"),
		OpenAITemperature:     envOrDefaultFloat("OPENAI_TEMPERATURE", 0.2),
		OpenAIMaxOutputTokens: envOrDefaultInt("OPENAI_MAX_OUTPUT_TOKENS", 900),
		BrainEnabled:          envOrDefaultBool("BRAIN_ENABLED", false),

		RequestTimeout: time.Duration(envOrDefaultInt("REQUEST_TIMEOUT_S", 8)) * time.Second,

		DataDir:      dataDir,
		ReportsDir:   reportsDir,
		AuditLogPath: envOrDefault("AUDIT_LOG_PATH", filepath.Join(dataDir, "audit.jsonl")),
		RulesDir:     os.Getenv("AGENT_RULES_DIR"),
		LogLevel:     envOrDefault("AGENT_LOG_LEVEL", "info"),

		MakeWebhookURL:   os.Getenv("MAKE_WEBHOOK_URL"),
		MakeWebhookToken: os.Getenv("MAKE_WEBHOOK_TOKEN"),

		GHLBaseURL:      envOrDefault("GHL_BASE_URL", "https://services.leadconnectorhq.com"),
		GHLToken:        os.Getenv("GHL_TOKEN"),
		GHLWhatsAppPath: envOrDefault("GHL_WHATSAPP_PATH", "conversations/messages"),
		GHLAPIVersion:   envOrDefault("GHL_API_VERSION", "2021-04-15"),

		IdempotencyPostgresDSN: os.Getenv("IDEMPOTENCY_POSTGRES_DSN"),
		AuditClickHouseDSN:     os.Getenv("AUDIT_CLICKHOUSE_DSN"),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 32); err == nil {
			return float32(f)
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
