package api

import (
	"net/http"

	"github.com/dma-digital/automation-agent/internal/agent"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Agent     *agent.Agent
	AgentName string
	AgentMode string

	// InternalKeyHash takes precedence over InternalKey when both are set.
	InternalKey     string
	InternalKeyHash string

	Logger *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Event intake (internal key required)
	mux.HandleFunc("POST /handle_event", deps.internalKeyMiddleware(deps.handleEvent))

	mux.HandleFunc("GET /capabilities", deps.handleCapabilities)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return requestLogging(mux, deps.Logger)
}
