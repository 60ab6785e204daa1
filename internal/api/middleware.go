package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// internalKeyMiddleware guards event intake with the agent's internal key.
// The key arrives in the x-internal-agent-api-key header (X-Internal-Key is
// accepted as a legacy alias). A missing server-side key configuration is a
// server error, not an auth failure.
func (d *Dependencies) internalKeyMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.InternalKey == "" && d.InternalKeyHash == "" {
			writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Internal agent key not configured."})
			return
		}

		candidate := r.Header.Get("x-internal-agent-api-key")
		if candidate == "" {
			candidate = r.Header.Get("X-Internal-Key")
		}

		if !d.keyMatches(candidate) {
			d.Logger.Warn("internal key rejected", zap.String("path", r.URL.Path))
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid internal key."})
			return
		}

		next(w, r)
	}
}

func (d *Dependencies) keyMatches(candidate string) bool {
	if candidate == "" {
		return false
	}
	if d.InternalKeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(d.InternalKeyHash), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(d.InternalKey), []byte(candidate)) == 1
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a JSON request body into the given pointer.
func readJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Request logging ---

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
