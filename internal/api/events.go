package api

import (
	"errors"
	"net/http"

	"github.com/dma-digital/automation-agent/internal/rules"
)

// handleEvent implements POST /handle_event. Validation failures map to a
// client error; everything else that fails maps to a server error with the
// error text as detail.
func (d *Dependencies) handleEvent(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := readJSON(r, &raw); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	result, err := d.Agent.HandleEvent(r.Context(), raw)
	if err != nil {
		if errors.Is(err, rules.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleCapabilities implements GET /capabilities.
func (d *Dependencies) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Capability{
		AgentName: d.AgentName,
		Mode:      d.AgentMode,
		Consumes:  rules.ConsumedEvents,
		Produces:  rules.ProducedEvents,
	})
}
