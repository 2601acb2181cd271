package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/health"
)

// POST /heartbeats/client
func (h *handler) clientHeartbeat(w http.ResponseWriter, r *http.Request) {
	hb := h.health.Client(r.Context(), clientIP(r))
	writeJSON(w, http.StatusOK, hb)
}

// GET /heartbeats/{component}
func (h *handler) latestHeartbeat(w http.ResponseWriter, r *http.Request) {
	component := chi.URLParam(r, "component")
	switch component {
	case health.ComponentServer, health.ComponentDatabase, health.ComponentClient:
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown component", Code: "not_found"})
		return
	}
	hb, err := h.health.Latest(r.Context(), component)
	if errors.Is(err, health.ErrNoHeartbeat) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
		return
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, hb)
}
