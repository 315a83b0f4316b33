package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// StatusHandler serves the live bot state published by the trading loop.
type StatusHandler struct {
	states domain.StateCache
	mode   string
	pair   string
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler reading from the given state cache.
func NewStatusHandler(states domain.StateCache, mode, pair string, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		states: states,
		mode:   mode,
		pair:   pair,
		logger: logger.With(slog.String("handler", "status")),
	}
}

// GetStatus responds with the mode and the last published bot state. A bot
// that has not published yet (or whose state expired) reports running=false.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode": h.mode,
		"pair": h.pair,
	}

	state, err := h.states.GetState(r.Context(), h.pair)
	switch {
	case err == nil:
		resp["running"] = true
		resp["state"] = state
	case errors.Is(err, domain.ErrNotFound):
		resp["running"] = false
	default:
		h.logger.ErrorContext(r.Context(), "read state failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "state cache unavailable")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
