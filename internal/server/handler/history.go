package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// HistoryHandler serves persisted fills and cycle snapshots.
type HistoryHandler struct {
	fills  domain.FillStore
	cycles domain.CycleStore
	logger *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler over the given stores.
func NewHistoryHandler(fills domain.FillStore, cycles domain.CycleStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		fills:  fills,
		cycles: cycles,
		logger: logger.With(slog.String("handler", "history")),
	}
}

// ListFills responds with the most recent fills, newest first.
// GET /api/fills?limit=N
func (h *HistoryHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	fills, err := h.fills.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list fills failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	if fills == nil {
		fills = []domain.Fill{}
	}
	writeJSON(w, http.StatusOK, fills)
}

// ListCycles responds with the most recent cycle snapshots, newest first.
// GET /api/cycles?limit=N
func (h *HistoryHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := h.cycles.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list cycles failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	if cycles == nil {
		cycles = []domain.CycleRecord{}
	}
	writeJSON(w, http.StatusOK, cycles)
}
