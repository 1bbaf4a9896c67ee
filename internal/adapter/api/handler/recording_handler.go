package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

const defaultListLimit = 50

// RecorderService is the part of the recording service exposed over HTTP.
type RecorderService interface {
	Stats() domain.LoggerStats
	Recordings(ctx context.Context, limit int) ([]domain.Recording, error)
}

// RecordingHandler serves the recorder's read-only admin endpoints.
type RecordingHandler struct {
	svc    RecorderService
	logger *slog.Logger
}

// NewRecordingHandler creates a new RecordingHandler.
func NewRecordingHandler(svc RecorderService, logger *slog.Logger) *RecordingHandler {
	return &RecordingHandler{svc: svc, logger: logger}
}

// HealthCheck is a simple health check endpoint.
func (h *RecordingHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus returns the active logger's statistics.
// GET /status
func (h *RecordingHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.svc.Stats())
}

// ListRecordings returns finished recordings, newest catalog entries first.
// GET /recordings?limit=N
func (h *RecordingHandler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := h.svc.Recordings(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list recordings", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []domain.Recording{}
	}
	h.respondWithJSON(w, http.StatusOK, recs)
}

func (h *RecordingHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
