package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

// MockRecorderService is a mock implementation of RecorderService.
type MockRecorderService struct {
	StatsResult domain.LoggerStats
	Recs        []domain.Recording
	ListErr     error
	GotLimit    int
}

func (m *MockRecorderService) Stats() domain.LoggerStats { return m.StatsResult }

func (m *MockRecorderService) Recordings(ctx context.Context, limit int) ([]domain.Recording, error) {
	m.GotLimit = limit
	return m.Recs, m.ListErr
}

func TestRecordingHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	closed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		target         string
		svc            *MockRecorderService
		serve          func(h *RecordingHandler) http.HandlerFunc
		expectedStatus int
		expectedLimit  int
		check          func(t *testing.T, body []byte)
	}{
		{
			name:           "Health",
			target:         "/health",
			svc:            &MockRecorderService{},
			serve:          func(h *RecordingHandler) http.HandlerFunc { return h.HealthCheck },
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				if string(body) != `{"status":"ok"}` {
					t.Errorf("unexpected body %s", body)
				}
			},
		},
		{
			name:   "Status",
			target: "/status",
			svc: &MockRecorderService{StatsResult: domain.LoggerStats{
				Session: "walk", Strategy: "ordered", Running: true, Events: 12, FillLevel: 0.5,
			}},
			serve:          func(h *RecordingHandler) http.HandlerFunc { return h.GetStatus },
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var stats domain.LoggerStats
				if err := json.Unmarshal(body, &stats); err != nil {
					t.Fatalf("bad json: %v", err)
				}
				if stats.Session != "walk" || stats.Events != 12 || !stats.Running {
					t.Errorf("unexpected stats %+v", stats)
				}
			},
		},
		{
			name:   "Recordings Default Limit",
			target: "/recordings",
			svc: &MockRecorderService{Recs: []domain.Recording{
				{ID: "r1", Name: "walk", ClosedAt: closed},
			}},
			serve:          func(h *RecordingHandler) http.HandlerFunc { return h.ListRecordings },
			expectedStatus: http.StatusOK,
			expectedLimit:  defaultListLimit,
			check: func(t *testing.T, body []byte) {
				var recs []domain.Recording
				if err := json.Unmarshal(body, &recs); err != nil {
					t.Fatalf("bad json: %v", err)
				}
				if len(recs) != 1 || recs[0].ID != "r1" {
					t.Errorf("unexpected recordings %+v", recs)
				}
			},
		},
		{
			name:           "Recordings Empty Is Array",
			target:         "/recordings?limit=5",
			svc:            &MockRecorderService{},
			serve:          func(h *RecordingHandler) http.HandlerFunc { return h.ListRecordings },
			expectedStatus: http.StatusOK,
			expectedLimit:  5,
			check: func(t *testing.T, body []byte) {
				if string(body) != "[]" {
					t.Errorf("expected empty array, got %s", body)
				}
			},
		},
		{
			name:           "Recordings Bad Limit",
			target:         "/recordings?limit=-1",
			svc:            &MockRecorderService{},
			serve:          func(h *RecordingHandler) http.HandlerFunc { return h.ListRecordings },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Recordings Catalog Error",
			target:         "/recordings",
			svc:            &MockRecorderService{ListErr: errors.New("db down")},
			serve:          func(h *RecordingHandler) http.HandlerFunc { return h.ListRecordings },
			expectedStatus: http.StatusInternalServerError,
			expectedLimit:  defaultListLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRecordingHandler(tt.svc, logger)
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			rr := httptest.NewRecorder()

			tt.serve(h)(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if tt.svc.GotLimit != tt.expectedLimit {
				t.Errorf("expected limit %d, got %d", tt.expectedLimit, tt.svc.GotLimit)
			}
			if tt.check != nil {
				tt.check(t, rr.Body.Bytes())
			}
		})
	}
}
