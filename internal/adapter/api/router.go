package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/sensor-recorder/internal/adapter/api/handler"
	"github.com/V4T54L/sensor-recorder/internal/adapter/api/middleware"
)

// NewAdminRouter creates the HTTP router for the recorder's admin endpoints.
// A nil gatherer serves the default Prometheus registry; a nil broker leaves
// the live stats stream unregistered.
func NewAdminRouter(svc handler.RecorderService, gatherer prometheus.Gatherer, broker *handler.StatsBroker, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	recordingHandler := handler.NewRecordingHandler(svc, logger)

	mux.HandleFunc("GET /health", recordingHandler.HealthCheck)
	mux.HandleFunc("GET /status", recordingHandler.GetStatus)
	mux.HandleFunc("GET /recordings", recordingHandler.ListRecordings)
	if broker != nil {
		mux.Handle("GET /status/stream", broker)
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return middleware.Logging(logger)(mux)
}
