package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/sift/pkg/logger"
	"github.com/okian/sift/pkg/metrics"
)

// HealthHandler answers liveness, readiness and metrics probes.
type HealthHandler struct {
	pinger Pinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

type statusResponse struct {
	Status string `json:"status"`
}

// HandleHealth handles GET /health. It never consults the datastore.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "healthy"})
}

// HandleReady handles GET /readyz by pinging the datastore.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	const op = "api.readyz"
	if err := h.pinger.Ping(r.Context()); err != nil {
		logger.Get().Warn(r.Context(), "datastore not ready", logger.Error(WrapKind(op, ErrDatastore, err)))
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}

// MetricsHandler serves the custom metrics registry.
func (h *HealthHandler) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
