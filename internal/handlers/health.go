package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/store"
)

const version = "1.2.0"

var startTime = time.Now()

// HealthHandler provides health check endpoints
type HealthHandler struct {
	store  store.Store
	logger *zap.SugaredLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(st store.Store, logger *zap.SugaredLogger) *HealthHandler {
	return &HealthHandler{store: st, logger: logger}
}

// Check handles GET /api/v1/health (liveness probe)
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthStatus{
		Status:  "ok",
		Version: version,
		Uptime:  time.Since(startTime).String(),
	})
}

// Ready handles GET /api/v1/health/ready (readiness probe)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, models.HealthStatus{
			Status:   "not ready",
			Version:  version,
			Database: "disconnected",
		})
		return
	}

	respondJSON(w, http.StatusOK, models.HealthStatus{
		Status:   "ready",
		Version:  version,
		Uptime:   time.Since(startTime).String(),
		Database: "connected",
	})
}
