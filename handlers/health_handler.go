package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/utils"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// HealthResponse represents the liveness response
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ReadinessResponse represents the readiness response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// PersonaLister reports the configured personas
type PersonaLister interface {
	List() []models.Persona
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db       *sql.DB
	personas PersonaLister
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db is nil when audit
// persistence is disabled.
func NewHealthHandler(db *sql.DB, personas PersonaLister, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:       db,
		personas: personas,
		logger:   logger,
	}
}

// HandleHealth handles GET /health
// Always returns 200 while the process is serving.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "sme-plug",
		Version: Version,
	})
}

// HandleReadiness handles GET /health/ready
// Checks the audit database when one is configured and that personas are loaded.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	switch {
	case h.db == nil:
		checks["database"] = "disabled"
	case h.checkDatabase(ctx) != nil:
		checks["database"] = "unhealthy"
		allHealthy = false
	default:
		checks["database"] = "healthy"
	}

	if h.personas == nil || len(h.personas.List()) == 0 {
		checks["personas"] = "none_configured"
		allHealthy = false
	} else {
		checks["personas"] = "loaded"
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, httpStatus, ReadinessResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		return err
	}

	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		return err
	}
	return nil
}
