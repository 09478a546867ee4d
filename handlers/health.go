package handlers

import (
	"net/http"

	"github.com/upb/tryon-gateway/services"
	"github.com/upb/tryon-gateway/services/tryon"
	"github.com/upb/tryon-gateway/utils"
	"go.uber.org/zap"
)

// Version is reported by the status endpoint
const Version = "0.1.0"

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Error  string            `json:"error,omitempty"`
}

// StatusResponse represents the application status response
type StatusResponse struct {
	Version     string               `json:"version"`
	Environment string               `json:"environment"`
	Providers   []tryon.VendorStatus `json:"providers"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	vendors     VendorDirectory
	environment string
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(vendors VendorDirectory, environment string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		vendors:     vendors,
		environment: environment,
		logger:      logger,
	}
}

// HandleHealth handles GET /healthz
// Liveness check - always returns 200 if the process is serving
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		h.logger.Error("failed to write health response", zap.Error(err))
	}
}

// HandleReadiness handles GET /readyz
// Ready once at least one vendor has a credential
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	response := ReadinessResponse{
		Status: "ready",
		Checks: map[string]string{"providers": "configured"},
	}
	status := http.StatusOK

	if !h.vendors.Ready() {
		err := services.ErrNoVendorsConfigured
		response.Status = "not_ready"
		response.Checks["providers"] = "none_configured"
		response.Error = services.GetErrorMessage(err)
		status = http.StatusServiceUnavailable
		h.logger.Warn("readiness check failed", zap.Error(err))
	}

	if err := utils.WriteJSON(w, status, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Version:     Version,
		Environment: h.environment,
		Providers:   h.vendors.Vendors(),
	}

	if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write status response", zap.Error(err))
	}
}
