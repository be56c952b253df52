// Package handler provides HTTP handlers for the pushgate API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/pushgate/pushgate/internal/api/models"
	"github.com/pushgate/pushgate/internal/api/response"
	"github.com/pushgate/pushgate/internal/provider/resilience"
)

// ReadinessChecker reports whether a dependency is ready to serve.
type ReadinessChecker func(ctx context.Context) error

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	upstreams *resilience.Registry
	readiness map[string]ReadinessChecker
}

// NewOpsHandler creates a new OpsHandler. The upstream registry may be nil
// when no deliveries have been made yet.
func NewOpsHandler(version, buildTime string, upstreams *resilience.Registry, readiness map[string]ReadinessChecker) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		upstreams: upstreams,
		readiness: readiness,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := models.HealthStatusOK
	details := make(map[string]any, len(h.readiness))
	for name, check := range h.readiness {
		if err := check(ctx); err != nil {
			status = models.HealthStatusFail
			details[name] = err.Error()
			continue
		}
		details[name] = "ok"
	}

	health := models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	}

	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, health)
}

// SystemStatus handles GET /v1/ops/status - push service upstream status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Upstreams: []models.UpstreamStatus{},
	}

	if h.upstreams != nil {
		for _, health := range h.upstreams.GetAllHealth() {
			upstream := models.UpstreamStatus{
				Host:         health.Name,
				Status:       upstreamStatus(health),
				CircuitState: health.CircuitState.String(),
				LastError:    health.LastError,
			}
			if health.LastSuccessAt != nil {
				t := models.Timestamp(*health.LastSuccessAt)
				upstream.LastSuccessAt = &t
			}
			if health.LastFailureAt != nil {
				t := models.Timestamp(*health.LastFailureAt)
				upstream.LastFailureAt = &t
			}

			status.Upstreams = append(status.Upstreams, upstream)

			// An open circuit to one push service degrades the whole
			// subsystem but does not fail it.
			if !health.IsHealthy() && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func upstreamStatus(health *resilience.UpstreamHealth) models.HealthStatus {
	switch {
	case health.IsUnhealthy():
		return models.HealthStatusFail
	case health.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}
