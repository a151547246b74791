package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/asktennis/asktennis/internal/models"
)

// Version is reported by /api/health and /api/status.
const Version = "1.0.0"

const healthCheckTimeout = 5 * time.Second

// Pinger is implemented by dependencies that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck names one dependency. A nil Pinger reports "disabled".
type HealthCheck struct {
	Name   string
	Pinger Pinger
}

// HealthHandler handles GET /api/health
type HealthHandler struct {
	checks []HealthCheck
}

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health pings every dependency and answers 503 when any of them fails.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"server": "ok"}
	overallStatus := "healthy"

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	for _, c := range h.checks {
		if c.Pinger == nil {
			checks[c.Name] = "disabled"
			continue
		}
		if err := c.Pinger.Ping(ctx); err != nil {
			checks[c.Name] = "unavailable: " + err.Error()
			overallStatus = "degraded"
			continue
		}
		checks[c.Name] = "ok"
	}

	statusCode := http.StatusOK
	if overallStatus == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	models.WriteJSON(w, statusCode, models.HealthResponse{
		Status:  overallStatus,
		Version: Version,
		Checks:  checks,
	})
}
