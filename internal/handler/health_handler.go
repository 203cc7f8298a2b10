package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"materialflow/internal/middleware"
)

const readinessTimeout = 2 * time.Second

// HealthCheck is one dependency checked by the readiness endpoint.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	checks []HealthCheck
}

// NewHealthHandler creates a HealthHandler probing checks in order.
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz. Every check is run; any failure makes the
// service unavailable. Error details stay in the logs.
func (h *HealthHandler) Readiness(c *gin.Context) {
	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		err := check.Ping(ctx)
		cancel()
		if err != nil {
			middleware.LoggerFrom(c).Warn("health.Readiness: check failed", zap.String("check", check.Name), zap.Error(err))
			results[check.Name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[check.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}
