package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edustack/tutord/internal/health"
)

type HealthHandler struct {
	monitor *health.Monitor
}

func NewHealthHandler(monitor *health.Monitor) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// Check returns the dependency report as a bare object; probes and
// load balancers read it without the envelope.
func (h *HealthHandler) Check(c *gin.Context) {
	report := h.monitor.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
