// status.go - Health endpoint

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports every registered dependency check
func (h *Handler) HealthHandler(c *gin.Context) {
	if h.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "lease-analyzer"})
		return
	}

	healthy, checks := h.Health.CheckAll(c.Request.Context())
	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"service": "lease-analyzer",
		"checks":  checks,
	})
}
