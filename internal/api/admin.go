// admin.go - Operator endpoints

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/gin-gonic/gin"
)

// SetQuotaRequest is the body of PUT /api/admin/users/:id/quota
type SetQuotaRequest struct {
	MaxAllowedActions *int `json:"maxAllowedActions"`
}

// SetQuotaHandler sets the monthly allowance of a commercial account
func (h *Handler) SetQuotaHandler(c *gin.Context) {
	var body SetQuotaRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.MaxAllowedActions == nil {
		c.JSON(http.StatusBadRequest, errorBody(c, "maxAllowedActions is required"))
		return
	}

	ctx := c.Request.Context()
	target := c.Param("id")
	err := h.Profiles.SetMaxAllowedActions(ctx, target, *body.MaxAllowedActions)
	if errors.Is(err, entitlement.ErrInvalidCap) {
		c.JSON(http.StatusBadRequest, errorBody(c, "maxAllowedActions must not be negative"))
		return
	}
	if err != nil {
		logging.L(ctx).Error("failed to set quota", "target_user", target, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(c, "Failed to update quota"))
		return
	}

	logging.L(ctx).Info("quota updated", "target_user", target, "max_allowed_actions", *body.MaxAllowedActions)

	profile, err := h.Profiles.GetOrCreate(ctx, target)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "usage": entitlement.Status(profile, time.Now())})
}
