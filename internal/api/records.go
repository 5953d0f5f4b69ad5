// records.go - Usage status and stored analyses

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/bosocmputer/lease_analyzer/internal/storage"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// UsageHandler reports the caller's tier and counters after lazy reset
func (h *Handler) UsageHandler(c *gin.Context) {
	profile, err := h.Profiles.GetOrCreate(c.Request.Context(), h.userID(c))
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to load profile", "error", err)
		c.JSON(http.StatusServiceUnavailable, errorBody(c, "Service temporarily unavailable. Please try again later."))
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": entitlement.Status(profile, time.Now())})
}

// ListAnalysesHandler returns the caller's analyses, newest first
func (h *Handler) ListAnalysesHandler(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorBody(c, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := h.Analyses.ListByOwner(c.Request.Context(), h.userID(c), limit)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": records, "count": len(records)})
}

func (h *Handler) GetAnalysisHandler(c *gin.Context) {
	rec, err := h.Analyses.Get(c.Request.Context(), c.Param("id"), h.userID(c))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteAnalysisHandler(c *gin.Context) {
	if err := h.Analyses.Delete(c.Request.Context(), c.Param("id"), h.userID(c)); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody(c, "Not found"))
	case errors.Is(err, storage.ErrForbidden):
		c.JSON(http.StatusForbidden, errorBody(c, "Forbidden"))
	default:
		logging.L(c.Request.Context()).Error("storage request failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(c, "Internal server error"))
	}
}
