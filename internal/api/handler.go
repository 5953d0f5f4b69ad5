// handler.go - HTTP handlers and their dependencies

package api

import (
	"context"
	"net/http"

	"github.com/bosocmputer/lease_analyzer/internal/auth"
	"github.com/bosocmputer/lease_analyzer/internal/billing"
	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/bosocmputer/lease_analyzer/internal/health"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/bosocmputer/lease_analyzer/internal/orchestrator"
	"github.com/bosocmputer/lease_analyzer/internal/storage"
	"github.com/gin-gonic/gin"
)

// Analyzer runs one analysis request
type Analyzer interface {
	Analyze(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error)
}

// Handler holds everything the routes need. Optional collaborators may be
// nil; their routes then answer 503.
type Handler struct {
	Analyzer  Analyzer
	Extractor orchestrator.DocumentExtractor
	Profiles  entitlement.Store
	Analyses  storage.AnalysisStore
	Templates storage.TemplateStore
	Payments  storage.PaymentStore
	Billing   *billing.Service
	Stripe    *billing.Stripe
	Health    *health.Registry

	MaxUploadBytes int64
	MaxImageBytes  int64

	WebhookSecret string
	VariantTiers  map[string]string
}

// errorBody is the common error shape; details are only added for client errors
func errorBody(c *gin.Context, msg string) gin.H {
	return gin.H{
		"error":      msg,
		"request_id": logging.RequestID(c.Request.Context()),
	}
}

func (h *Handler) userID(c *gin.Context) string {
	return auth.UserID(c.Request.Context())
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, errorBody(c, what+" is not configured"))
}
