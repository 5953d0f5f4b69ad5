// router.go - Route table

package api

import (
	"log/slog"

	"github.com/bosocmputer/lease_analyzer/internal/auth"
	"github.com/bosocmputer/lease_analyzer/internal/metrics"
	"github.com/bosocmputer/lease_analyzer/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RouterConfig holds the cross-cutting pieces of the router
type RouterConfig struct {
	Logger         *slog.Logger
	Verifier       auth.TokenVerifier
	AdminIDs       []string
	AnalyzeLimiter *ratelimit.UserLimiter
	AllowedOrigins string
}

// NewRouter builds the gin engine with every route mounted
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(cfg.Logger), CORS(cfg.AllowedOrigins), metrics.Middleware())

	// Root endpoint for SSL verification
	router.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})
	router.GET("/health", h.HealthHandler)
	router.GET("/metrics", metrics.Handler())

	// Signed by the payment provider, not by a user token
	router.POST("/api/payments/webhook", h.PaymentWebhookHandler)
	router.POST("/api/payments/stripe/webhook", h.StripeWebhookHandler)

	authed := router.Group("/api", auth.Middleware(cfg.Verifier))
	{
		analyze := authed.Group("", cfg.AnalyzeLimiter.Middleware())
		analyze.POST("/analyze", h.AnalyzeHandler)
		analyze.POST("/analyze-image", h.AnalyzeImageHandler)

		authed.GET("/usage", h.UsageHandler)

		authed.GET("/analyses", h.ListAnalysesHandler)
		authed.GET("/analyses/:id", h.GetAnalysisHandler)
		authed.DELETE("/analyses/:id", h.DeleteAnalysisHandler)

		authed.GET("/compliance/template", h.GetTemplateHandler)
		authed.POST("/compliance/template", h.UploadTemplateHandler)
		authed.DELETE("/compliance/template", h.DeleteTemplateHandler)

		authed.POST("/payments/checkout", h.CheckoutHandler)
		authed.GET("/payments/receipts", h.ReceiptsHandler)

		admin := authed.Group("/admin", auth.RequireAdmin(cfg.AdminIDs))
		admin.PUT("/users/:id/quota", h.SetQuotaHandler)
	}

	return router
}
