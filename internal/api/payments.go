// payments.go - Checkout and payment provider webhooks

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bosocmputer/lease_analyzer/internal/auth"
	"github.com/bosocmputer/lease_analyzer/internal/billing"
	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/bosocmputer/lease_analyzer/internal/metrics"
	"github.com/gin-gonic/gin"
)

// HeaderSignature carries the hex HMAC-SHA256 of the raw webhook body
const HeaderSignature = "X-Signature"

// CheckoutRequest is the body of POST /api/payments/checkout
type CheckoutRequest struct {
	PriceID string `json:"priceId" binding:"required"`
}

// PaymentWebhookHandler applies a signed upgrade event exactly once
func (h *Handler) PaymentWebhookHandler(c *gin.Context) {
	if h.Billing == nil || h.WebhookSecret == "" {
		unavailable(c, "payment webhook")
		return
	}
	ctx := c.Request.Context()
	log := logging.L(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, billing.MaxStripeBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(c, "invalid body"))
		return
	}

	if err := billing.VerifySignature(h.WebhookSecret, body, c.GetHeader(HeaderSignature)); err != nil {
		log.Warn("webhook signature rejected")
		metrics.PaymentEventsTotal.WithLabelValues(billing.ProviderWebhook, "invalid_signature").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	up, err := billing.ParseWebhook(body, h.VariantTiers)
	if err != nil {
		log.Warn("webhook payload rejected", "error", err)
		metrics.PaymentEventsTotal.WithLabelValues(billing.ProviderWebhook, "rejected").Inc()
		c.JSON(http.StatusBadRequest, errorBody(c, err.Error()))
		return
	}

	h.applyUpgrade(c, up)
}

// StripeWebhookHandler verifies Stripe-Signature and applies tier changes
func (h *Handler) StripeWebhookHandler(c *gin.Context) {
	if h.Billing == nil || h.Stripe == nil {
		unavailable(c, "stripe")
		return
	}
	log := logging.L(c.Request.Context())

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, billing.MaxStripeBodyBytes))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorBody(c, "failed to read body"))
		return
	}

	up, err := h.Stripe.ParseEvent(body, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		log.Warn("stripe signature rejected", "error", err)
		metrics.PaymentEventsTotal.WithLabelValues(billing.ProviderStripe, "invalid_signature").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	case errors.Is(err, billing.ErrNotConfigured):
		unavailable(c, "stripe")
		return
	case err != nil:
		log.Warn("stripe event rejected", "error", err)
		metrics.PaymentEventsTotal.WithLabelValues(billing.ProviderStripe, "rejected").Inc()
		c.JSON(http.StatusBadRequest, errorBody(c, err.Error()))
		return
	case up == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	h.applyUpgrade(c, *up)
}

func (h *Handler) applyUpgrade(c *gin.Context, up billing.Upgrade) {
	status, err := h.Billing.ApplyUpgrade(c.Request.Context(), up)
	switch {
	case errors.Is(err, billing.ErrMalformedEvent), errors.Is(err, entitlement.ErrInvalidTier):
		c.JSON(http.StatusBadRequest, errorBody(c, err.Error()))
	case err != nil:
		// non-2xx so the provider redelivers
		logging.L(c.Request.Context()).Error("failed to apply upgrade", "event_id", up.EventID, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(c, "failed to apply upgrade"))
	default:
		c.JSON(http.StatusOK, gin.H{"status": status})
	}
}

// CheckoutHandler starts a Stripe checkout for the caller
func (h *Handler) CheckoutHandler(c *gin.Context) {
	if h.Stripe == nil {
		unavailable(c, "stripe")
		return
	}
	var body CheckoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(c, "priceId is required"))
		return
	}

	ctx := c.Request.Context()
	var email string
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		email = claims.Email
	}

	url, err := h.Stripe.CreateCheckout(ctx, h.userID(c), email, body.PriceID)
	switch {
	case errors.Is(err, billing.ErrUnknownVariant):
		c.JSON(http.StatusBadRequest, errorBody(c, "unknown price"))
	case errors.Is(err, billing.ErrNotConfigured):
		unavailable(c, "stripe")
	case err != nil:
		logging.L(ctx).Error("checkout creation failed", "error", err)
		c.JSON(http.StatusBadGateway, errorBody(c, "failed to create checkout session"))
	default:
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}

// ReceiptsHandler lists the caller's processed payments
func (h *Handler) ReceiptsHandler(c *gin.Context) {
	if h.Payments == nil {
		unavailable(c, "payments")
		return
	}
	receipts, err := h.Payments.ListReceipts(c.Request.Context(), h.userID(c))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}
