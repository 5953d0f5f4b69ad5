package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	ProviderStripe = "stripe"

	// MaxStripeBodyBytes bounds webhook bodies read by the handler
	MaxStripeBodyBytes = int64(65536)
)

var ErrNotConfigured = errors.New("billing: stripe not configured")

// InitStripe wires the Stripe API key and bounds every API call by timeout
func InitStripe(secretKey string, timeout time.Duration) {
	stripe.Key = secretKey
	stripe.SetHTTPClient(&http.Client{Timeout: timeout})
}

// Stripe creates checkout sessions and turns signed Stripe events into tier changes
type Stripe struct {
	webhookSecret string
	priceTiers    map[string]string
	frontendURL   string
	newSession    func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripe(webhookSecret string, priceTiers map[string]string, frontendURL string) *Stripe {
	return &Stripe{
		webhookSecret: webhookSecret,
		priceTiers:    priceTiers,
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		newSession:    session.New,
	}
}

// CreateCheckout starts a subscription checkout for priceID. The user and
// target tier travel in metadata so the completion event can be applied
// without a customer lookup.
func (s *Stripe) CreateCheckout(ctx context.Context, userID, email, priceID string) (string, error) {
	if s.frontendURL == "" {
		return "", ErrNotConfigured
	}
	mapped, known := s.priceTiers[priceID]
	tier, ok := entitlement.ParseTier(mapped)
	if !known || !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVariant, priceID)
	}

	meta := map[string]string{"user_id": userID, "tier": string(tier)}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.frontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.frontendURL + "/payment/cancel"),
		Metadata:   meta,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
		},
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.Context = ctx

	sess, err := s.newSession(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.URL, nil
}

// ParseEvent verifies the Stripe-Signature header and maps the event to a
// tier change. Events that carry no tier change return (nil, nil).
func (s *Stripe) ParseEvent(body []byte, sigHeader string) (*Upgrade, error) {
	if s.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(body, sigHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		userID := sess.ClientReferenceID
		if userID == "" {
			userID = sess.Metadata["user_id"]
		}
		tier, ok := entitlement.ParseTier(sess.Metadata["tier"])
		if userID == "" || !ok {
			return nil, ErrMalformedEvent
		}
		return &Upgrade{
			Provider: ProviderStripe,
			EventID:  event.ID,
			UserID:   userID,
			Tier:     tier,
			Amount:   sess.AmountTotal,
			Currency: string(sess.Currency),
		}, nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		userID := sub.Metadata["user_id"]
		if userID == "" {
			return nil, ErrMalformedEvent
		}
		return &Upgrade{
			Provider: ProviderStripe,
			EventID:  event.ID,
			UserID:   userID,
			Tier:     entitlement.TierFree,
		}, nil
	}
	return nil, nil
}
