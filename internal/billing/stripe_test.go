package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

const testStripeSecret = "whsec_test"

func signedStripeEvent(t *testing.T, id, eventType, object string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		id, stripe.APIVersion, eventType, object))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testStripeSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestStripe_ParseCheckoutCompleted(t *testing.T) {
	s := NewStripe(testStripeSecret, nil, "https://app.example")
	body, header := signedStripeEvent(t, "evt_cs", "checkout.session.completed",
		`{"id":"cs_1","object":"checkout.session","client_reference_id":"alice","amount_total":1900,"currency":"usd","metadata":{"tier":"premium","user_id":"alice"}}`)

	up, err := s.ParseEvent(body, header)
	require.NoError(t, err)
	require.NotNil(t, up)
	assert.Equal(t, ProviderStripe, up.Provider)
	assert.Equal(t, "evt_cs", up.EventID)
	assert.Equal(t, "alice", up.UserID)
	assert.Equal(t, entitlement.TierPremium, up.Tier)
	assert.Equal(t, int64(1900), up.Amount)
}

func TestStripe_ParseSubscriptionDeleted(t *testing.T) {
	s := NewStripe(testStripeSecret, nil, "https://app.example")
	body, header := signedStripeEvent(t, "evt_sub", "customer.subscription.deleted",
		`{"id":"sub_1","object":"subscription","metadata":{"user_id":"alice"}}`)

	up, err := s.ParseEvent(body, header)
	require.NoError(t, err)
	require.NotNil(t, up)
	assert.Equal(t, entitlement.TierFree, up.Tier)
}

func TestStripe_IgnoresOtherEvents(t *testing.T) {
	s := NewStripe(testStripeSecret, nil, "https://app.example")
	body, header := signedStripeEvent(t, "evt_x", "invoice.paid", `{"id":"in_1","object":"invoice"}`)

	up, err := s.ParseEvent(body, header)
	require.NoError(t, err)
	assert.Nil(t, up)
}

func TestStripe_RejectsBadSignature(t *testing.T) {
	s := NewStripe(testStripeSecret, nil, "https://app.example")
	body, _ := signedStripeEvent(t, "evt_cs", "checkout.session.completed", `{"id":"cs_1","object":"checkout.session"}`)

	_, err := s.ParseEvent(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = NewStripe("", nil, "").ParseEvent(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStripe_CreateCheckout(t *testing.T) {
	s := NewStripe(testStripeSecret, map[string]string{"price_premium": "premium"}, "https://app.example/")

	var got *stripe.CheckoutSessionParams
	s.newSession = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = p
		return &stripe.CheckoutSession{URL: "https://checkout.stripe.test/cs_1"}, nil
	}

	url, err := s.CreateCheckout(context.Background(), "alice", "a@example.com", "price_premium")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", url)
	require.NotNil(t, got)
	assert.Equal(t, "alice", *got.ClientReferenceID)
	assert.Equal(t, "premium", got.Metadata["tier"])
	assert.Equal(t, "alice", got.SubscriptionData.Metadata["user_id"])
	assert.Equal(t, "https://app.example/payment/cancel", *got.CancelURL)

	_, err = s.CreateCheckout(context.Background(), "alice", "", "price_unknown")
	assert.ErrorIs(t, err, ErrUnknownVariant)

	s.newSession = func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, errors.New("api down")
	}
	_, err = s.CreateCheckout(context.Background(), "alice", "", "price_premium")
	assert.Error(t, err)
}
