package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/bosocmputer/lease_analyzer/internal/metrics"
	"github.com/bosocmputer/lease_analyzer/internal/storage"
)

const (
	StatusProcessed = "processed"
	StatusDuplicate = "duplicate"
)

var (
	ErrDuplicateEvent = storage.ErrDuplicateEvent
	ErrMalformedEvent = errors.New("billing: malformed event")
	ErrUnknownVariant = errors.New("billing: variant does not map to a tier")
)

// Upgrade is one verified tier change carried by a provider event
type Upgrade struct {
	Provider  string
	EventID   string
	UserID    string
	Tier      entitlement.Tier
	VariantID string
	Amount    int64
	Currency  string
}

// Service applies upgrades idempotently by (provider, event id)
type Service struct {
	profiles entitlement.Store
	payments storage.PaymentStore
}

func NewService(profiles entitlement.Store, payments storage.PaymentStore) *Service {
	return &Service{profiles: profiles, payments: payments}
}

// ApplyUpgrade claims the event, sets the tier and stores a receipt. A
// replayed event returns StatusDuplicate without touching the profile. When
// the tier write fails the claim is released so the provider's retry can
// succeed.
func (s *Service) ApplyUpgrade(ctx context.Context, up Upgrade) (string, error) {
	log := logging.L(ctx).With("provider", up.Provider, "event_id", up.EventID, "user_id", up.UserID)

	if up.EventID == "" || up.UserID == "" {
		return "", ErrMalformedEvent
	}
	if !up.Tier.Valid() {
		return "", fmt.Errorf("%w: tier %q", entitlement.ErrInvalidTier, up.Tier)
	}

	err := s.payments.MarkProcessed(ctx, storage.PaymentEvent{
		Provider: up.Provider,
		EventID:  up.EventID,
		UserID:   up.UserID,
		Tier:     string(up.Tier),
	})
	if errors.Is(err, storage.ErrDuplicateEvent) {
		log.Info("payment event already processed")
		metrics.PaymentEventsTotal.WithLabelValues(up.Provider, StatusDuplicate).Inc()
		return StatusDuplicate, nil
	}
	if err != nil {
		metrics.PaymentEventsTotal.WithLabelValues(up.Provider, "error").Inc()
		return "", err
	}

	if err := s.profiles.SetTier(ctx, up.UserID, up.Tier); err != nil {
		if uerr := s.payments.Unmark(ctx, up.Provider, up.EventID); uerr != nil {
			log.Error("failed to release payment event", "error", uerr)
		}
		metrics.PaymentEventsTotal.WithLabelValues(up.Provider, "error").Inc()
		return "", fmt.Errorf("failed to apply tier %s: %w", up.Tier, err)
	}

	receipt := &storage.Receipt{
		Provider:  up.Provider,
		EventID:   up.EventID,
		UserID:    up.UserID,
		Tier:      string(up.Tier),
		VariantID: up.VariantID,
		Amount:    up.Amount,
		Currency:  up.Currency,
	}
	if err := s.payments.SaveReceipt(ctx, receipt); err != nil {
		log.Warn("failed to store receipt", "error", err)
		metrics.SideEffectFailuresTotal.WithLabelValues("receipt").Inc()
	}

	log.Info("subscription tier updated", "tier", up.Tier)
	metrics.PaymentEventsTotal.WithLabelValues(up.Provider, StatusProcessed).Inc()
	return StatusProcessed, nil
}
