package billing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
)

const ProviderWebhook = "webhook"

type webhookPayload struct {
	ID   string `json:"id"`
	Data struct {
		Attributes struct {
			UserID    string      `json:"user_id"`
			VariantID flexibleID `json:"variant_id"`
			Total     int64       `json:"total"`
			Currency  string      `json:"currency"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseWebhook decodes a verified generic webhook body. The variant id is
// mapped to a tier through variants; a variant that is already a tier name
// is accepted as is.
func ParseWebhook(body []byte, variants map[string]string) (Upgrade, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Upgrade{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	attrs := p.Data.Attributes
	if p.ID == "" || attrs.UserID == "" || attrs.VariantID == "" {
		return Upgrade{}, ErrMalformedEvent
	}

	variant := string(attrs.VariantID)
	tier, err := TierForVariant(variant, variants)
	if err != nil {
		return Upgrade{}, err
	}

	return Upgrade{
		Provider:  ProviderWebhook,
		EventID:   p.ID,
		UserID:    attrs.UserID,
		Tier:      tier,
		VariantID: variant,
		Amount:    attrs.Total,
		Currency:  attrs.Currency,
	}, nil
}

// flexibleID accepts a JSON string or number
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("variant_id: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

// TierForVariant resolves a product variant (or price id) to a tier
func TierForVariant(variant string, variants map[string]string) (entitlement.Tier, error) {
	if mapped, ok := variants[variant]; ok {
		variant = mapped
	}
	tier, ok := entitlement.ParseTier(variant)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}
	return tier, nil
}
