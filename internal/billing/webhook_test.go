package billing

import (
	"testing"

	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhook(t *testing.T) {
	variants := map[string]string{"101": "premium", "202": "pro"}

	up, err := ParseWebhook([]byte(`{"id":"evt_9","data":{"attributes":{"user_id":"alice","variant_id":101,"total":999,"currency":"USD"}}}`), variants)
	require.NoError(t, err)
	assert.Equal(t, "evt_9", up.EventID)
	assert.Equal(t, "alice", up.UserID)
	assert.Equal(t, entitlement.TierPremium, up.Tier)
	assert.Equal(t, "101", up.VariantID)
	assert.Equal(t, int64(999), up.Amount)

	up, err = ParseWebhook([]byte(`{"id":"evt_10","data":{"attributes":{"user_id":"bob","variant_id":"202"}}}`), variants)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPro, up.Tier)

	up, err = ParseWebhook([]byte(`{"id":"evt_11","data":{"attributes":{"user_id":"bob","variant_id":"commercial"}}}`), variants)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierCommercial, up.Tier)
}

func TestParseWebhook_Errors(t *testing.T) {
	variants := map[string]string{"101": "premium"}

	_, err := ParseWebhook([]byte(`not json`), variants)
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = ParseWebhook([]byte(`{"data":{"attributes":{"user_id":"a","variant_id":101}}}`), variants)
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = ParseWebhook([]byte(`{"id":"e","data":{"attributes":{"variant_id":101}}}`), variants)
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = ParseWebhook([]byte(`{"id":"e","data":{"attributes":{"user_id":"a","variant_id":999}}}`), variants)
	assert.ErrorIs(t, err, ErrUnknownVariant)
}
