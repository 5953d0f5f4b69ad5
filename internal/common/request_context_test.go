package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bosocmputer/lease_analyzer/configs"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestContext_UsesContextRequestID(t *testing.T) {
	ctx := logging.WithRequestID(context.Background(), "req-1")
	rc := NewRequestContext(ctx, "user-1")
	assert.Equal(t, "req-1", rc.RequestID)
	assert.Equal(t, "user-1", rc.UserID)

	generated := NewRequestContext(context.Background(), "user-2")
	assert.NotEmpty(t, generated.RequestID)
}

func TestSteps_RecordTokensAndErrors(t *testing.T) {
	rc := NewRequestContext(context.Background(), "user-1")
	rc.elapsed = func(time.Time) time.Duration { return 40 * time.Millisecond }

	rc.StartStep("llm")
	rc.EndStep(StepSuccess, &TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CostUSD: 0.01}, nil)

	rc.StartStep("persist")
	rc.EndStep(StepFailed, nil, errors.New("store down"))

	require.Len(t, rc.Steps, 2)
	assert.Equal(t, 15, rc.Tokens.TotalTokens)
	assert.Equal(t, "store down", rc.Steps[1].Error)

	s := rc.Summary()
	assert.Equal(t, []string{"llm"}, s.Completed)
	assert.Equal(t, int64(40), s.StepDurations["persist"])
	assert.Equal(t, int64(40), s.TotalDurationMS)
	assert.InDelta(t, 0.01, s.Tokens.CostUSD, 1e-9)
}

func TestEndStep_NoopWithoutStart(t *testing.T) {
	rc := NewRequestContext(context.Background(), "user-1")
	rc.EndStep(StepSuccess, &TokenUsage{TotalTokens: 9}, nil)
	assert.Empty(t, rc.Steps)
	assert.Zero(t, rc.Tokens.TotalTokens)
}

func TestCalculateTokenCost(t *testing.T) {
	in, out := configs.GEMINI_INPUT_PRICE_PER_MILLION, configs.GEMINI_OUTPUT_PRICE_PER_MILLION
	t.Cleanup(func() {
		configs.GEMINI_INPUT_PRICE_PER_MILLION, configs.GEMINI_OUTPUT_PRICE_PER_MILLION = in, out
	})
	configs.GEMINI_INPUT_PRICE_PER_MILLION, configs.GEMINI_OUTPUT_PRICE_PER_MILLION = 0.5, 2

	u := CalculateTokenCost(2_000_000, 1_000_000)
	assert.Equal(t, 3_000_000, u.TotalTokens)
	assert.InDelta(t, 3.0, u.CostUSD, 1e-9)
}
