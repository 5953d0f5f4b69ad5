package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BurstThenEmpty(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.TryAcquire())
	}
	assert.False(t, rl.TryAcquire())
	assert.Equal(t, 0, rl.Available())
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter(2, 20*time.Millisecond)
	require.True(t, rl.TryAcquire())
	require.True(t, rl.TryAcquire())

	rl.pollInterval = 5 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rl.Wait(ctx))
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	require.True(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
