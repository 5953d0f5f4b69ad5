package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	sentinel := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return errors.New("still failing")
	})
	assert.EqualError(t, err, "still failing")
	assert.Equal(t, 2, calls)
}

func TestDo_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, 3, time.Second, func() error { return errors.New("fail") })
	assert.ErrorIs(t, err, context.Canceled)
}
