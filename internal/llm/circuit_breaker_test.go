package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "closed", cb.State())
	assert.Equal(t, uint64(1), cb.Metrics().TotalSuccesses)
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")
	fail := func() (interface{}, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(context.Background(), fail)
		require.Error(t, err)
	}
	assert.Equal(t, "open", cb.State())

	_, err := cb.Execute(context.Background(), fail)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_RateLimitDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("test")
	throttled := func() (interface{}, error) {
		return nil, fmt.Errorf("openai returned status 429: %w", ErrRateLimited)
	}

	for i := 0; i < 10; i++ {
		_, err := cb.Execute(context.Background(), throttled)
		require.ErrorIs(t, err, ErrRateLimited)
	}
	assert.Equal(t, "closed", cb.State())
	assert.Equal(t, uint64(10), cb.Metrics().TotalFailures)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		Name:                 "test",
		MaxFailures:          1,
		Timeout:              50 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})

	_, err := cb.Execute(context.Background(), func() (interface{}, error) { return nil, errors.New("down") })
	require.Error(t, err)
	require.Equal(t, "open", cb.State())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, "half-open", cb.State())

	_, err = cb.Execute(context.Background(), func() (interface{}, error) { return "up", nil })
	require.NoError(t, err)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, "closed", cb.State())
}
