package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func failing(context.Context) error { return errBackend }
func passing(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New("test", WithFailureThreshold(2), WithCoolDown(time.Minute))
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, failing), errBackend)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, failing), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	var transitions []State
	cb := New("test",
		WithFailureThreshold(1),
		WithCoolDown(10*time.Second),
		WithOnStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ctx, passing))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	cb := New("test", WithFailureThreshold(1), WithCoolDown(time.Second))
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	now = now.Add(2 * time.Second)
	require.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IsFailureFiltersErrors(t *testing.T) {
	benign := errors.New("lock held")
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, benign) }),
	)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return benign })
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ExecuteWithFallback(t *testing.T) {
	cb := New("test", WithFailureThreshold(1), WithCoolDown(time.Hour))
	ctx := context.Background()
	_ = cb.Execute(ctx, failing)

	fellBack := false
	err := cb.ExecuteWithFallback(ctx, passing, func(err error) error {
		fellBack = true
		assert.ErrorIs(t, err, ErrCircuitOpen)
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, fellBack)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}
