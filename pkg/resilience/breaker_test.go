package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	require.ErrorIs(t, b.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, b.State())
	require.ErrorIs(t, b.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, b.State())

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := NewBreaker(3, time.Minute)
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errBoom })
	}
	now = now.Add(2 * time.Minute)
	require.ErrorIs(t, b.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	isBoom := func(err error) bool { return errors.Is(err, errBoom) }

	require.ErrorIs(t, b.Execute(func() error { return errBoom }, isBoom), errBoom)
	assert.Equal(t, StateClosed, b.State())
}
