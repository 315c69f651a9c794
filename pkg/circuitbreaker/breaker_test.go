package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Config{Failures: 2, Cooldown: time.Minute}, nil)
	boom := errors.New("boom")

	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.False(t, b.Open())
	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.True(t, b.Open())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := New("test", Config{Failures: 2, Cooldown: time.Minute}, nil)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	require.NoError(t, b.Execute(func() error { return nil }))
	_ = b.Execute(func() error { return boom })
	assert.False(t, b.Open())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := New("test", Config{Failures: 1, Cooldown: 20 * time.Millisecond}, nil)
	_ = b.Execute(func() error { return errors.New("boom") })
	require.True(t, b.Open())

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.False(t, b.Open())
}
