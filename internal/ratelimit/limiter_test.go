package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{ kv.Store }

func (brokenStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestAllow_WindowResets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := kv.NewMemoryStore().WithClock(func() time.Time { return now })
	l := New(store, "commit", 2, time.Minute, nil)

	assert.True(t, l.Allow(ctx, "s1"))
	assert.True(t, l.Allow(ctx, "s1"))
	assert.False(t, l.Allow(ctx, "s1"))
	assert.ErrorIs(t, l.Check(ctx, "s1"), ErrLimited)

	// other keys have their own budget
	assert.True(t, l.Allow(ctx, "s2"))

	now = now.Add(61 * time.Second)
	assert.True(t, l.Allow(ctx, "s1"))
}

func TestAllow_Disabled(t *testing.T) {
	l := New(kv.NewMemoryStore(), "off", 0, time.Minute, nil)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(context.Background(), "s1"))
	}

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow(context.Background(), "s1"))
}

func TestAllow_FailsOpen(t *testing.T) {
	l := New(brokenStore{}, "commit", 1, time.Minute, nil)
	assert.True(t, l.Allow(context.Background(), "s1"))
	assert.True(t, l.Allow(context.Background(), "s1"))
}

func TestAllow_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	l := New(kv.NewRedisStore(client, "storefront"), "return", 1, time.Minute, nil)

	require.True(t, l.Allow(ctx, "10.0.0.1"))
	assert.False(t, l.Allow(ctx, "10.0.0.1"))
	assert.True(t, mr.Exists("storefront:ratelimit:return:10.0.0.1"))

	mr.FastForward(time.Minute + time.Second)
	assert.True(t, l.Allow(ctx, "10.0.0.1"))
}
