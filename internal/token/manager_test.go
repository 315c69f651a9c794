package token

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager() (*Manager, *clock, *kv.MemoryStore) {
	c := &clock{t: t0}
	store := kv.NewMemoryStore().WithClock(c.Now)
	return NewManager(store, DefaultTTL, nil).WithClock(c.Now), c, store
}

func draft() domain.OrderDraft {
	return domain.OrderDraft{
		StoreID: "store-1",
		Contact: domain.Contact{Email: "ana@example.com", FullName: "Ana"},
		Payment: domain.PaymentSelection{Method: "Yape"},
		Totals: domain.Totals{
			Subtotal: decimal.RequireFromString("20"),
			Total:    decimal.RequireFromString("20"),
		},
		Currency: "PEN",
		Channel:  domain.ChannelDirectMessage,
	}
}

func TestIssueThenConsumeOnce(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()

	id, err := m.Issue(ctx, draft(), "order-1", "store-1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	tok, err := m.ValidateAndConsume(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "order-1", tok.OrderID)
	assert.Equal(t, "Yape", tok.PaymentMethod)
	assert.Equal(t, "ana@example.com", tok.OrderSnapshot.Contact.Email)
	assert.True(t, tok.Used)

	again, err := m.ValidateAndConsume(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, again)

	_, err = m.Consume(ctx, id)
	assert.ErrorIs(t, err, domain.ErrAlreadyConsumed)
}

func TestIssuedIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := m.Issue(ctx, draft(), "order-1", "store-1")
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestScenario_ConsumeJustBeforeExpiry(t *testing.T) {
	ctx := context.Background()
	m, c, _ := newTestManager()

	id, err := m.Issue(ctx, draft(), "order-1", "store-1")
	require.NoError(t, err)

	c.Set(t0.Add(29 * time.Minute))
	tok, err := m.ValidateAndConsume(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, tok)

	c.Set(t0.Add(29*time.Minute + 30*time.Second))
	tok, err = m.ValidateAndConsume(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestExpiredTokenIsNilRegardlessOfUsed(t *testing.T) {
	ctx := context.Background()
	m, c, _ := newTestManager()

	unused, err := m.Issue(ctx, draft(), "order-1", "store-1")
	require.NoError(t, err)
	used, err := m.Issue(ctx, draft(), "order-2", "store-1")
	require.NoError(t, err)
	_, err = m.Consume(ctx, used)
	require.NoError(t, err)

	c.Set(t0.Add(DefaultTTL))
	for _, id := range []string{unused, used} {
		_, err := m.Consume(ctx, id)
		assert.ErrorIs(t, err, domain.ErrExpired)

		tok, err := m.ValidateAndConsume(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, tok)
	}
}

func TestUnknownToken(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()

	for _, id := range []string{"", "nope", "abc:used"} {
		_, err := m.Consume(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, id)
	}
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()
	id, err := m.Issue(ctx, draft(), "order-1", "store-1")
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.ValidateAndConsume(ctx, id)
			if err == nil && tok != nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	m, c, store := newTestManager()

	old, err := m.Issue(ctx, draft(), "order-1", "store-1")
	require.NoError(t, err)
	_, err = m.Consume(ctx, old)
	require.NoError(t, err)

	c.Set(t0.Add(20 * time.Minute))
	fresh, err := m.Issue(ctx, draft(), "order-2", "store-1")
	require.NoError(t, err)

	c.Set(t0.Add(35 * time.Minute))
	n, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err := store.Keys(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{KeyPrefix + fresh}, keys)
}

func TestRedisBackedManager(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	m := NewManager(kv.NewRedisStore(client, "sf"), DefaultTTL, nil)
	id, err := m.Issue(ctx, draft(), "order-1", "store-1")
	require.NoError(t, err)
	assert.Equal(t, 2*DefaultTTL, mr.TTL("sf:confirm:"+id))

	tok, err := m.ValidateAndConsume(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.True(t, mr.Exists("sf:confirm:"+id+":used"))

	tok, err = m.ValidateAndConsume(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestRunStopsOnCancel(t *testing.T) {
	m, _, _ := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
