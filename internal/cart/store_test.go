package cart

import (
	"context"
	"errors"
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

type failingStore struct {
	kv.Store
}

func (f failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("disk full")
}

func TestStore_PersistsAndRehydrates(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	c, err := Open(ctx, store, "sess-1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = c.AddLine(ctx, item("A", "", "10.00"), 2)
	require.NoError(t, err)
	_, err = c.AddLine(ctx, item("B", "large", "15.00"), 1)
	require.NoError(t, err)

	reopened, err := Open(ctx, store, "sess-1")
	require.NoError(t, err)
	snap := reopened.Snapshot()
	assert.Len(t, snap.Lines, 2)
	assert.True(t, decimal.RequireFromString("35").Equal(snap.Subtotal))

	other, err := Open(ctx, store, "sess-2")
	require.NoError(t, err)
	assert.True(t, other.IsEmpty(), "carts are isolated per session")
}

func TestStore_WriteFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, failingStore{kv.NewMemoryStore()}, "sess-1")
	require.NoError(t, err)

	snap, err := c.AddLine(ctx, item("A", "", "3.00"), 1)
	assert.ErrorIs(t, err, domain.ErrTransientWrite)
	assert.Equal(t, 1, snap.TotalItems)
	assert.False(t, c.IsEmpty())
}

func TestStore_ValidationErrorLeavesCart(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, kv.NewMemoryStore(), "sess-1")
	require.NoError(t, err)
	_, err = c.AddLine(ctx, item("A", "", "3.00"), 1)
	require.NoError(t, err)

	snap, err := c.AddLine(ctx, item("B", "", "3.00"), 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 1, snap.TotalItems)
}

func TestStore_CorruptSlot(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "cart:s", []byte("{not json"), 0))

	_, err := Open(ctx, store, "s")
	assert.Error(t, err)
}

func TestStore_DiscardAndRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := kv.NewRedisStore(client, "")

	c, err := Open(ctx, store, "s1")
	require.NoError(t, err)
	_, err = c.AddLine(ctx, item("A", "", "1.00"), 1)
	require.NoError(t, err)
	assert.True(t, mr.Exists("cart:s1"))
	assert.Equal(t, DefaultRetention, mr.TTL("cart:s1"))

	require.NoError(t, Discard(ctx, store, "s1"))
	c, err = Open(ctx, store, "s1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}
