package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/fjod/go_cart/storefront/internal/order"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockReader struct {
	Messages []kafka.Message
	Err      error
	Closed   bool
}

func (m *MockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if m.Err != nil {
		return kafka.Message{}, m.Err
	}
	if len(m.Messages) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := m.Messages[0]
	m.Messages = m.Messages[1:]
	return msg, nil
}

func (m *MockReader) Close() error {
	m.Closed = true
	return nil
}

func committedMessage(t *testing.T, sessionID string) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(order.OrderCommitted{
		EventType: r.EventOrderCommitted,
		OrderID:   "order-1",
		SessionID: sessionID,
	})
	require.NoError(t, err)
	return kafka.Message{
		Key:     []byte("order-1"),
		Value:   payload,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(r.EventOrderCommitted)}},
	}
}

func seedCart(t *testing.T, store kv.Store, sessionID string) {
	t.Helper()
	c, err := cart.Open(context.Background(), store, sessionID)
	require.NoError(t, err)
	_, err = c.AddLine(context.Background(), domain.CartLine{
		ProductID: "sku-1", Name: "Mug", UnitPrice: decimal.NewFromInt(12), Currency: "USD",
	}, 2)
	require.NoError(t, err)
}

func discardInto(store kv.Store) DiscardFunc {
	return func(ctx context.Context, sessionID string) error {
		return cart.Discard(ctx, store, sessionID)
	}
}

func TestCartCleaner_DiscardsCommittedSessionCart(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	seedCart(t, store, "sess-a")
	seedCart(t, store, "sess-b")

	reader := &MockReader{Messages: []kafka.Message{committedMessage(t, "sess-a")}}
	cleaner := NewCartCleaner(reader, discardInto(store), nil)

	require.NoError(t, cleaner.HandleNext(ctx))

	a, err := cart.Open(ctx, store, "sess-a")
	require.NoError(t, err)
	assert.True(t, a.IsEmpty())

	b, err := cart.Open(ctx, store, "sess-b")
	require.NoError(t, err)
	assert.False(t, b.IsEmpty(), "other sessions keep their carts")
}

func TestCartCleaner_SkipsOtherEvents(t *testing.T) {
	var calls int
	discard := func(context.Context, string) error { calls++; return nil }

	msg := committedMessage(t, "sess-a")
	msg.Headers = []kafka.Header{{Key: "event_type", Value: []byte(r.EventNotifyOwner)}}
	noHeader := committedMessage(t, "sess-a")
	noHeader.Headers = nil
	noSession := committedMessage(t, "")

	reader := &MockReader{Messages: []kafka.Message{msg, noHeader, noSession}}
	cleaner := NewCartCleaner(reader, discard, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, cleaner.HandleNext(context.Background()))
	}
	assert.Zero(t, calls)
}

func TestCartCleaner_Errors(t *testing.T) {
	corrupt := committedMessage(t, "sess-a")
	corrupt.Value = []byte("{")

	tests := []struct {
		name    string
		reader  *MockReader
		discard DiscardFunc
		wantErr string
	}{
		{
			name:    "read failure",
			reader:  &MockReader{Err: errors.New("broker down")},
			discard: func(context.Context, string) error { return nil },
			wantErr: "broker down",
		},
		{
			name:    "corrupt payload",
			reader:  &MockReader{Messages: []kafka.Message{corrupt}},
			discard: func(context.Context, string) error { return nil },
			wantErr: "parse order event",
		},
		{
			name:    "discard failure",
			reader:  &MockReader{Messages: []kafka.Message{committedMessage(t, "sess-a")}},
			discard: func(context.Context, string) error { return errors.New("redis gone") },
			wantErr: "redis gone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCartCleaner(tt.reader, tt.discard, nil).HandleNext(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCartCleaner_RunStopsOnCancel(t *testing.T) {
	store := kv.NewMemoryStore()
	seedCart(t, store, "sess-a")
	reader := &MockReader{Messages: []kafka.Message{committedMessage(t, "sess-a")}}
	cleaner := NewCartCleaner(reader, discardInto(store), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cleaner.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		c, err := cart.Open(context.Background(), store, "sess-a")
		return err == nil && c.IsEmpty()
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	cleaner.Close()
	assert.True(t, reader.Closed)
}
