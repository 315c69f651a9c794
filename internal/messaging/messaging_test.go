package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	declared   []string
	declareErr error
	publishErr error
	published  []amqp.Publishing
	keys       []string
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, f.declareErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type senderFunc func(ctx context.Context, recipient, content string) (bool, error)

func (f senderFunc) Send(ctx context.Context, recipient, content string) (bool, error) {
	return f(ctx, recipient, content)
}

func TestRabbitSender_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	s, err := NewRabbitSenderWithChannel(ch, NotificationsQueue)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	ok, err := s.Send(context.Background(), "ana@example.com", "your order is in")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{NotificationsQueue}, ch.declared)
	require.Len(t, ch.published, 1)
	assert.Equal(t, NotificationsQueue, ch.keys[0])
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "application/json", ch.published[0].ContentType)

	var msg Message
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &msg))
	assert.Equal(t, "ana@example.com", msg.Recipient)
	assert.Equal(t, "your order is in", msg.Content)
	assert.Equal(t, s.now(), msg.SentAt)

	require.NoError(t, s.Close())
	assert.True(t, ch.closed)
}

func TestRabbitSender_Errors(t *testing.T) {
	_, err := NewRabbitSenderWithChannel(&fakeChannel{declareErr: errors.New("no access")}, "q")
	require.Error(t, err)

	s, err := NewRabbitSenderWithChannel(&fakeChannel{publishErr: errors.New("closed")}, "q")
	require.NoError(t, err)
	ok, err := s.Send(context.Background(), "x", "y")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestSafeSend(t *testing.T) {
	ctx := context.Background()

	ok, err := SafeSend(ctx, NewLogSender(nil), "ana@example.com", "hi")
	require.NoError(t, err)
	assert.True(t, ok)

	cases := map[string]Sender{
		"false":  senderFunc(func(context.Context, string, string) (bool, error) { return false, nil }),
		"error":  senderFunc(func(context.Context, string, string) (bool, error) { return true, errors.New("smtp down") }),
		"panics": senderFunc(func(context.Context, string, string) (bool, error) { panic("boom") }),
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			ok, err := SafeSend(ctx, s, "ana@example.com", "hi")
			assert.False(t, ok)
			assert.ErrorIs(t, err, domain.ErrNotification)
		})
	}

	ok, err = SafeSend(ctx, NewLogSender(nil), "  ", "hi")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrNotification)
}

func TestBreakerSender_OpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	down := senderFunc(func(context.Context, string, string) (bool, error) {
		calls++
		return false, errors.New("connection reset")
	})
	s := NewBreakerSender(down, circuitbreaker.New("notifications", circuitbreaker.Config{Failures: 2, Cooldown: time.Minute}, nil))

	for i := 0; i < 2; i++ {
		ok, err := s.Send(context.Background(), "ana@example.com", "hi")
		assert.False(t, ok)
		assert.Error(t, err)
	}
	ok, err := SafeSend(context.Background(), s, "ana@example.com", "hi")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrNotification)
	assert.ErrorContains(t, err, "circuit breaker is open")
	assert.Equal(t, 2, calls)
}

func TestBreakerSender_RefusalIsNotAnError(t *testing.T) {
	refuse := senderFunc(func(context.Context, string, string) (bool, error) { return false, nil })
	s := NewBreakerSender(refuse, circuitbreaker.New("notifications", circuitbreaker.DefaultConfig(), nil))

	ok, err := s.Send(context.Background(), "ana@example.com", "hi")
	assert.False(t, ok)
	assert.NoError(t, err)

	accept := senderFunc(func(context.Context, string, string) (bool, error) { return true, nil })
	ok, err = NewBreakerSender(accept, circuitbreaker.New("n", circuitbreaker.DefaultConfig(), nil)).Send(context.Background(), "a", "b")
	assert.True(t, ok)
	assert.NoError(t, err)
}
