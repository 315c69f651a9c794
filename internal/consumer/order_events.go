// Package consumer reacts to order events read back from Kafka.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/order"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const CartCleanerGroup = "storefront-cart-cleaner"

// DiscardFunc removes whatever a session had in its cart.
type DiscardFunc func(ctx context.Context, sessionID string) error

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewKafkaReader(brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    publisher.OrderEventsTopic,
		GroupID:  CartCleanerGroup,
		MaxBytes: 10e6, // 10MB
	})
}

// CartCleaner empties the cart of every session that committed an order.
// Checkout already discards the cart synchronously; this covers the case
// where that write failed after the order was stored.
type CartCleaner struct {
	reader  MessageReader
	discard DiscardFunc
	log     *zap.Logger
	backoff time.Duration
}

func NewCartCleaner(reader MessageReader, discard DiscardFunc, log *zap.Logger) *CartCleaner {
	return &CartCleaner{
		reader:  reader,
		discard: discard,
		log:     logger.OrNop(log).Named("cart-cleaner"),
		backoff: time.Second,
	}
}

func (c *CartCleaner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.HandleNext(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("order event not handled", zap.Error(err))
			if errors.Is(err, errRead) {
				select {
				case <-ctx.Done():
				case <-time.After(c.backoff):
				}
			}
		}
	}
}

func (c *CartCleaner) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing reader", zap.Error(err))
	}
}

var errRead = errors.New("read order event")

// HandleNext reads one message and discards the matching cart.
// Events other than OrderCommitted are skipped.
func (c *CartCleaner) HandleNext(ctx context.Context) error {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errRead, err)
	}

	if eventType(m) != r.EventOrderCommitted {
		return nil
	}

	var payload order.OrderCommitted
	if err := json.Unmarshal(m.Value, &payload); err != nil {
		return fmt.Errorf("parse order event at offset %d: %w", m.Offset, err)
	}
	if payload.SessionID == "" {
		c.log.Debug("order event without session", zap.String("order_id", payload.OrderID))
		return nil
	}

	if err := c.discard(ctx, payload.SessionID); err != nil {
		return fmt.Errorf("discard cart for order %s: %w", payload.OrderID, err)
	}
	c.log.Debug("cart discarded", zap.String("order_id", payload.OrderID))
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
