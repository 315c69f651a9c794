package publisher

import (
	"context"

	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/segmentio/kafka-go"
)

// BreakerWriter fails fast while Kafka is unreachable; the events stay
// unprocessed in the outbox until the breaker lets writes through again.
type BreakerWriter struct {
	next    MessageWriter
	breaker *circuitbreaker.Breaker
}

func NewBreakerWriter(next MessageWriter, breaker *circuitbreaker.Breaker) *BreakerWriter {
	return &BreakerWriter{next: next, breaker: breaker}
}

func (w *BreakerWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return w.breaker.Execute(func() error {
		return w.next.WriteMessages(ctx, msgs...)
	})
}
