// Package publisher drains the order outbox: committed-order events go to
// Kafka and queued notifications go to the messaging sender.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/messaging"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	OrderEventsTopic = "order-events"
	DefaultBatchSize = 100
	DefaultTick      = time.Second
)

var ErrUnknownEvent = errors.New("unknown outbox event type")

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafkaWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  OrderEventsTopic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

type OutboxPoller struct {
	eventTick time.Duration
	batchSize int
	repo      r.OutboxRepository
	writer    MessageWriter
	sender    messaging.Sender
	logger    *zap.Logger
}

// NewOutboxPoller accepts a nil writer; order events are then marked
// processed without being published.
func NewOutboxPoller(repo r.OutboxRepository, writer MessageWriter, sender messaging.Sender, log *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		eventTick: DefaultTick,
		batchSize: DefaultBatchSize,
		repo:      repo,
		writer:    writer,
		sender:    sender,
		logger:    logger.OrNop(log),
	}
}

func (p *OutboxPoller) WithTick(d time.Duration) *OutboxPoller {
	if d > 0 {
		p.eventTick = d
	}
	return p
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.ProcessOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOnce dispatches one batch and returns how many events were
// marked processed.
func (p *OutboxPoller) ProcessOnce(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	processed := 0
	for _, event := range events {
		if err := p.dispatch(ctx, event); err != nil {
			p.logger.Warn("failed to dispatch outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Int("attempts", event.Attempts+1),
				zap.Error(err))
			if errMark := p.repo.MarkEventFailed(ctx, event.ID, err.Error()); errMark != nil {
				p.logger.Error("failed to record outbox failure", zap.Int64("event_id", event.ID), zap.Error(errMark))
			}
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Error("failed to mark event as processed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		processed++
	}
	return processed
}

func (p *OutboxPoller) dispatch(ctx context.Context, event *r.OutboxEvent) error {
	switch event.EventType {
	case r.EventOrderCommitted:
		return p.publishToKafka(ctx, event)
	case r.EventNotifyPurchaser, r.EventNotifyOwner:
		return p.notify(ctx, event)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event.EventType)
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *r.OutboxEvent) error {
	if p.writer == nil {
		p.logger.Debug("no kafka writer, dropping order event", zap.String("order_id", event.AggregateID))
		return nil
	}
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps per-order ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *OutboxPoller) notify(ctx context.Context, event *r.OutboxEvent) error {
	var m messaging.Message
	if err := json.Unmarshal(event.Payload, &m); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	if _, err := messaging.SafeSend(ctx, p.sender, m.Recipient, m.Content); err != nil {
		return err
	}
	p.logger.Info("notification delivered",
		zap.String("order_id", event.AggregateID),
		zap.String("event_type", event.EventType))
	return nil
}
