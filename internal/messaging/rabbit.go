package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const NotificationsQueue = "notifications.outbound"

// Channel is the part of *amqp.Channel the sender uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type RabbitSender struct {
	ch      Channel
	queue   string
	timeout time.Duration
	now     func() time.Time
}

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn, nil
}

func NewRabbitSender(conn *amqp.Connection) (*RabbitSender, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	s, err := NewRabbitSenderWithChannel(ch, NotificationsQueue)
	if err != nil {
		ch.Close()
		return nil, err
	}
	return s, nil
}

// NewRabbitSenderWithChannel declares queue so a publish never fails on
// missing infrastructure.
func NewRabbitSenderWithChannel(ch Channel, queue string) (*RabbitSender, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", queue, err)
	}
	return &RabbitSender{ch: ch, queue: queue, timeout: 3 * time.Second, now: time.Now}, nil
}

func (s *RabbitSender) Send(ctx context.Context, recipient, content string) (bool, error) {
	body, err := json.Marshal(Message{Recipient: recipient, Content: content, SentAt: s.now().UTC()})
	if err != nil {
		return false, fmt.Errorf("marshal message: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.ch.PublishWithContext(
		pubCtx,
		"",      // default exchange
		s.queue, // queue name as routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return false, fmt.Errorf("publish to %s: %w", s.queue, err)
	}
	return true, nil
}

func (s *RabbitSender) Close() error {
	return s.ch.Close()
}
