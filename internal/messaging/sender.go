// Package messaging delivers purchaser, owner and reminder messages. The
// checkout core only sees the Sender interface.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
)

// Sender reports false when the message was not accepted for delivery.
type Sender interface {
	Send(ctx context.Context, recipient, content string) (bool, error)
}

// Message is the wire form on the notifications queue.
type Message struct {
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
}

// SafeSend never lets a misbehaving sender escape: a panic, an error or a
// false result all come back as ok=false with an error wrapping
// domain.ErrNotification.
func SafeSend(ctx context.Context, s Sender, recipient, content string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("%w: sender panicked: %v", domain.ErrNotification, r)
		}
	}()

	if strings.TrimSpace(recipient) == "" {
		return false, fmt.Errorf("%w: empty recipient", domain.ErrNotification)
	}
	ok, err = s.Send(ctx, recipient, content)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrNotification, err)
	}
	if !ok {
		return false, fmt.Errorf("%w: message to %s not accepted", domain.ErrNotification, recipient)
	}
	return true, nil
}
