package messaging

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
)

var errNotAccepted = errors.New("message not accepted")

// BreakerSender stops hitting the broker once sends keep failing. A refused
// message counts as a failure too.
type BreakerSender struct {
	next    Sender
	breaker *circuitbreaker.Breaker
}

func NewBreakerSender(next Sender, breaker *circuitbreaker.Breaker) *BreakerSender {
	return &BreakerSender{next: next, breaker: breaker}
}

func (s *BreakerSender) Send(ctx context.Context, recipient, content string) (bool, error) {
	err := s.breaker.Execute(func() error {
		ok, err := s.next.Send(ctx, recipient, content)
		if err != nil {
			return err
		}
		if !ok {
			return errNotAccepted
		}
		return nil
	})
	if errors.Is(err, errNotAccepted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
