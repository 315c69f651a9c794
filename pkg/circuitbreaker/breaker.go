// Package circuitbreaker stops calling a dependency that keeps failing.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	// Failures is how many consecutive errors trip the breaker.
	Failures uint32
	// Cooldown is how long the breaker stays open before letting a probe through.
	Cooldown time.Duration
	// Probes is how many calls are allowed while half-open.
	Probes uint32
}

func DefaultConfig() Config {
	return Config{Failures: 5, Cooldown: 30 * time.Second, Probes: 1}
}

type Breaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

func New(name string, cfg Config, log *zap.Logger) *Breaker {
	if cfg.Failures == 0 {
		cfg.Failures = DefaultConfig().Failures
	}
	if cfg.Probes == 0 {
		cfg.Probes = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.Probes,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

// Execute runs fn unless the breaker is open. A rejected call returns an
// error wrapping ErrOpen and fn is not invoked.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrOpen, err)
	}
	return err
}

func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}
