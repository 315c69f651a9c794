// Package ratelimit caps requests per key with a fixed window counter kept
// in the kv store, so every replica sharing Redis sees the same count.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
)

const KeyPrefix = "ratelimit:"

var ErrLimited = errors.New("rate limit exceeded")

type Limiter struct {
	store  kv.Store
	name   string
	limit  int64
	window time.Duration
	logger *zap.Logger
}

// New returns a limiter allowing limit hits per window for each key.
// A non-positive limit disables it.
func New(store kv.Store, name string, limit int, window time.Duration, log *zap.Logger) *Limiter {
	return &Limiter{
		store:  store,
		name:   name,
		limit:  int64(limit),
		window: window,
		logger: logger.OrNop(log),
	}
}

// Allow counts one hit for key. A store failure lets the request through.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	n, err := l.store.Incr(ctx, KeyPrefix+l.name+":"+key, l.window)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable", zap.String("limiter", l.name), zap.Error(err))
		return true
	}
	if n > l.limit {
		l.logger.Debug("rate limited", zap.String("limiter", l.name), zap.String("key", key), zap.Int64("hits", n))
		return false
	}
	return true
}

func (l *Limiter) Window() time.Duration {
	return l.window
}

// Check is Allow returning ErrLimited.
func (l *Limiter) Check(ctx context.Context, key string) error {
	if !l.Allow(ctx, key) {
		return ErrLimited
	}
	return nil
}
