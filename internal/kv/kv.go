// Package kv is the per-session storage slot abstraction. Carts, checkout
// session state, confirmation tokens and rate-limit counters all live behind
// Store so a single process can run on memory and a fleet can share Redis.
package kv

import (
	"context"
	"errors"
	"time"
)

var ErrMiss = errors.New("kv: key not found")

type Store interface {
	// Get returns ErrMiss for absent or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; ttl <= 0 keeps the key until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Incr increments a counter, starting its ttl when the counter is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Keys lists live keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
