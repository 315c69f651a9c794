// Package session keeps the checkout progress of a browsing session alive
// across the round trip to a hosted payment page.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultTTL = 30 * time.Minute

func storageKey(sessionID string) string {
	return "checkout:" + sessionID
}

func attemptKey(sessionID string) string {
	return "checkout-attempt:" + sessionID
}

type Store struct {
	kv     kv.Store
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewStore(store kv.Store, ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		kv:     store,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.OrNop(log),
	}
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Save snapshots the draft right before the shopper leaves for the provider.
// Any earlier state of the same session is replaced.
func (s *Store) Save(ctx context.Context, sessionID string, draft domain.OrderDraft, step domain.CheckoutStep, provider string, ids *domain.TransactionIDs) (*domain.CheckoutSessionState, error) {
	if sessionID == "" {
		return nil, domain.NewValidationError("session_id", "required")
	}
	now := s.now()
	state := &domain.CheckoutSessionState{
		SessionID:       sessionID,
		OrderDraft:      draft,
		CurrentStep:     step,
		PaymentProvider: provider,
		PaymentStatus:   domain.PaymentStatePending,
		Timestamp:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
	if ids != nil && !ids.IsZero() {
		cp := *ids
		state.TransactionIDs = &cp
	}
	if err := s.write(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Restore returns nil, nil when there is no live state. An expired record is
// deleted on the way out.
func (s *Store) Restore(ctx context.Context, sessionID string) (*domain.CheckoutSessionState, error) {
	data, err := s.kv.Get(ctx, storageKey(sessionID))
	if errors.Is(err, kv.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkout state: %w", err)
	}

	var state domain.CheckoutSessionState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("discarding unreadable checkout state", zap.String("session_id", sessionID), zap.Error(err))
		return nil, s.Clear(ctx, sessionID)
	}
	if state.IsExpired(s.now()) {
		if err := s.Clear(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &state, nil
}

// UpdatePaymentStatus merges a provider result into the live state. Empty
// transaction id fields never overwrite stored ones.
func (s *Store) UpdatePaymentStatus(ctx context.Context, sessionID string, status domain.PaymentState, ids *domain.TransactionIDs) (*domain.CheckoutSessionState, error) {
	state, err := s.live(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state.PaymentStatus = status
	if ids != nil && !ids.IsZero() {
		merged := domain.TransactionIDs{}
		if state.TransactionIDs != nil {
			merged = *state.TransactionIDs
		}
		if ids.PaymentID != "" {
			merged.PaymentID = ids.PaymentID
		}
		if ids.ExternalReference != "" {
			merged.ExternalReference = ids.ExternalReference
		}
		if ids.ProviderSessionID != "" {
			merged.ProviderSessionID = ids.ProviderSessionID
		}
		state.TransactionIDs = &merged
	}
	if err := s.write(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// MarkCommitted records the order so a repeated provider return resolves to it.
func (s *Store) MarkCommitted(ctx context.Context, sessionID, orderID string) error {
	state, err := s.live(ctx, sessionID)
	if err != nil {
		return err
	}
	state.OrderID = orderID
	state.PaymentStatus = domain.PaymentStateSuccess
	state.CurrentStep = state.CurrentStep.Advance(domain.StepComplete)
	return s.write(ctx, state)
}

// Attempt returns the id of the checkout the session is in, starting one
// when there is none. Every commit of the same attempt resolves to one order;
// Clear ends the attempt so the next purchase gets a fresh id.
func (s *Store) Attempt(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", domain.NewValidationError("session_id", "required")
	}
	key := attemptKey(sessionID)
	id := uuid.NewString()
	created, err := s.kv.SetNX(ctx, key, []byte(id), s.ttl)
	if err != nil {
		return "", fmt.Errorf("%w: start checkout attempt: %v", domain.ErrTransientWrite, err)
	}
	if created {
		return id, nil
	}

	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrMiss) {
		// expired between the two calls
		return s.Attempt(ctx, sessionID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: read checkout attempt: %v", domain.ErrTransientWrite, err)
	}
	return string(data), nil
}

// Clear tears down the checkout state and ends the current attempt.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	err := errors.Join(
		s.kv.Delete(ctx, storageKey(sessionID)),
		s.kv.Delete(ctx, attemptKey(sessionID)),
	)
	if err != nil {
		return fmt.Errorf("clear checkout state: %w", err)
	}
	return nil
}

func (s *Store) live(ctx context.Context, sessionID string) (*domain.CheckoutSessionState, error) {
	state, err := s.Restore(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("checkout state %s: %w", sessionID, domain.ErrNotFound)
	}
	return state, nil
}

// write keeps the original deadline; updates never extend a session.
func (s *Store) write(ctx context.Context, state *domain.CheckoutSessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkout state failed: %w", err)
	}
	ttl := state.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("checkout state %s: %w", state.SessionID, domain.ErrExpired)
	}
	if err := s.kv.Set(ctx, storageKey(state.SessionID), data, ttl); err != nil {
		return fmt.Errorf("%w: save checkout state: %v", domain.ErrTransientWrite, err)
	}
	return nil
}
