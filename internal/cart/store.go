package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/kv"
)

// DefaultRetention is how long an untouched cart survives in storage.
const DefaultRetention = 30 * 24 * time.Hour

func storageKey(sessionID string) string {
	return "cart:" + sessionID
}

// Store is the cart of one browsing session. The reducer result is kept in
// memory first and then written through, so a failed write never loses the
// mutation the shopper just made.
type Store struct {
	sessionID string
	store     kv.Store
	retention time.Duration
	lines     []domain.CartLine
}

// Open rehydrates the session's cart; a missing slot is an empty cart.
func Open(ctx context.Context, store kv.Store, sessionID string) (*Store, error) {
	s := &Store{
		sessionID: sessionID,
		store:     store,
		retention: DefaultRetention,
		lines:     []domain.CartLine{},
	}

	data, err := store.Get(ctx, storageKey(sessionID))
	if errors.Is(err, kv.ErrMiss) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if lines != nil {
		s.lines = lines
	}
	return s, nil
}

func (s *Store) dispatch(ctx context.Context, a Action) (domain.CartSnapshot, error) {
	next, err := Reduce(s.lines, a)
	if err != nil {
		return Totals(s.lines), err
	}
	s.lines = next
	return Totals(s.lines), s.persist(ctx)
}

func (s *Store) persist(ctx context.Context) error {
	data, err := json.Marshal(s.lines)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := s.store.Set(ctx, storageKey(s.sessionID), data, s.retention); err != nil {
		return fmt.Errorf("%w: save cart: %v", domain.ErrTransientWrite, err)
	}
	return nil
}

func (s *Store) AddLine(ctx context.Context, item domain.CartLine, qty int) (domain.CartSnapshot, error) {
	return s.dispatch(ctx, Add(item, qty))
}

// SetQuantity with qty <= 0 removes the line.
func (s *Store) SetQuantity(ctx context.Context, lineID string, qty int) (domain.CartSnapshot, error) {
	return s.dispatch(ctx, SetQuantity(lineID, qty))
}

func (s *Store) RemoveLine(ctx context.Context, lineID string) (domain.CartSnapshot, error) {
	return s.dispatch(ctx, Remove(lineID))
}

func (s *Store) Clear(ctx context.Context) (domain.CartSnapshot, error) {
	return s.dispatch(ctx, Clear())
}

func (s *Store) Load(ctx context.Context, lines []domain.CartLine) (domain.CartSnapshot, error) {
	return s.dispatch(ctx, Load(lines))
}

func (s *Store) Snapshot() domain.CartSnapshot {
	return Totals(s.lines)
}

func (s *Store) IsEmpty() bool {
	return len(s.lines) == 0
}

// Discard drops the persisted slot, used once an order has been committed.
func Discard(ctx context.Context, store kv.Store, sessionID string) error {
	if err := store.Delete(ctx, storageKey(sessionID)); err != nil {
		return fmt.Errorf("discard cart: %w", err)
	}
	return nil
}
