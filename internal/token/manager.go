// Package token issues and consumes single-use order confirmation handles.
// The shopper only ever holds the opaque id; the order snapshot stays in the
// kv store under confirm:<id>.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTTL = 30 * time.Minute
	KeyPrefix  = "confirm:"
	usedSuffix = ":used"
)

func tokenKey(id string) string {
	return KeyPrefix + id
}

func usedKey(id string) string {
	return KeyPrefix + id + usedSuffix
}

type Manager struct {
	store  kv.Store
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewManager(store kv.Store, ttl time.Duration, log *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.OrNop(log),
	}
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// retention keeps the record around past ExpiresAt so a late read reports
// ErrExpired rather than ErrNotFound.
func (m *Manager) retention() time.Duration {
	return 2 * m.ttl
}

func (m *Manager) Issue(ctx context.Context, draft domain.OrderDraft, orderID, storeID string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	now := m.now()
	tok := domain.ConfirmationToken{
		ID:            id.String(),
		OrderID:       orderID,
		OrderSnapshot: draft,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.ttl),
		PaymentMethod: draft.Payment.Method,
		StoreID:       storeID,
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("marshal token failed: %w", err)
	}
	if err := m.store.Set(ctx, tokenKey(tok.ID), data, m.retention()); err != nil {
		return "", fmt.Errorf("%w: save token: %v", domain.ErrTransientWrite, err)
	}
	return tok.ID, nil
}

func (m *Manager) load(ctx context.Context, id string) (*domain.ConfirmationToken, error) {
	if strings.TrimSpace(id) == "" || strings.HasSuffix(id, usedSuffix) {
		return nil, domain.ErrNotFound
	}
	data, err := m.store.Get(ctx, tokenKey(id))
	if errors.Is(err, kv.ErrMiss) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	var tok domain.ConfirmationToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("unmarshal token failed: %w", err)
	}
	return &tok, nil
}

// Consume returns ErrNotFound, ErrExpired or ErrAlreadyConsumed for a token
// that cannot be redeemed. Expiry wins over the used flag.
func (m *Manager) Consume(ctx context.Context, id string) (*domain.ConfirmationToken, error) {
	tok, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if tok.IsExpired(now) {
		return nil, domain.ErrExpired
	}
	if tok.Used {
		return nil, domain.ErrAlreadyConsumed
	}

	won, err := m.store.SetNX(ctx, usedKey(id), []byte(now.UTC().Format(time.RFC3339Nano)), m.retention())
	if err != nil {
		return nil, fmt.Errorf("mark token used: %w", err)
	}
	if !won {
		return nil, domain.ErrAlreadyConsumed
	}

	tok.Used = true
	if data, err := json.Marshal(tok); err == nil {
		remaining := tok.CreatedAt.Add(m.retention()).Sub(now)
		if err := m.store.Set(ctx, tokenKey(id), data, remaining); err != nil {
			// the used marker already guards replays
			m.logger.Warn("failed to rewrite consumed token", zap.String("token_id", id), zap.Error(err))
		}
	}
	return tok, nil
}

// ValidateAndConsume is what the confirmation view calls. Absent, expired and
// replayed tokens all come back as nil with no error; only storage failures
// are reported.
func (m *Manager) ValidateAndConsume(ctx context.Context, id string) (*domain.ConfirmationToken, error) {
	tok, err := m.Consume(ctx, id)
	switch {
	case err == nil:
		return tok, nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrExpired), errors.Is(err, domain.ErrAlreadyConsumed):
		m.logger.Debug("confirmation token rejected", zap.String("token_id", id), zap.Error(err))
		return nil, nil
	default:
		return nil, err
	}
}

// CleanupExpired deletes every token whose ExpiresAt has passed along with its
// used marker and returns how many tokens were removed.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := m.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list tokens: %w", err)
	}

	now := m.now()
	removed := 0
	for _, key := range keys {
		if strings.HasSuffix(key, usedSuffix) {
			continue
		}
		id := strings.TrimPrefix(key, KeyPrefix)
		tok, err := m.load(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			// unreadable records are garbage too
			m.logger.Warn("dropping unreadable token", zap.String("token_id", id), zap.Error(err))
		} else if !tok.IsExpired(now) {
			continue
		}
		if err := m.store.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("delete token %s: %w", id, err)
		}
		if err := m.store.Delete(ctx, usedKey(id)); err != nil {
			return removed, fmt.Errorf("delete token marker %s: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

// Run sweeps expired tokens every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := m.CleanupExpired(ctx)
			if err != nil {
				m.logger.Warn("token cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.logger.Info("expired tokens removed", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}
