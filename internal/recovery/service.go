// Package recovery finds shoppers who stalled mid-checkout, reminds them of
// what they left behind and restores the cart when they follow the link.
package recovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/fjod/go_cart/storefront/internal/messaging"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxReminders = 3
	DefaultMinInterval  = 24 * time.Hour
	DefaultConcurrency  = 4
	DefaultBatchSize    = 500
)

type Customers interface {
	Get(ctx context.Context, customerID string) (*domain.CustomerRecord, error)
	ListAbandoned(ctx context.Context, storeID string, idleBefore time.Time, limit int) ([]*domain.CustomerRecord, error)
	RecordReminder(ctx context.Context, customerID string, sentAt time.Time) error
}

type Config struct {
	BaseURL      string
	MaxReminders int
	MinInterval  time.Duration
	Concurrency  int
	BatchSize    int
}

func (c Config) withDefaults() Config {
	if c.MaxReminders <= 0 {
		c.MaxReminders = DefaultMaxReminders
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

type Report struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Service struct {
	customers Customers
	sender    messaging.Sender
	carts     kv.Store
	store     domain.StoreProfile
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

func NewService(customers Customers, sender messaging.Sender, carts kv.Store, store domain.StoreProfile, cfg Config, log *zap.Logger) *Service {
	return &Service{
		customers: customers,
		sender:    sender,
		carts:     carts,
		store:     store,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		logger:    logger.OrNop(log),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) RecoveryLink(customerID string) string {
	return s.cfg.BaseURL + "/recover/" + customerID
}

// Scan lists customers whose checkout has been idle for at least idleHours.
func (s *Service) Scan(ctx context.Context, storeID string, idleHours int) ([]*domain.CustomerRecord, error) {
	if idleHours < 0 {
		return nil, domain.NewValidationError("idle_hours", "must not be negative")
	}
	idleBefore := s.now().Add(-time.Duration(idleHours) * time.Hour)
	candidates, err := s.customers.ListAbandoned(ctx, storeID, idleBefore, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("scan abandoned carts: %w", err)
	}
	return candidates, nil
}

func (s *Service) eligible(c *domain.CustomerRecord, now time.Time) (bool, string) {
	ac := c.AbandonedCart
	switch {
	case ac == nil || len(ac.Items) == 0:
		return false, "no saved cart"
	case c.CheckoutStepReached.IsTerminal():
		return false, "checkout complete"
	case ac.ReminderCount >= s.cfg.MaxReminders:
		return false, "reminder cap reached"
	case ac.LastReminderAt != nil && now.Sub(*ac.LastReminderAt) < s.cfg.MinInterval:
		return false, "reminded recently"
	case c.Recipient() == "":
		return false, "no contact"
	}
	return true, ""
}

// Run sends one reminder to every eligible candidate. A failed send leaves
// the customer untouched so the next run tries again.
func (s *Service) Run(ctx context.Context, storeID string, idleHours int) (Report, error) {
	candidates, err := s.Scan(ctx, storeID, idleHours)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report = Report{Scanned: len(candidates)}
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, c := range candidates {
		now := s.now()
		if ok, reason := s.eligible(c, now); !ok {
			s.logger.Debug("reminder skipped", zap.String("customer_id", c.ID), zap.String("reason", reason))
			count(&report.Skipped)
			continue
		}
		c := c
		g.Go(func() error {
			if s.remind(gctx, c) {
				count(&report.Sent)
			} else {
				count(&report.Failed)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	s.logger.Info("abandoned cart run finished",
		zap.String("store_id", storeID),
		zap.Int("scanned", report.Scanned),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, ctx.Err()
}

func (s *Service) remind(ctx context.Context, c *domain.CustomerRecord) bool {
	content, err := renderReminder(c, s.store, s.RecoveryLink(c.ID))
	if err != nil {
		s.logger.Error("failed to render reminder", zap.String("customer_id", c.ID), zap.Error(err))
		return false
	}

	if _, err := messaging.SafeSend(ctx, s.sender, c.Recipient(), content); err != nil {
		s.logger.Warn("reminder not delivered", zap.String("customer_id", c.ID), zap.Error(err))
		return false
	}

	if err := s.customers.RecordReminder(ctx, c.ID, s.now()); err != nil {
		// delivered but not counted; the interval guard may allow one extra reminder
		s.logger.Error("failed to record reminder", zap.String("customer_id", c.ID), zap.Error(err))
	}
	return true
}

// Restore loads the customer's saved cart into the session's cart.
func (s *Service) Restore(ctx context.Context, sessionID, customerID string) (domain.CartSnapshot, error) {
	c, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	if c.AbandonedCart == nil || len(c.AbandonedCart.Items) == 0 {
		return domain.CartSnapshot{}, fmt.Errorf("saved cart for %s: %w", customerID, domain.ErrNotFound)
	}

	store, err := cart.Open(ctx, s.carts, sessionID)
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	snap, err := store.Load(ctx, c.AbandonedCart.Items)
	if err != nil {
		return snap, err
	}
	s.logger.Info("cart restored from reminder",
		zap.String("customer_id", customerID),
		zap.String("session_id", sessionID),
		zap.Int("items", snap.TotalItems))
	return snap, nil
}
