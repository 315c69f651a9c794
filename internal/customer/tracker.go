// Package customer upserts a customer record as checkout advances and keeps
// the abandonment snapshot the recovery job works from.
package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Identity struct {
	StoreID  string
	Email    string
	Phone    string
	FullName string
	Currency string
}

type Tracker struct {
	repo   Repository
	now    func() time.Time
	logger *zap.Logger
}

func NewTracker(repo Repository, log *zap.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		now:    time.Now,
		logger: logger.OrNop(log),
	}
}

func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps the digits and a leading '+'.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 && strings.HasPrefix(b.String(), "+") {
		return ""
	}
	return b.String()
}

// UpsertStep1 finds the shopper by email, then by phone, creating the record
// when neither matches. The current cart becomes the abandonment snapshot.
func (t *Tracker) UpsertStep1(ctx context.Context, id Identity, cart domain.CartSnapshot) (string, error) {
	id.Email = NormalizeEmail(id.Email)
	id.Phone = NormalizePhone(id.Phone)

	v := &domain.ValidationError{}
	if id.StoreID == "" {
		v.Add("store_id", "required")
	}
	if id.Email == "" && id.Phone == "" {
		v.Add("contact", "email or phone required")
	}
	if err := v.OrNil(); err != nil {
		return "", err
	}

	customerID, err := t.upsert(ctx, id, cart)
	if errors.Is(err, ErrDuplicateCustomer) {
		// lost a race with a concurrent first insert, the record exists now
		customerID, err = t.upsert(ctx, id, cart)
	}
	return customerID, err
}

func (t *Tracker) upsert(ctx context.Context, id Identity, cart domain.CartSnapshot) (string, error) {
	existing, err := t.lookup(ctx, &id)
	if err != nil {
		return "", err
	}

	now := t.now()
	if existing == nil {
		c := &domain.CustomerRecord{
			ID:                  uuid.NewString(),
			StoreID:             id.StoreID,
			Email:               id.Email,
			Phone:               id.Phone,
			FullName:            strings.TrimSpace(id.FullName),
			TotalSpent:          decimal.Zero,
			Currency:            id.Currency,
			CheckoutStepReached: domain.StepIdentity,
			LastActiveAt:        now,
			AbandonedCart:       snapshot(cart, now),
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := t.repo.Insert(ctx, c); err != nil {
			return "", err
		}
		t.logger.Debug("customer created", zap.String("customer_id", c.ID), zap.String("store_id", c.StoreID))
		return c.ID, nil
	}

	if existing.Email == "" {
		existing.Email = id.Email
	}
	if existing.Phone == "" {
		existing.Phone = id.Phone
	}
	if name := strings.TrimSpace(id.FullName); name != "" {
		existing.FullName = name
	}
	if existing.Currency == "" {
		existing.Currency = id.Currency
	}
	if existing.CheckoutStepReached.IsTerminal() {
		// the last checkout ended in an order, this is a new one
		existing.CheckoutStepReached = domain.StepIdentity
	} else {
		existing.CheckoutStepReached = existing.CheckoutStepReached.Advance(domain.StepIdentity)
	}
	existing.LastActiveAt = now
	existing.AbandonedCart = snapshot(cart, now)
	existing.UpdatedAt = now

	if err := t.repo.Update(ctx, existing); err != nil {
		return "", err
	}
	return existing.ID, nil
}

// lookup gives the email match precedence over the phone match. A phone that
// already belongs to another customer is dropped from id so the unique
// (store_id, phone) index is never violated.
func (t *Tracker) lookup(ctx context.Context, id *Identity) (*domain.CustomerRecord, error) {
	var byEmail, byPhone *domain.CustomerRecord
	var err error
	if id.Email != "" {
		if byEmail, err = t.find(t.repo.FindByEmail(ctx, id.StoreID, id.Email)); err != nil {
			return nil, err
		}
	}
	if id.Phone != "" {
		if byPhone, err = t.find(t.repo.FindByPhone(ctx, id.StoreID, id.Phone)); err != nil {
			return nil, err
		}
	}

	switch {
	case byEmail != nil:
		if byPhone != nil && byPhone.ID != byEmail.ID {
			t.logger.Info("phone attached to another customer, email match wins",
				zap.String("customer_id", byEmail.ID), zap.String("other_id", byPhone.ID))
			id.Phone = ""
		}
		return byEmail, nil
	case byPhone != nil:
		if byPhone.Email != "" && id.Email != "" {
			// same phone, different email: a new customer without the phone
			id.Phone = ""
			return nil, nil
		}
		return byPhone, nil
	default:
		return nil, nil
	}
}

func (t *Tracker) find(c *domain.CustomerRecord, err error) (*domain.CustomerRecord, error) {
	if errors.Is(err, ErrCustomerNotFound) {
		return nil, nil
	}
	return c, err
}

func snapshot(cart domain.CartSnapshot, now time.Time) *domain.AbandonedCart {
	if len(cart.Lines) == 0 {
		return nil
	}
	return &domain.AbandonedCart{
		Items:       append([]domain.CartLine(nil), cart.Lines...),
		Subtotal:    cart.Subtotal,
		Currency:    cart.Currency,
		AbandonedAt: now,
	}
}

func (t *Tracker) advance(ctx context.Context, customerID string, step domain.CheckoutStep) error {
	c, err := t.repo.Get(ctx, customerID)
	if err != nil {
		return err
	}
	now := t.now()
	c.CheckoutStepReached = c.CheckoutStepReached.Advance(step)
	c.LastActiveAt = now
	c.UpdatedAt = now
	if err := t.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("advance customer %s to %s: %w", customerID, step, err)
	}
	return nil
}

func (t *Tracker) UpdateStep2(ctx context.Context, customerID string) error {
	return t.advance(ctx, customerID, domain.StepShipping)
}

func (t *Tracker) UpdateStep3(ctx context.Context, customerID string) error {
	return t.advance(ctx, customerID, domain.StepPaymentPrefs)
}

// Finalize is the only path that clears the abandonment snapshot.
func (t *Tracker) Finalize(ctx context.Context, customerID string, orderTotal decimal.Decimal, currency string) error {
	c, err := t.repo.Get(ctx, customerID)
	if err != nil {
		return err
	}
	now := t.now()
	c.TotalOrders++
	if c.Currency == "" {
		c.Currency = currency
	}
	if strings.EqualFold(c.Currency, currency) {
		c.TotalSpent = c.TotalSpent.Add(orderTotal)
	} else {
		t.logger.Warn("order currency differs from customer currency, total spent unchanged",
			zap.String("customer_id", customerID),
			zap.String("customer_currency", c.Currency),
			zap.String("order_currency", currency))
	}
	c.CheckoutStepReached = domain.StepComplete
	c.AbandonedCart = nil
	c.LastActiveAt = now
	c.UpdatedAt = now
	if err := t.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("finalize customer %s: %w", customerID, err)
	}
	return nil
}

// RecordReminder counts a successfully delivered reminder.
func (t *Tracker) RecordReminder(ctx context.Context, customerID string, sentAt time.Time) error {
	c, err := t.repo.Get(ctx, customerID)
	if err != nil {
		return err
	}
	if c.AbandonedCart == nil {
		return nil
	}
	c.AbandonedCart.EmailSent = true
	c.AbandonedCart.ReminderCount++
	c.AbandonedCart.LastReminderAt = &sentAt
	c.UpdatedAt = t.now()
	return t.repo.Update(ctx, c)
}

func (t *Tracker) Get(ctx context.Context, customerID string) (*domain.CustomerRecord, error) {
	return t.repo.Get(ctx, customerID)
}

// ListAbandoned returns recovery candidates idle since before idleBefore.
func (t *Tracker) ListAbandoned(ctx context.Context, storeID string, idleBefore time.Time, limit int) ([]*domain.CustomerRecord, error) {
	return t.repo.ListAbandoned(ctx, storeID, idleBefore, limit)
}
