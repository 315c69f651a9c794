// Package order creates orders exactly once per checkout and queues the
// side effects of a commit through the outbox.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/messaging"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	CreateOrder(ctx context.Context, order *domain.Order, events []r.OutboxEvent) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByCheckoutKey(ctx context.Context, key string) (*domain.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error)
	AppendStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, note string) error
	StatusHistory(ctx context.Context, id uuid.UUID) ([]r.StatusChange, error)
}

// CustomerFinalizer is satisfied by the customer tracker.
type CustomerFinalizer interface {
	Finalize(ctx context.Context, customerID string, orderTotal decimal.Decimal, currency string) error
}

// OrderCommitted is the payload of the order-events topic.
type OrderCommitted struct {
	EventType     string               `json:"event_type"`
	OrderID       string               `json:"order_id"`
	SessionID     string               `json:"session_id"`
	Number        string               `json:"number"`
	StoreID       string               `json:"store_id"`
	CustomerID    string               `json:"customer_id,omitempty"`
	Channel       domain.Channel       `json:"channel"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentType   domain.PaymentType   `json:"payment_type"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	Total         decimal.Decimal      `json:"total"`
	Currency      string               `json:"currency"`
	Lines         []domain.OrderLine   `json:"lines"`
	CommittedAt   time.Time            `json:"committed_at"`
}

type Service struct {
	repo      Repository
	customers CustomerFinalizer
	store     domain.StoreProfile
	now       func() time.Time
	logger    *zap.Logger
}

func NewService(repo Repository, customers CustomerFinalizer, store domain.StoreProfile, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		customers: customers,
		store:     store,
		now:       time.Now,
		logger:    logger.OrNop(log),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CheckoutKey identifies one checkout attempt within a session. A paid
// hosted checkout is keyed by its provider transaction, anything else by the
// attempt id minted when the checkout started. An empty key means the draft
// carries neither and cannot be deduplicated.
func CheckoutKey(d domain.OrderDraft, payment *domain.PaymentInfo) string {
	var attempt string
	switch {
	case payment != nil && payment.TransactionID != "":
		attempt = "tx-" + payment.TransactionID
	case d.AttemptID != "":
		attempt = d.AttemptID
	default:
		return ""
	}
	return d.SessionID + ":" + attempt
}

func (s *Service) orderNumber(now time.Time) string {
	prefix := s.store.OrderPrefix
	if prefix == "" {
		prefix = "ORD"
	}
	return prefix + "-" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
}

// Commit creates the order for draft. ok=false means the order could not be
// written and the caller may retry with the same draft; err is only set for
// a draft that will never be accepted. Committing the same checkout attempt
// again returns the existing order id.
func (s *Service) Commit(ctx context.Context, draft domain.OrderDraft, payment *domain.PaymentInfo) (orderID string, ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("order commit panicked", zap.Any("panic", rec), zap.String("session_id", draft.SessionID))
			orderID, ok, err = "", false, nil
		}
	}()

	if err := Validate(draft); err != nil {
		return "", false, err
	}

	o, err := s.buildOrder(draft, payment)
	if err != nil {
		s.logger.Error("failed to build order", zap.Error(err))
		return "", false, nil
	}
	events, err := s.outboxEvents(o)
	if err != nil {
		s.logger.Error("failed to build outbox events", zap.String("order_id", o.ID.String()), zap.Error(err))
		return "", false, nil
	}

	err = s.repo.CreateOrder(ctx, o, events)
	if errors.Is(err, r.ErrDuplicateOrder) {
		existing, lookupErr := s.existing(ctx, o)
		if lookupErr != nil {
			s.logger.Error("duplicate order but existing one not found",
				zap.String("checkout_key", o.CheckoutKey), zap.Error(lookupErr))
			return "", false, nil
		}
		s.logger.Info("order already committed", zap.String("order_id", existing.ID.String()))
		return existing.ID.String(), true, nil
	}
	if err != nil {
		s.logger.Error("failed to create order", zap.String("checkout_key", o.CheckoutKey), zap.Error(err))
		return "", false, nil
	}

	s.logger.Info("order committed",
		zap.String("order_id", o.ID.String()),
		zap.String("number", o.Number),
		zap.String("status", string(o.Status)),
		zap.String("payment_type", string(o.PaymentType)))

	s.finalizeCustomer(ctx, o)
	return o.ID.String(), true, nil
}

func (s *Service) existing(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	found, err := s.repo.FindByCheckoutKey(ctx, o.CheckoutKey)
	if err == nil {
		return found, nil
	}
	if o.TransactionID != "" {
		return s.repo.FindByTransactionID(ctx, o.TransactionID)
	}
	return nil, err
}

// finalizeCustomer is best effort; the order stands whatever happens here.
func (s *Service) finalizeCustomer(ctx context.Context, o *domain.Order) {
	if o.CustomerID == "" || s.customers == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("customer finalize panicked", zap.String("customer_id", o.CustomerID), zap.Any("panic", rec))
		}
	}()
	if err := s.customers.Finalize(ctx, o.CustomerID, o.Totals.Total, o.Currency); err != nil {
		s.logger.Warn("failed to finalize customer",
			zap.String("customer_id", o.CustomerID),
			zap.String("order_id", o.ID.String()),
			zap.Error(err))
	}
}

func (s *Service) buildOrder(d domain.OrderDraft, payment *domain.PaymentInfo) (*domain.Order, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate order id: %w", err)
	}
	now := s.now().UTC()

	o := &domain.Order{
		ID:            id,
		StoreID:       d.StoreID,
		Number:        s.orderNumber(now),
		CheckoutKey:   CheckoutKey(d, payment),
		CustomerID:    d.CustomerID,
		Contact:       d.Contact,
		Shipping:      d.Shipping,
		Totals:        d.Totals,
		Currency:      strings.ToUpper(d.Currency),
		Channel:       d.Channel,
		PaymentMethod: d.Payment.Method,
		PaymentType:   ClassifyPaymentMethod(d.Payment.Method),
		PaidAmount:    decimal.Zero,
		Notes:         d.Notes,
		CreatedAt:     now,
	}
	if o.CheckoutKey == "" {
		o.CheckoutKey = d.SessionID + ":" + id.String()
	}
	for _, l := range d.Lines {
		o.Lines = append(o.Lines, domain.OrderLine{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}

	if payment != nil {
		if payment.PaymentType != "" && payment.PaymentType.Valid() {
			o.PaymentType = payment.PaymentType
		}
		o.TransactionID = payment.TransactionID
	}

	switch {
	case o.Channel == domain.ChannelHostedCheckout && payment != nil && payment.IsPaid:
		o.Status = domain.OrderStatusConfirmed
		o.PaymentStatus = domain.PaymentStatusPaid
		o.PaidAmount = payment.PaidAmount
		if o.PaidAmount.IsZero() {
			o.PaidAmount = o.Totals.Total
		}
	case o.Channel == domain.ChannelHostedCheckout:
		o.Status = domain.OrderStatusAwaitingPayment
		o.PaymentStatus = domain.PaymentStatusPending
	default:
		o.Status = domain.OrderStatusPending
		o.PaymentStatus = domain.PaymentStatusPending
	}
	return o, nil
}

func (s *Service) outboxEvents(o *domain.Order) ([]r.OutboxEvent, error) {
	committed, err := json.Marshal(OrderCommitted{
		EventType:     r.EventOrderCommitted,
		OrderID:       o.ID.String(),
		SessionID:     SessionFromCheckoutKey(o.CheckoutKey),
		Number:        o.Number,
		StoreID:       o.StoreID,
		CustomerID:    o.CustomerID,
		Channel:       o.Channel,
		Status:        o.Status,
		PaymentType:   o.PaymentType,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Totals.Total,
		Currency:      o.Currency,
		Lines:         o.Lines,
		CommittedAt:   o.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", r.EventOrderCommitted, err)
	}
	events := []r.OutboxEvent{{AggregateID: o.ID.String(), EventType: r.EventOrderCommitted, Payload: committed}}

	purchaser := o.Contact.Email
	if purchaser == "" {
		purchaser = o.Contact.Phone
	}
	notifications := []struct {
		eventType string
		recipient string
		render    func(*domain.Order, domain.StoreProfile) (string, error)
	}{
		{r.EventNotifyPurchaser, purchaser, PurchaserMessage},
		{r.EventNotifyOwner, s.store.Contact(), OwnerMessage},
	}
	for _, n := range notifications {
		if n.recipient == "" {
			continue
		}
		content, err := n.render(o, s.store)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(messaging.Message{Recipient: n.recipient, Content: content, SentAt: o.CreatedAt})
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", n.eventType, err)
		}
		events = append(events, r.OutboxEvent{AggregateID: o.ID.String(), EventType: n.eventType, Payload: payload})
	}
	return events, nil
}

// SessionFromCheckoutKey returns the browsing session an order was placed from.
func SessionFromCheckoutKey(key string) string {
	sessionID, _, found := strings.Cut(key, ":")
	if !found {
		return ""
	}
	return sessionID
}

func parseID(orderID string) (uuid.UUID, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return uuid.Nil, r.ErrOrderNotFound
	}
	return id, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	id, err := parseID(orderID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrderByID(ctx, id)
}

// FindByTransactionID lets reconciliation recognise a payment it has already turned into an order.
func (s *Service) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error) {
	return s.repo.FindByTransactionID(ctx, transactionID)
}

func (s *Service) AppendStatus(ctx context.Context, orderID string, status domain.OrderStatus, note string) error {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusAwaitingPayment, domain.OrderStatusConfirmed, domain.OrderStatusCancelled:
	default:
		return domain.NewValidationError("status", "unknown order status")
	}
	id, err := parseID(orderID)
	if err != nil {
		return err
	}
	return s.repo.AppendStatus(ctx, id, status, note)
}

func (s *Service) History(ctx context.Context, orderID string) ([]r.StatusChange, error) {
	id, err := parseID(orderID)
	if err != nil {
		return nil, err
	}
	return s.repo.StatusHistory(ctx, id)
}
