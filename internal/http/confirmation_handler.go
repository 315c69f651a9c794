package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/order"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TokenConsumer interface {
	ValidateAndConsume(ctx context.Context, id string) (*domain.ConfirmationToken, error)
}

type CartRestorer interface {
	Restore(ctx context.Context, sessionID, customerID string) (domain.CartSnapshot, error)
}

type OrderReader interface {
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	History(ctx context.Context, orderID string) ([]repository.StatusChange, error)
}

type ConfirmationHandler struct {
	tokens  TokenConsumer
	timeout time.Duration
}

func NewConfirmationHandler(tokens TokenConsumer, timeout time.Duration) *ConfirmationHandler {
	return &ConfirmationHandler{tokens: tokens, timeout: timeout}
}

type ConfirmationResponseDTO struct {
	OrderID       string            `json:"order_id"`
	StoreID       string            `json:"store_id"`
	PaymentMethod string            `json:"payment_method"`
	Order         domain.OrderDraft `json:"order"`
	CreatedAt     time.Time         `json:"created_at"`
}

// GET /api/v1/confirmation/{tokenID}
func (h *ConfirmationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tok, err := h.tokens.ValidateAndConsume(ctx, chi.URLParam(r, "tokenID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if tok == nil {
		respondError(w, http.StatusNotFound, "not_found", "confirmation not found")
		return
	}

	respondJSON(w, http.StatusOK, ConfirmationResponseDTO{
		OrderID:       tok.OrderID,
		StoreID:       tok.StoreID,
		PaymentMethod: tok.PaymentMethod,
		Order:         tok.OrderSnapshot,
		CreatedAt:     tok.CreatedAt,
	})
}

type RecoveryHandler struct {
	restorer CartRestorer
	cartView string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewRecoveryHandler(restorer CartRestorer, cartView string, timeout time.Duration, log *zap.Logger) *RecoveryHandler {
	return &RecoveryHandler{restorer: restorer, cartView: cartView, timeout: timeout, logger: logger.OrNop(log)}
}

// GET /recover/{customerID}
func (h *RecoveryHandler) Recover(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID := chi.URLParam(r, "customerID")
	_, err := h.restorer.Restore(ctx, sessionIDFromContext(r.Context()), customerID)
	if err != nil && !isTransient(err) {
		handleServiceError(w, err)
		return
	}
	if err != nil {
		// the shopper still lands on the cart, just without the saved items
		h.logger.Warn("failed to restore abandoned cart", zap.String("customer_id", customerID), zap.Error(err))
	}
	http.Redirect(w, r, h.cartView, http.StatusSeeOther)
}

type OrdersHandler struct {
	orders  OrderReader
	timeout time.Duration
}

func NewOrdersHandler(orders OrderReader, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout}
}

type OrderResponseDTO struct {
	*domain.Order
	History []repository.StatusChange `json:"history"`
}

// GET /api/v1/orders/{orderID}
// Only the session that placed the order can read it.
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID := chi.URLParam(r, "orderID")
	o, err := h.orders.Get(ctx, orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if order.SessionFromCheckoutKey(o.CheckoutKey) != sessionIDFromContext(r.Context()) {
		respondError(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	history, err := h.orders.History(ctx, orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderResponseDTO{Order: o, History: history})
}
