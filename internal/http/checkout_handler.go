package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/customer"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/fjod/go_cart/storefront/internal/reconcile"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
)

type OrderCommitter interface {
	Commit(ctx context.Context, draft domain.OrderDraft, payment *domain.PaymentInfo) (string, bool, error)
}

type CustomerTracker interface {
	UpsertStep1(ctx context.Context, id customer.Identity, cart domain.CartSnapshot) (string, error)
	UpdateStep2(ctx context.Context, customerID string) error
	UpdateStep3(ctx context.Context, customerID string) error
}

type SessionSaver interface {
	Attempt(ctx context.Context, sessionID string) (string, error)
	Save(ctx context.Context, sessionID string, draft domain.OrderDraft, step domain.CheckoutStep, provider string, ids *domain.TransactionIDs) (*domain.CheckoutSessionState, error)
	Clear(ctx context.Context, sessionID string) error
}

type TokenIssuer interface {
	Issue(ctx context.Context, draft domain.OrderDraft, orderID, storeID string) (string, error)
}

type ReturnHandler interface {
	HandleReturn(ctx context.Context, sessionID string, params url.Values) reconcile.Outcome
}

type CheckoutHandler struct {
	carts     kv.Store
	orders    OrderCommitter
	customers CustomerTracker
	sessions  SessionSaver
	tokens    TokenIssuer
	returns   ReturnHandler
	store     domain.StoreProfile
	views     reconcile.Views
	timeout   time.Duration
	logger    *zap.Logger
}

func NewCheckoutHandler(carts kv.Store, orders OrderCommitter, customers CustomerTracker, sessions SessionSaver,
	tokens TokenIssuer, returns ReturnHandler, store domain.StoreProfile, views reconcile.Views, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		carts:     carts,
		orders:    orders,
		customers: customers,
		sessions:  sessions,
		tokens:    tokens,
		returns:   returns,
		store:     store,
		views:     views,
		timeout:   timeout,
		logger:    logger.OrNop(log),
	}
}

type IdentityRequestDTO struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	FullName string `json:"full_name"`
}

type StepRequestDTO struct {
	CustomerID string `json:"customer_id"`
}

type StepResponseDTO struct {
	CustomerID string `json:"customer_id,omitempty"`
	Step       string `json:"step"`
	Tracked    bool   `json:"tracked"`
}

type CheckoutRequestDTO struct {
	CustomerID string                  `json:"customer_id,omitempty"`
	Contact    domain.Contact          `json:"contact"`
	Shipping   domain.Shipping         `json:"shipping"`
	Payment    domain.PaymentSelection `json:"payment"`
	Notes      string                  `json:"notes,omitempty"`
}

type CommitResponseDTO struct {
	OrderID  string `json:"order_id"`
	TokenID  string `json:"token_id,omitempty"`
	Redirect string `json:"redirect"`
}

// POST /api/v1/checkout/identity
func (h *CheckoutHandler) Identity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req IdentityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	sessionID := sessionIDFromContext(r.Context())
	c, err := cart.Open(ctx, h.carts, sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	snap := c.Snapshot()

	customerID, err := h.customers.UpsertStep1(ctx, customer.Identity{
		StoreID:  h.store.ID,
		Email:    req.Email,
		Phone:    req.Phone,
		FullName: req.FullName,
		Currency: snap.Currency,
	}, snap)
	if errors.Is(err, domain.ErrValidation) {
		handleServiceError(w, err)
		return
	}
	if err != nil {
		// tracking is best effort, the shopper keeps going
		h.logger.Warn("failed to track customer", zap.String("session_id", sessionID), zap.Error(err))
		respondJSON(w, http.StatusOK, StepResponseDTO{Step: domain.StepIdentity.String()})
		return
	}
	respondJSON(w, http.StatusOK, StepResponseDTO{CustomerID: customerID, Step: domain.StepIdentity.String(), Tracked: true})
}

// POST /api/v1/checkout/shipping
func (h *CheckoutHandler) Shipping(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, domain.StepShipping, h.customers.UpdateStep2)
}

// POST /api/v1/checkout/payment
func (h *CheckoutHandler) Payment(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, domain.StepPaymentPrefs, h.customers.UpdateStep3)
}

func (h *CheckoutHandler) advance(w http.ResponseWriter, r *http.Request, step domain.CheckoutStep, update func(context.Context, string) error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req StepRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	resp := StepResponseDTO{CustomerID: req.CustomerID, Step: step.String()}
	if req.CustomerID == "" {
		respondJSON(w, http.StatusOK, resp)
		return
	}
	if err := update(ctx, req.CustomerID); err != nil {
		h.logger.Warn("failed to advance customer",
			zap.String("customer_id", req.CustomerID),
			zap.String("step", step.String()),
			zap.Error(err))
		respondJSON(w, http.StatusOK, resp)
		return
	}
	resp.Tracked = true
	respondJSON(w, http.StatusOK, resp)
}

// draft assembles the order draft from the request and the session's cart.
// Lines and subtotal always come from the server side cart.
func (h *CheckoutHandler) draft(ctx context.Context, sessionID string, req CheckoutRequestDTO, channel domain.Channel) (domain.OrderDraft, error) {
	c, err := cart.Open(ctx, h.carts, sessionID)
	if err != nil {
		return domain.OrderDraft{}, err
	}
	snap := c.Snapshot()
	if len(snap.Lines) == 0 {
		return domain.OrderDraft{}, domain.NewValidationError("lines", "cart is empty")
	}
	attemptID, err := h.sessions.Attempt(ctx, sessionID)
	if err != nil {
		return domain.OrderDraft{}, err
	}

	return domain.OrderDraft{
		StoreID:    h.store.ID,
		SessionID:  sessionID,
		AttemptID:  attemptID,
		CustomerID: req.CustomerID,
		Contact:    req.Contact,
		Shipping:   req.Shipping,
		Payment:    req.Payment,
		Lines:      snap.Lines,
		Totals: domain.Totals{
			Subtotal: snap.Subtotal,
			Shipping: req.Shipping.Cost,
			Total:    snap.Subtotal.Add(req.Shipping.Cost),
		},
		Currency: snap.Currency,
		Channel:  channel,
		Notes:    req.Notes,
	}, nil
}

// POST /api/v1/checkout/commit
func (h *CheckoutHandler) Commit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	sessionID := sessionIDFromContext(r.Context())
	draft, err := h.draft(ctx, sessionID, req, domain.ChannelDirectMessage)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	orderID, ok, err := h.orders.Commit(ctx, draft, nil)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !ok {
		// cart stays as it is so the shopper can resubmit
		respondError(w, http.StatusServiceUnavailable, "commit_failed", "order could not be placed, please retry")
		return
	}

	resp := CommitResponseDTO{OrderID: orderID}
	tokenID, err := h.tokens.Issue(ctx, draft, orderID, h.store.ID)
	if err != nil {
		h.logger.Warn("failed to issue confirmation token", zap.String("order_id", orderID), zap.Error(err))
		resp.Redirect = h.views.Confirmation + "?" + url.Values{"order": {orderID}}.Encode()
	} else {
		resp.TokenID = tokenID
		resp.Redirect = h.views.Confirmation + "?" + url.Values{"token": {tokenID}}.Encode()
	}

	if err := cart.Discard(ctx, h.carts, sessionID); err != nil {
		h.logger.Warn("failed to discard cart", zap.String("order_id", orderID), zap.Error(err))
	}
	if err := h.sessions.Clear(ctx, sessionID); err != nil {
		h.logger.Warn("failed to clear checkout state", zap.String("order_id", orderID), zap.Error(err))
	}
	respondJSON(w, http.StatusCreated, resp)
}

// POST /api/v1/checkout/hosted
func (h *CheckoutHandler) Hosted(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Payment.Provider == "" {
		respondError(w, http.StatusBadRequest, "invalid_argument", "payment.provider is required")
		return
	}

	sessionID := sessionIDFromContext(r.Context())
	draft, err := h.draft(ctx, sessionID, req, domain.ChannelHostedCheckout)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	state, err := h.sessions.Save(ctx, sessionID, draft, domain.StepPaymentPrefs, req.Payment.Provider, nil)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, state)
}

// GET /api/v1/checkout/return
func (h *CheckoutHandler) Return(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	outcome := h.returns.HandleReturn(ctx, sessionIDFromContext(r.Context()), r.URL.Query())
	http.Redirect(w, r, outcome.Redirect, http.StatusSeeOther)
}
