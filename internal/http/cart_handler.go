package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxQuantity = 99

type CartHandler struct {
	carts   kv.Store
	timeout time.Duration
}

func NewCartHandler(carts kv.Store, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"image_url,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) open(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc, *cart.Store, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	store, err := cart.Open(ctx, h.carts, sessionIDFromContext(r.Context()))
	if err != nil {
		cancel()
		handleServiceError(w, err)
		return nil, nil, nil, false
	}
	return ctx, cancel, store, true
}

// respondCart answers with the snapshot even when persisting failed: the
// mutation is kept in memory and the next write retries it.
func respondCart(w http.ResponseWriter, status int, snap domain.CartSnapshot, err error) {
	if err != nil && !isTransient(err) {
		handleServiceError(w, err)
		return
	}
	if err != nil {
		w.Header().Set("X-Cart-Persisted", "false")
	}
	respondJSON(w, status, snap)
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	_, cancel, store, ok := h.open(w, r)
	if !ok {
		return
	}
	defer cancel()

	respondJSON(w, http.StatusOK, store.Snapshot())
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// Validate request
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	ctx, cancel, store, ok := h.open(w, r)
	if !ok {
		return
	}
	defer cancel()

	snap, err := store.AddLine(ctx, domain.CartLine{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Currency:  req.Currency,
		ImageURL:  req.ImageURL,
	}, req.Quantity)
	respondCart(w, http.StatusCreated, snap, err)
}

// PUT /api/v1/cart/items/{lineID}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "lineID")

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity < 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	ctx, cancel, store, ok := h.open(w, r)
	if !ok {
		return
	}
	defer cancel()

	snap, err := store.SetQuantity(ctx, lineID, req.Quantity)
	respondCart(w, http.StatusOK, snap, err)
}

// DELETE /api/v1/cart/items/{lineID}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, store, ok := h.open(w, r)
	if !ok {
		return
	}
	defer cancel()

	snap, err := store.RemoveLine(ctx, chi.URLParam(r, "lineID"))
	respondCart(w, http.StatusOK, snap, err)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, store, ok := h.open(w, r)
	if !ok {
		return
	}
	defer cancel()

	snap, err := store.Clear(ctx)
	respondCart(w, http.StatusOK, snap, err)
}
