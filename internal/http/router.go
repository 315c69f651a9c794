// Package http is the storefront's JSON API and the browser-facing
// redirects of the checkout.
package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Cart         *CartHandler
	Checkout     *CheckoutHandler
	Confirmation *ConfirmationHandler
	Recovery     *RecoveryHandler
	Orders       *OrdersHandler
}

type Limiters struct {
	Commit  *ratelimit.Limiter
	Confirm *ratelimit.Limiter
	Return  *ratelimit.Limiter
}

type RouterConfig struct {
	RequestTimeout     time.Duration
	SessionCookieAge   time.Duration
	MaxRequestBodySize int64
}

func NewRouter(h Handlers, limits Limiters, cfg RouterConfig, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}
	r.Use(middleware.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.SessionCookieAge))
		if log != nil {
			r.Use(RequestLogger(log))
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Delete("/", h.Cart.ClearCart)
				r.Post("/items", h.Cart.AddItem)
				r.Put("/items/{lineID}", h.Cart.UpdateQuantity)
				r.Delete("/items/{lineID}", h.Cart.RemoveItem)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/identity", h.Checkout.Identity)
				r.Post("/shipping", h.Checkout.Shipping)
				r.Post("/payment", h.Checkout.Payment)
				r.With(RateLimit(limits.Commit)).Post("/commit", h.Checkout.Commit)
				r.With(RateLimit(limits.Commit)).Post("/hosted", h.Checkout.Hosted)
				r.With(RateLimit(limits.Return)).Get("/return", h.Checkout.Return)
			})

			r.With(RateLimit(limits.Confirm)).Get("/confirmation/{tokenID}", h.Confirmation.Confirm)
			r.Get("/orders/{orderID}", h.Orders.GetOrder)
		})

		r.Get("/recover/{customerID}", h.Recovery.Recover)
	})

	return r
}
