package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/consumer"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/order"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/ratelimit"
	"github.com/fjod/go_cart/storefront/internal/reconcile"
	"github.com/fjod/go_cart/storefront/internal/recovery"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/token"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP API with its outbox publisher and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := interruptible(cmd)
			defer stop()
			return runServe(ctx)
		},
	}
}

func recoveryConfig(a *app) recovery.Config {
	return recovery.Config{
		BaseURL:      a.cfg.BaseURL,
		MaxReminders: a.cfg.Recovery.MaxReminders,
		MinInterval:  a.cfg.Recovery.MinInterval,
		Concurrency:  a.cfg.Recovery.Concurrency,
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx, kvStore, postgres, customers, notifications)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	orders := order.NewService(a.repo, a.tracker, cfg.Store, a.log)
	sessions := session.NewStore(a.kv, cfg.Checkout.SessionTTL, a.log)
	tokens := token.NewManager(a.kv, cfg.Checkout.TokenTTL, a.log)
	views := reconcile.DefaultViews()
	discard := func(ctx context.Context, sessionID string) error {
		return cart.Discard(ctx, a.kv, sessionID)
	}
	reconciler := reconcile.NewReconciler(orders, sessions, tokens, discard, views, a.log)
	recoverer := recovery.NewService(a.tracker, a.sender, a.kv, cfg.Store, recoveryConfig(a), a.log)

	var writer publisher.MessageWriter
	var cleaner *consumer.CartCleaner
	if len(cfg.Kafka.Brokers) > 0 {
		kw := publisher.NewKafkaWriter(cfg.Kafka.Brokers...)
		defer kw.Close()
		writer = publisher.NewBreakerWriter(kw, circuitbreaker.New("kafka", circuitbreaker.DefaultConfig(), a.log))
		cleaner = consumer.NewCartCleaner(consumer.NewKafkaReader(cfg.Kafka.Brokers...), discard, a.log)
		defer cleaner.Close()
	} else {
		a.log.Warn("KAFKA_BROKERS not set, order events are not published")
	}
	poller := publisher.NewOutboxPoller(a.repo, writer, a.sender, a.log).WithTick(cfg.Checkout.OutboxTick)

	timeout := cfg.RequestTimeout
	handlers := h.Handlers{
		Cart:         h.NewCartHandler(a.kv, timeout),
		Checkout:     h.NewCheckoutHandler(a.kv, orders, a.tracker, sessions, tokens, reconciler, cfg.Store, views, timeout, a.log),
		Confirmation: h.NewConfirmationHandler(tokens, timeout),
		Recovery:     h.NewRecoveryHandler(recoverer, "/cart", timeout, a.log),
		Orders:       h.NewOrdersHandler(orders, timeout),
	}
	window := cfg.RateLimit.Window
	limits := h.Limiters{
		Commit:  ratelimit.New(a.kv, "commit", cfg.RateLimit.Commit, window, a.log),
		Confirm: ratelimit.New(a.kv, "confirm", cfg.RateLimit.Confirm, window, a.log),
		Return:  ratelimit.New(a.kv, "return", cfg.RateLimit.Return, window, a.log),
	}
	router := h.NewRouter(handlers, limits, h.RouterConfig{
		RequestTimeout:     timeout,
		SessionCookieAge:   cart.DefaultRetention,
		MaxRequestBodySize: 1 << 20, // 1MB
	}, a.log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("storefront starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})
	if cleaner != nil {
		g.Go(func() error {
			cleaner.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		tokens.Run(gctx, cfg.Checkout.TokenCleanupInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("server exited")
	return nil
}
