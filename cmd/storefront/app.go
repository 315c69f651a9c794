package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/customer"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/fjod/go_cart/storefront/internal/messaging"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app owns the infrastructure shared by every command.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	kv      kv.Store
	repo    *repository.Repository
	tracker *customer.Tracker
	sender  messaging.Sender
	closers []func() error
}

func loadApp() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}

type component int

const (
	kvStore component = iota
	postgres
	customers
	notifications
)

// newApp connects only the components a command asks for.
func newApp(ctx context.Context, components ...component) (*app, error) {
	cfg, log, err := loadApp()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	connect := map[component]func(context.Context) error{
		kvStore:       a.connectKV,
		postgres:      a.connectPostgres,
		customers:     a.connectCustomers,
		notifications: a.connectMessaging,
	}
	for _, c := range components {
		if err := connect[c](ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) connectKV(ctx context.Context) error {
	if a.cfg.Redis.Addr == "" {
		a.log.Warn("REDIS_ADDR not set, session slots are kept in memory")
		a.kv = kv.NewMemoryStore()
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.onClose(client.Close)
	a.kv = kv.NewRedisStore(client, a.cfg.Redis.Namespace)
	a.log.Info("connected to redis", zap.String("addr", a.cfg.Redis.Addr))
	return nil
}

func (a *app) connectPostgres(ctx context.Context) error {
	repo, err := repository.NewRepository(ctx, a.cfg.Postgres.Credentials())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.onClose(repo.Close)
	a.repo = repo

	if a.cfg.Postgres.RunMigrations {
		version, err := repo.RunMigrations()
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.log.Info("database migrations completed", zap.Uint("version", version))
	}
	return nil
}

func (a *app) connectCustomers(ctx context.Context) error {
	if a.cfg.Mongo.URI == "" {
		a.log.Warn("MONGO_URI not set, customer records are kept in memory")
		a.tracker = customer.NewTracker(customer.NewMemoryRepository(), a.log)
		return nil
	}
	db, err := customer.ConnectMongoDB(ctx, a.cfg.Mongo.URI, a.cfg.Mongo.Database)
	if err != nil {
		return err
	}
	a.onClose(func() error { return db.Client().Disconnect(context.Background()) })

	repo := customer.NewMongoRepository(db)
	if err := repo.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create customer indexes: %w", err)
	}
	a.tracker = customer.NewTracker(repo, a.log)
	return nil
}

func (a *app) connectMessaging(context.Context) error {
	if a.cfg.RabbitMQ.URL == "" {
		a.log.Warn("RABBITMQ_URL not set, notifications are only logged")
		a.sender = messaging.NewLogSender(a.log)
		return nil
	}
	conn, err := messaging.Dial(a.cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	a.onClose(conn.Close)

	sender, err := messaging.NewRabbitSender(conn)
	if err != nil {
		return err
	}
	a.onClose(sender.Close)
	a.sender = messaging.NewBreakerSender(sender, circuitbreaker.New("rabbitmq", circuitbreaker.DefaultConfig(), a.log))
	return nil
}
