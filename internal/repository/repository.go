// Package repository persists committed orders, their status history and the
// outbox of side effects in Postgres.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "storefront_schema_migrations"

var (
	ErrOrderNotFound  = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrDuplicateOrder = errors.New("order for this checkout already exists")
)

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c *Credentials) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.DBName,
		sslMode)
}

// OrderRepository is the storage the commit service and the confirmation
// reads depend on.
type OrderRepository interface {
	// CreateOrder inserts the order, its first status entry and the outbox
	// events in one transaction. A checkout key or transaction id that is
	// already taken yields ErrDuplicateOrder.
	CreateOrder(ctx context.Context, order *domain.Order, events []OutboxEvent) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByCheckoutKey(ctx context.Context, key string) (*domain.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error)
	AppendStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, note string) error
	StatusHistory(ctx context.Context, id uuid.UUID) ([]StatusChange, error)
}

// OutboxRepository is what the outbox publisher polls.
type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	MarkEventFailed(ctx context.Context, id int64, reason string) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(ctx context.Context, cred *Credentials) (*Repository, error) {
	db, err := sql.Open("postgres", cred.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.PingContext(ctx); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RunMigrations applies the embedded migrations and returns the schema version.
func (r *Repository) RunMigrations() (uint, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("could not create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return 0, fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return 0, fmt.Errorf("could not run migrations: %w", e2)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("could not read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema is dirty at version %d", version)
	}
	return version, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
