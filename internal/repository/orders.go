package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type StatusChange struct {
	Status    domain.OrderStatus `json:"status"`
	Note      string             `json:"note,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

const orderColumns = `id, store_id, number, checkout_key, customer_id, contact, shipping, lines,
	subtotal, shipping_cost, total, currency, channel, status, payment_method, payment_type,
	payment_status, paid_amount, transaction_id, notes, created_at`

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order, events []OutboxEvent) error {
	contactJSON, err := json.Marshal(order.Contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}
	shippingJSON, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping: %w", err)
	}
	linesJSON, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal order lines: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		order.ID,
		order.StoreID,
		order.Number,
		order.CheckoutKey,
		nullable(order.CustomerID),
		string(contactJSON),
		string(shippingJSON),
		string(linesJSON),
		order.Totals.Subtotal,
		order.Totals.Shipping,
		order.Totals.Total,
		order.Currency,
		string(order.Channel),
		string(order.Status),
		order.PaymentMethod,
		string(order.PaymentType),
		string(order.PaymentStatus),
		order.PaidAmount,
		nullable(order.TransactionID),
		order.Notes,
		order.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if err := insertStatus(ctx, tx, order.ID, order.Status, "created"); err != nil {
		return err
	}

	for _, ev := range events {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO outbox_events (aggregate_id, event_type, payload)
             VALUES ($1, $2, $3)`,
			ev.AggregateID, ev.EventType, string(ev.Payload),
		)
		if err != nil {
			return fmt.Errorf("insert outbox event %s: %w", ev.EventType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.OrderStatus, note string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, status, note)
         VALUES ($1, $2, $3)`,
		id, string(status), note,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                                 domain.Order
		customerID, transactionID         sql.NullString
		contactJSON, shippingJSON, linesJ []byte
		channel, status, pType, pStatus   string
	)
	err := row.Scan(
		&o.ID,
		&o.StoreID,
		&o.Number,
		&o.CheckoutKey,
		&customerID,
		&contactJSON,
		&shippingJSON,
		&linesJ,
		&o.Totals.Subtotal,
		&o.Totals.Shipping,
		&o.Totals.Total,
		&o.Currency,
		&channel,
		&status,
		&o.PaymentMethod,
		&pType,
		&pStatus,
		&o.PaidAmount,
		&transactionID,
		&o.Notes,
		&o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.CustomerID = customerID.String
	o.TransactionID = transactionID.String
	o.Channel = domain.Channel(channel)
	o.Status = domain.OrderStatus(status)
	o.PaymentType = domain.PaymentType(pType)
	o.PaymentStatus = domain.PaymentStatus(pStatus)

	if err := json.Unmarshal(contactJSON, &o.Contact); err != nil {
		return nil, fmt.Errorf("unmarshal contact: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &o.Shipping); err != nil {
		return nil, fmt.Errorf("unmarshal shipping: %w", err)
	}
	if err := json.Unmarshal(linesJ, &o.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}
	return &o, nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *Repository) FindByCheckoutKey(ctx context.Context, key string) (*domain.Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE checkout_key = $1`, key))
}

func (r *Repository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error) {
	if transactionID == "" {
		return nil, ErrOrderNotFound
	}
	return scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE transaction_id = $1`, transactionID))
}

// AppendStatus moves the order to status and records the change.
func (r *Repository) AppendStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, note string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	if err := insertStatus(ctx, tx, id, status, note); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Repository) StatusHistory(ctx context.Context, id uuid.UUID) ([]StatusChange, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, note, created_at FROM order_status_history
         WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	var out []StatusChange
	for rows.Next() {
		var c StatusChange
		var status string
		if err := rows.Scan(&status, &c.Note, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		c.Status = domain.OrderStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
