package order

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/storefront/domain"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockRepository keeps orders in memory and enforces the unique checkout key
// and transaction id the way the Postgres schema does.
type MockRepository struct {
	mu        sync.Mutex
	Orders    map[uuid.UUID]*domain.Order
	Events    []r.OutboxEvent
	History   map[uuid.UUID][]r.StatusChange
	CreateErr error
	Panic     bool
	Creates   int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		Orders:  map[uuid.UUID]*domain.Order{},
		History: map[uuid.UUID][]r.StatusChange{},
	}
}

func (m *MockRepository) CreateOrder(_ context.Context, o *domain.Order, events []r.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Creates++
	if m.Panic {
		panic("driver exploded")
	}
	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, existing := range m.Orders {
		if existing.CheckoutKey == o.CheckoutKey {
			return r.ErrDuplicateOrder
		}
		if o.TransactionID != "" && existing.TransactionID == o.TransactionID {
			return r.ErrDuplicateOrder
		}
	}
	cp := *o
	m.Orders[o.ID] = &cp
	m.Events = append(m.Events, events...)
	m.History[o.ID] = append(m.History[o.ID], r.StatusChange{Status: o.Status, Note: "created"})
	return nil
}

func (m *MockRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockRepository) find(match func(*domain.Order) bool) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.Orders {
		if match(o) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, r.ErrOrderNotFound
}

func (m *MockRepository) FindByCheckoutKey(_ context.Context, key string) (*domain.Order, error) {
	return m.find(func(o *domain.Order) bool { return o.CheckoutKey == key })
}

func (m *MockRepository) FindByTransactionID(_ context.Context, txID string) (*domain.Order, error) {
	return m.find(func(o *domain.Order) bool { return txID != "" && o.TransactionID == txID })
}

func (m *MockRepository) AppendStatus(_ context.Context, id uuid.UUID, status domain.OrderStatus, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok {
		return r.ErrOrderNotFound
	}
	o.Status = status
	m.History[id] = append(m.History[id], r.StatusChange{Status: status, Note: note})
	return nil
}

func (m *MockRepository) StatusHistory(_ context.Context, id uuid.UUID) ([]r.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]r.StatusChange(nil), m.History[id]...), nil
}

func (m *MockRepository) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.Events {
		out = append(out, e.EventType)
	}
	return out
}

type MockFinalizer struct {
	Calls []string
	Err   error
	Panic bool
}

func (m *MockFinalizer) Finalize(_ context.Context, customerID string, _ decimal.Decimal, _ string) error {
	if m.Panic {
		panic("finalize exploded")
	}
	m.Calls = append(m.Calls, customerID)
	return m.Err
}
