package customer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
)

// MemoryRepository backs single-process dev mode and tests. Records are
// copied in and out so callers never share state with the map.
type MemoryRepository struct {
	mu        sync.RWMutex
	customers map[string]*domain.CustomerRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{customers: make(map[string]*domain.CustomerRecord)}
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*domain.CustomerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return copyRecord(c), nil
}

func (r *MemoryRepository) FindByEmail(_ context.Context, storeID, email string) (*domain.CustomerRecord, error) {
	return r.find(func(c *domain.CustomerRecord) bool {
		return email != "" && c.StoreID == storeID && c.Email == email
	})
}

func (r *MemoryRepository) FindByPhone(_ context.Context, storeID, phone string) (*domain.CustomerRecord, error) {
	return r.find(func(c *domain.CustomerRecord) bool {
		return phone != "" && c.StoreID == storeID && c.Phone == phone
	})
}

func (r *MemoryRepository) find(match func(*domain.CustomerRecord) bool) (*domain.CustomerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.customers {
		if match(c) {
			return copyRecord(c), nil
		}
	}
	return nil, ErrCustomerNotFound
}

func (r *MemoryRepository) Insert(_ context.Context, c *domain.CustomerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.customers[c.ID]; ok {
		return ErrDuplicateCustomer
	}
	if r.conflicts(c) {
		return ErrDuplicateCustomer
	}
	r.customers[c.ID] = copyRecord(c)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, c *domain.CustomerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.customers[c.ID]; !ok {
		return ErrCustomerNotFound
	}
	if r.conflicts(c) {
		return ErrDuplicateCustomer
	}
	r.customers[c.ID] = copyRecord(c)
	return nil
}

// conflicts mirrors the unique (store_id, email) and (store_id, phone) indexes.
func (r *MemoryRepository) conflicts(c *domain.CustomerRecord) bool {
	for id, other := range r.customers {
		if id == c.ID || other.StoreID != c.StoreID {
			continue
		}
		if c.Email != "" && other.Email == c.Email {
			return true
		}
		if c.Phone != "" && other.Phone == c.Phone {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) ListAbandoned(_ context.Context, storeID string, idleBefore time.Time, limit int) ([]*domain.CustomerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.CustomerRecord
	for _, c := range r.customers {
		if c.StoreID != storeID || c.AbandonedCart == nil {
			continue
		}
		if c.CheckoutStepReached >= domain.StepComplete || !c.LastActiveAt.Before(idleBefore) {
			continue
		}
		out = append(out, copyRecord(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AbandonedCart.AbandonedAt.Before(out[j].AbandonedCart.AbandonedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRecord(c *domain.CustomerRecord) *domain.CustomerRecord {
	cp := *c
	if c.AbandonedCart != nil {
		ac := *c.AbandonedCart
		ac.Items = append([]domain.CartLine(nil), c.AbandonedCart.Items...)
		if c.AbandonedCart.LastReminderAt != nil {
			t := *c.AbandonedCart.LastReminderAt
			ac.LastReminderAt = &t
		}
		cp.AbandonedCart = &ac
	}
	return &cp
}
