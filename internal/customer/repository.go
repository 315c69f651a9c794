package customer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
)

var (
	ErrCustomerNotFound  = fmt.Errorf("customer %w", domain.ErrNotFound)
	ErrDuplicateCustomer = errors.New("customer already exists")
)

// Repository is what the tracker and the recovery job need from customer storage.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.CustomerRecord, error)
	FindByEmail(ctx context.Context, storeID, email string) (*domain.CustomerRecord, error)
	FindByPhone(ctx context.Context, storeID, phone string) (*domain.CustomerRecord, error)
	// Insert returns ErrDuplicateCustomer when the email or phone is taken in the store.
	Insert(ctx context.Context, c *domain.CustomerRecord) error
	Update(ctx context.Context, c *domain.CustomerRecord) error
	// ListAbandoned returns customers holding an abandonment snapshot whose
	// checkout is not complete and who were last active before idleBefore,
	// oldest abandonment first.
	ListAbandoned(ctx context.Context, storeID string, idleBefore time.Time, limit int) ([]*domain.CustomerRecord, error)
}
