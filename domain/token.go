package domain

import "time"

type ConfirmationToken struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	OrderSnapshot OrderDraft `json:"order_snapshot"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Used          bool       `json:"used"`
	PaymentMethod string     `json:"payment_method"`
	StoreID       string     `json:"store_id"`
}

func (t *ConfirmationToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
