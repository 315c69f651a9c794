package domain

import "time"

type PaymentState string

const (
	PaymentStateNone    PaymentState = ""
	PaymentStatePending PaymentState = "pending"
	PaymentStateSuccess PaymentState = "success"
	PaymentStateFailed  PaymentState = "failed"
)

// TransactionIDs is whatever the hosted provider echoed back; any field may be empty.
type TransactionIDs struct {
	PaymentID         string `json:"payment_id,omitempty"`
	ExternalReference string `json:"external_reference,omitempty"`
	ProviderSessionID string `json:"provider_session_id,omitempty"`
}

func (t TransactionIDs) IsZero() bool {
	return t == TransactionIDs{}
}

type CheckoutSessionState struct {
	SessionID       string          `json:"session_id"`
	OrderDraft      OrderDraft      `json:"order_draft"`
	CurrentStep     CheckoutStep    `json:"current_step"`
	PaymentProvider string          `json:"payment_provider"`
	PaymentStatus   PaymentState    `json:"payment_status"`
	Timestamp       time.Time       `json:"timestamp"`
	ExpiresAt       time.Time       `json:"expires_at"`
	TransactionIDs  *TransactionIDs `json:"transaction_ids,omitempty"`
	OrderID         string          `json:"order_id,omitempty"`
}

func (s *CheckoutSessionState) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
