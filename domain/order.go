package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	OrderStatusConfirmed       OrderStatus = "CONFIRMED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// PaymentType is a closed set; anything the storefront sends that does not
// map onto one of the known types becomes PaymentTypeUnknown.
type PaymentType string

const (
	PaymentTypeCashOnDelivery PaymentType = "cash_on_delivery"
	PaymentTypeCardOnDelivery PaymentType = "card_on_delivery"
	PaymentTypeMobileTransfer PaymentType = "mobile_transfer"
	PaymentTypeOnlinePayment  PaymentType = "online_payment"
	PaymentTypeUnknown        PaymentType = "unknown"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeCashOnDelivery, PaymentTypeCardOnDelivery, PaymentTypeMobileTransfer,
		PaymentTypeOnlinePayment, PaymentTypeUnknown:
		return true
	}
	return false
}

type PaymentInfo struct {
	IsPaid        bool            `json:"is_paid"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PaymentType   PaymentType     `json:"payment_type,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

type OrderLine struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	StoreID       string          `json:"store_id"`
	Number        string          `json:"number"`
	CheckoutKey   string          `json:"-"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Contact       Contact         `json:"contact"`
	Shipping      Shipping        `json:"shipping"`
	Lines         []OrderLine     `json:"lines"`
	Totals        Totals          `json:"totals"`
	Currency      string          `json:"currency"`
	Channel       Channel         `json:"channel"`
	Status        OrderStatus     `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	PaymentType   PaymentType     `json:"payment_type"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
