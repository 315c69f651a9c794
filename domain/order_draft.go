package domain

import "github.com/shopspring/decimal"

type Channel string

const (
	ChannelDirectMessage  Channel = "direct_message"
	ChannelHostedCheckout Channel = "hosted_checkout"
)

func (c Channel) Valid() bool {
	return c == ChannelDirectMessage || c == ChannelHostedCheckout
}

type ShippingMethod string

const (
	ShippingPickup   ShippingMethod = "pickup"
	ShippingDelivery ShippingMethod = "delivery"
)

type Contact struct {
	Email    string `json:"email" bson:"email"`
	Phone    string `json:"phone" bson:"phone"`
	FullName string `json:"full_name" bson:"full_name"`
}

type Shipping struct {
	Method     ShippingMethod  `json:"method"`
	Address    string          `json:"address,omitempty"`
	City       string          `json:"city,omitempty"`
	State      string          `json:"state,omitempty"`
	PostalCode string          `json:"postal_code,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	Cost       decimal.Decimal `json:"cost"`
}

type PaymentSelection struct {
	// Method is the free-text label chosen on the storefront.
	Method   string `json:"method"`
	Provider string `json:"provider,omitempty"`
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

type OrderDraft struct {
	StoreID   string `json:"store_id"`
	SessionID string `json:"session_id"`
	// AttemptID names one pass through checkout; a resubmitted draft keeps it.
	AttemptID  string           `json:"attempt_id,omitempty"`
	CustomerID string           `json:"customer_id,omitempty"`
	Contact    Contact          `json:"contact"`
	Shipping   Shipping         `json:"shipping"`
	Payment    PaymentSelection `json:"payment"`
	Lines      []CartLine       `json:"lines"`
	Totals     Totals           `json:"totals"`
	Currency   string           `json:"currency"`
	Channel    Channel          `json:"channel"`
	Notes      string           `json:"notes,omitempty"`
}
