package order

import (
	"strings"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/shopspring/decimal"
)

// Validate collects every problem with the draft. Nothing here is retryable.
func Validate(d domain.OrderDraft) error {
	v := &domain.ValidationError{}

	if d.StoreID == "" {
		v.Add("store_id", "required")
	}
	if strings.TrimSpace(d.Contact.FullName) == "" {
		v.Add("contact.full_name", "required")
	}
	if strings.TrimSpace(d.Contact.Email) == "" && strings.TrimSpace(d.Contact.Phone) == "" {
		v.Add("contact", "email or phone required")
	}
	if !d.Channel.Valid() {
		v.Add("channel", "unknown channel")
	}
	switch d.Shipping.Method {
	case domain.ShippingPickup:
	case domain.ShippingDelivery:
		if strings.TrimSpace(d.Shipping.Address) == "" {
			v.Add("shipping.address", "required for delivery")
		}
	default:
		v.Add("shipping.method", "must be pickup or delivery")
	}
	if d.Currency == "" {
		v.Add("currency", "required")
	}

	if len(d.Lines) == 0 {
		v.Add("lines", "order has no items")
	}
	sum := decimal.Zero
	for _, l := range d.Lines {
		if l.Quantity <= 0 {
			v.Add("lines."+l.LineID+".quantity", "must be greater than 0")
		}
		if l.UnitPrice.IsNegative() {
			v.Add("lines."+l.LineID+".unit_price", "must not be negative")
		}
		if d.Currency != "" && !strings.EqualFold(l.Currency, d.Currency) {
			v.Add("lines."+l.LineID+".currency", domain.ErrCurrencyMismatch.Error())
		}
		sum = sum.Add(l.Subtotal())
	}

	if !d.Totals.Subtotal.IsPositive() {
		v.Add("totals.subtotal", "must be positive")
	}
	if !d.Totals.Total.IsPositive() {
		v.Add("totals.total", "must be positive")
	}
	if d.Totals.Shipping.IsNegative() {
		v.Add("totals.shipping", "must not be negative")
	}
	if len(d.Lines) > 0 && !sum.Equal(d.Totals.Subtotal) {
		v.Add("totals.subtotal", "does not match the items")
	}
	if !d.Totals.Subtotal.Add(d.Totals.Shipping).Equal(d.Totals.Total) {
		v.Add("totals.total", "does not equal subtotal plus shipping")
	}

	return v.OrNil()
}
