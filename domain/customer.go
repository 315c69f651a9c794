package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AbandonedCart struct {
	Items          []CartLine      `json:"items" bson:"items"`
	Subtotal       decimal.Decimal `json:"subtotal" bson:"subtotal"`
	Currency       string          `json:"currency" bson:"currency"`
	AbandonedAt    time.Time       `json:"abandoned_at" bson:"abandoned_at"`
	EmailSent      bool            `json:"email_sent" bson:"email_sent"`
	ReminderCount  int             `json:"reminder_count" bson:"reminder_count"`
	LastReminderAt *time.Time      `json:"last_reminder_at,omitempty" bson:"last_reminder_at,omitempty"`
}

type CustomerRecord struct {
	ID                  string          `json:"id" bson:"_id"`
	StoreID             string          `json:"store_id" bson:"store_id"`
	Email               string          `json:"email,omitempty" bson:"email,omitempty"`
	Phone               string          `json:"phone,omitempty" bson:"phone,omitempty"`
	FullName            string          `json:"full_name" bson:"full_name"`
	TotalOrders         int             `json:"total_orders" bson:"total_orders"`
	TotalSpent          decimal.Decimal `json:"total_spent" bson:"total_spent"`
	Currency            string          `json:"currency" bson:"currency"`
	CheckoutStepReached CheckoutStep    `json:"checkout_step_reached" bson:"checkout_step_reached"`
	LastActiveAt        time.Time       `json:"last_active_at" bson:"last_active_at"`
	AbandonedCart       *AbandonedCart  `json:"abandoned_cart" bson:"abandoned_cart"`
	CreatedAt           time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" bson:"updated_at"`
}

func (c *CustomerRecord) Recipient() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Phone
}
