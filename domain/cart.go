package domain

import "github.com/shopspring/decimal"

type CartLine struct {
	LineID    string          `json:"line_id" bson:"line_id"`
	ProductID string          `json:"product_id" bson:"product_id"`
	VariantID string          `json:"variant_id,omitempty" bson:"variant_id,omitempty"`
	Name      string          `json:"name" bson:"name"`
	UnitPrice decimal.Decimal `json:"unit_price" bson:"unit_price"`
	Currency  string          `json:"currency" bson:"currency"`
	Quantity  int             `json:"quantity" bson:"quantity"`
	ImageURL  string          `json:"image_url,omitempty" bson:"image_url,omitempty"`
}

// LineID is deterministic so that re-adding the same product/variant pair
// lands on the same line.
func LineID(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + "::" + variantID
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartSnapshot is derived from the lines on every mutation.
type CartSnapshot struct {
	Lines      []CartLine      `json:"lines"`
	TotalItems int             `json:"total_items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Currency   string          `json:"currency"`
}
