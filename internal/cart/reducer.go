// Package cart is the per-session cart: a pure reducer over line items and a
// Store that persists the reducer output to one kv slot after every mutation.
package cart

import (
	"strings"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/shopspring/decimal"
)

type ActionKind int

const (
	ActionAdd ActionKind = iota
	ActionSetQuantity
	ActionRemove
	ActionClear
	ActionLoad
)

type Action struct {
	Kind     ActionKind
	Item     domain.CartLine   // ActionAdd
	LineID   string            // ActionSetQuantity, ActionRemove
	Quantity int               // ActionAdd, ActionSetQuantity
	Lines    []domain.CartLine // ActionLoad
}

func Add(item domain.CartLine, qty int) Action {
	return Action{Kind: ActionAdd, Item: item, Quantity: qty}
}

func SetQuantity(lineID string, qty int) Action {
	return Action{Kind: ActionSetQuantity, LineID: lineID, Quantity: qty}
}

func Remove(lineID string) Action {
	return Action{Kind: ActionRemove, LineID: lineID}
}

func Clear() Action {
	return Action{Kind: ActionClear}
}

func Load(lines []domain.CartLine) Action {
	return Action{Kind: ActionLoad, Lines: lines}
}

// Reduce never mutates lines; it returns a fresh slice.
func Reduce(lines []domain.CartLine, a Action) ([]domain.CartLine, error) {
	switch a.Kind {
	case ActionAdd:
		return addLine(lines, a.Item, a.Quantity)
	case ActionSetQuantity:
		if a.Quantity <= 0 {
			return removeLine(lines, a.LineID), nil
		}
		out := clone(lines)
		for i := range out {
			if out[i].LineID == a.LineID {
				out[i].Quantity = a.Quantity
				return out, nil
			}
		}
		return nil, domain.NewValidationError("line_id", "line not in cart")
	case ActionRemove:
		return removeLine(lines, a.LineID), nil
	case ActionClear:
		return []domain.CartLine{}, nil
	case ActionLoad:
		return loadLines(a.Lines)
	default:
		return nil, domain.NewValidationError("action", "unknown cart action")
	}
}

func addLine(lines []domain.CartLine, item domain.CartLine, qty int) ([]domain.CartLine, error) {
	v := &domain.ValidationError{}
	if strings.TrimSpace(item.ProductID) == "" {
		v.Add("product_id", "required")
	}
	if qty <= 0 {
		v.Add("quantity", "must be greater than 0")
	}
	if item.UnitPrice.IsNegative() {
		v.Add("unit_price", "must not be negative")
	}
	if item.Currency == "" {
		v.Add("currency", "required")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	if len(lines) > 0 && !strings.EqualFold(lines[0].Currency, item.Currency) {
		return nil, domain.NewValidationError("currency", domain.ErrCurrencyMismatch.Error())
	}

	item.LineID = domain.LineID(item.ProductID, item.VariantID)
	out := clone(lines)
	for i := range out {
		if out[i].LineID == item.LineID {
			out[i].Quantity += qty
			return out, nil
		}
	}
	item.Quantity = qty
	return append(out, item), nil
}

func removeLine(lines []domain.CartLine, lineID string) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.LineID != lineID {
			out = append(out, l)
		}
	}
	return out
}

// loadLines replaces the cart, folding duplicates the same way Add does.
func loadLines(in []domain.CartLine) ([]domain.CartLine, error) {
	out := []domain.CartLine{}
	var err error
	for _, l := range in {
		if l.Quantity <= 0 {
			continue
		}
		out, err = addLine(out, l, l.Quantity)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func clone(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out
}

// Totals is the only place cart totals are computed.
func Totals(lines []domain.CartLine) domain.CartSnapshot {
	snap := domain.CartSnapshot{
		Lines:    clone(lines),
		Subtotal: decimal.Zero,
	}
	for _, l := range lines {
		snap.TotalItems += l.Quantity
		snap.Subtotal = snap.Subtotal.Add(l.Subtotal())
	}
	if len(lines) > 0 {
		snap.Currency = lines[0].Currency
	}
	return snap
}
