package cart

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(productID, variantID, price string) domain.CartLine {
	return domain.CartLine{
		ProductID: productID,
		VariantID: variantID,
		Name:      "Product " + productID,
		UnitPrice: decimal.RequireFromString(price),
		Currency:  "USD",
	}
}

func TestReduce_AddMergesSameVariant(t *testing.T) {
	lines, err := Reduce(nil, Add(item("p1", "red", "5.00"), 1))
	require.NoError(t, err)
	lines, err = Reduce(lines, Add(item("p1", "red", "5.00"), 2))
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "p1::red", lines[0].LineID)
}

func TestReduce_DifferentVariantIsDistinctLine(t *testing.T) {
	lines, err := Reduce(nil, Add(item("p1", "red", "5.00"), 1))
	require.NoError(t, err)
	lines, err = Reduce(lines, Add(item("p1", "blue", "5.00"), 1))
	require.NoError(t, err)
	lines, err = Reduce(lines, Add(item("p1", "", "5.00"), 1))
	require.NoError(t, err)

	assert.Len(t, lines, 3)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	orig, err := Reduce(nil, Add(item("p1", "", "1.00"), 1))
	require.NoError(t, err)

	_, err = Reduce(orig, Add(item("p1", "", "1.00"), 5))
	require.NoError(t, err)
	_, err = Reduce(orig, SetQuantity("p1", 9))
	require.NoError(t, err)

	assert.Equal(t, 1, orig[0].Quantity)
}

func TestReduce_SetQuantityZeroRemoves(t *testing.T) {
	lines, _ := Reduce(nil, Add(item("p1", "", "1.00"), 1))
	lines, err := Reduce(lines, SetQuantity("p1", 0))
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, _ = Reduce(nil, Add(item("p1", "", "1.00"), 1))
	lines, err = Reduce(lines, SetQuantity("p1", -4))
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestReduce_SetQuantityUnknownLine(t *testing.T) {
	_, err := Reduce(nil, SetQuantity("ghost", 2))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestReduce_AddValidation(t *testing.T) {
	_, err := Reduce(nil, Add(item("", "", "1.00"), 1))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = Reduce(nil, Add(item("p1", "", "1.00"), 0))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = Reduce(nil, Add(item("p1", "", "-1.00"), 1))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestReduce_RejectsMixedCurrency(t *testing.T) {
	lines, _ := Reduce(nil, Add(item("p1", "", "1.00"), 1))
	other := item("p2", "", "1.00")
	other.Currency = "EUR"

	_, err := Reduce(lines, Add(other, 1))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestReduce_LoadFoldsDuplicatesAndDropsEmpty(t *testing.T) {
	in := []domain.CartLine{
		withQty(item("p1", "", "2.00"), 1),
		withQty(item("p1", "", "2.00"), 2),
		withQty(item("p2", "", "3.00"), 0),
	}
	lines, err := Reduce([]domain.CartLine{withQty(item("old", "", "1.00"), 1)}, Load(in))
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, "p1", lines[0].LineID)
	assert.Equal(t, 3, lines[0].Quantity)
}

func withQty(l domain.CartLine, q int) domain.CartLine {
	l.Quantity = q
	return l
}

func TestTotals_Scenario(t *testing.T) {
	lines, err := Reduce(nil, Add(item("A", "", "10.00"), 2))
	require.NoError(t, err)
	lines, err = Reduce(lines, Add(item("B", "large", "15.00"), 1))
	require.NoError(t, err)

	snap := Totals(lines)
	assert.Equal(t, 3, snap.TotalItems)
	assert.True(t, decimal.RequireFromString("35.00").Equal(snap.Subtotal), snap.Subtotal.String())

	lines, err = Reduce(lines, SetQuantity("A", 0))
	require.NoError(t, err)
	snap = Totals(lines)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "B::large", snap.Lines[0].LineID)
	assert.True(t, decimal.RequireFromString("15.00").Equal(snap.Subtotal))
	assert.Equal(t, 1, snap.TotalItems)
}

// Totals after any sequence of mutations equal a from-scratch recomputation.
func TestTotals_NeverDrift(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	products := []domain.CartLine{
		item("p1", "", "1.10"),
		item("p1", "v", "2.25"),
		item("p2", "", "0.99"),
		item("p3", "x", "10.00"),
	}

	var lines []domain.CartLine
	for i := 0; i < 500; i++ {
		p := products[rnd.Intn(len(products))]
		id := domain.LineID(p.ProductID, p.VariantID)
		var a Action
		switch rnd.Intn(4) {
		case 0, 1:
			a = Add(p, rnd.Intn(3)+1)
		case 2:
			a = SetQuantity(id, rnd.Intn(5)-1)
		default:
			a = Remove(id)
		}
		next, err := Reduce(lines, a)
		if err != nil {
			continue
		}
		lines = next

		snap := Totals(lines)
		items := 0
		sum := decimal.Zero
		for _, l := range lines {
			items += l.Quantity
			sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
		require.Equal(t, items, snap.TotalItems)
		require.True(t, sum.Equal(snap.Subtotal))
	}
}
