package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLineID(t *testing.T) {
	assert.Equal(t, "p1", LineID("p1", ""))
	assert.Equal(t, "p1::red", LineID("p1", "red"))
	assert.NotEqual(t, LineID("p1", "red"), LineID("p1", "blue"))
}

func TestCheckoutStep_AdvanceIsMonotonic(t *testing.T) {
	assert.Equal(t, StepShipping, StepIdentity.Advance(StepShipping))
	assert.Equal(t, StepPaymentPrefs, StepPaymentPrefs.Advance(StepIdentity))
	assert.True(t, StepComplete.IsTerminal())
	assert.False(t, StepPaymentPrefs.IsTerminal())
}

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	assert.NoError(t, v.OrNil())

	v.Add("email", "required")
	v.Add("lines", "cart is empty")
	err := v.OrNil()

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "email: required")
	assert.Contains(t, err.Error(), "lines: cart is empty")
}

func TestCartLineSubtotal(t *testing.T) {
	l := CartLine{UnitPrice: decimal.RequireFromString("10.50"), Quantity: 3}
	assert.True(t, decimal.RequireFromString("31.50").Equal(l.Subtotal()))
}
