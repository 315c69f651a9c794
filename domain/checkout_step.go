package domain

type CheckoutStep int

const (
	StepBrowsing     CheckoutStep = 0
	StepIdentity     CheckoutStep = 1
	StepShipping     CheckoutStep = 2
	StepPaymentPrefs CheckoutStep = 3
	StepComplete     CheckoutStep = 4
)

func (s CheckoutStep) IsTerminal() bool {
	return s == StepComplete
}

// Advance never moves a customer backwards.
func (s CheckoutStep) Advance(to CheckoutStep) CheckoutStep {
	if to > s {
		return to
	}
	return s
}

// String representation (for logging)
func (s CheckoutStep) String() string {
	switch s {
	case StepBrowsing:
		return "BROWSING"
	case StepIdentity:
		return "IDENTITY"
	case StepShipping:
		return "SHIPPING"
	case StepPaymentPrefs:
		return "PAYMENT_PREFS"
	case StepComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}
