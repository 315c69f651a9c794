package order

import (
	"strings"
	"unicode"

	"github.com/fjod/go_cart/storefront/domain"
)

type paymentRule struct {
	paymentType domain.PaymentType
	keywords    []string
}

// Order matters: "card on delivery" must win over the generic "card".
var paymentRules = []paymentRule{
	{domain.PaymentTypeCardOnDelivery, []string{"card on delivery", "pos", "datafono", "tarjeta"}},
	{domain.PaymentTypeCashOnDelivery, []string{"cash", "efectivo", "cod"}},
	{domain.PaymentTypeMobileTransfer, []string{"transfer", "transferencia", "yape", "plin", "nequi", "mobile"}},
	{domain.PaymentTypeOnlinePayment, []string{"mercadopago", "mercado pago", "stripe", "paypal", "online", "card"}},
}

// ClassifyPaymentMethod maps the free-text method chosen on the storefront
// onto the closed PaymentType set. Keywords match whole words.
func ClassifyPaymentMethod(method string) domain.PaymentType {
	text := " " + normalizeWords(method) + " "
	if strings.TrimSpace(text) == "" {
		return domain.PaymentTypeUnknown
	}
	for _, rule := range paymentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, " "+kw+" ") {
				return rule.paymentType
			}
		}
	}
	return domain.PaymentTypeUnknown
}

var accents = strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n")

func normalizeWords(s string) string {
	s = accents.Replace(strings.ToLower(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
