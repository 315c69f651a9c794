package recovery

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/fjod/go_cart/storefront/domain"
)

var reminderTmpl = template.Must(template.New("reminder").Parse(
	`Hi{{with .Customer.FullName}} {{.}}{{end}}, you left these in your cart at {{.Store.Name}}:
{{range .Cart.Items}}- {{.Quantity}} x {{.Name}}
{{end}}Subtotal: {{.Cart.Subtotal.StringFixed 2}} {{.Cart.Currency}}
Pick up where you left off: {{.Link}}
{{with .Store.Phone}}Questions? Reach us at {{.}}.
{{end}}`))

type reminderData struct {
	Customer *domain.CustomerRecord
	Cart     *domain.AbandonedCart
	Store    domain.StoreProfile
	Link     string
}

func renderReminder(c *domain.CustomerRecord, store domain.StoreProfile, link string) (string, error) {
	var buf bytes.Buffer
	err := reminderTmpl.Execute(&buf, reminderData{Customer: c, Cart: c.AbandonedCart, Store: store, Link: link})
	if err != nil {
		return "", fmt.Errorf("render reminder: %w", err)
	}
	return buf.String(), nil
}
