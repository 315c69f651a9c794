package order

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/fjod/go_cart/storefront/domain"
)

var funcs = template.FuncMap{
	"money": func(d interface{ StringFixed(int32) string }) string { return d.StringFixed(2) },
}

var purchaserTmpl = template.Must(template.New("purchaser").Funcs(funcs).Parse(
	`Hi {{.Order.Contact.FullName}}, thanks for your order {{.Order.Number}} at {{.Store.Name}}.
{{range .Order.Lines}}- {{.Quantity}} x {{.Name}}: {{money .Subtotal}} {{$.Order.Currency}}
{{end}}Shipping: {{money .Order.Totals.Shipping}} {{.Order.Currency}}
Total: {{money .Order.Totals.Total}} {{.Order.Currency}}
Payment: {{.Order.PaymentMethod}}{{if eq (print .Order.PaymentStatus) "PAID"}} (paid){{end}}
`))

var ownerTmpl = template.Must(template.New("owner").Funcs(funcs).Parse(
	`New order {{.Order.Number}} from {{.Order.Contact.FullName}}{{with .Order.Contact.Phone}} ({{.}}){{end}}{{with .Order.Contact.Email}} <{{.}}>{{end}}.
{{range .Order.Lines}}- {{.Quantity}} x {{.Name}}
{{end}}Total: {{money .Order.Totals.Total}} {{.Order.Currency}}
Delivery: {{.Order.Shipping.Method}}{{with .Order.Shipping.Address}}, {{.}}{{end}}
Payment: {{.Order.PaymentMethod}} [{{.Order.PaymentType}}, {{.Order.PaymentStatus}}]
{{with .Order.Notes}}Notes: {{.}}
{{end}}`))

type notifyData struct {
	Order *domain.Order
	Store domain.StoreProfile
}

func render(t *template.Template, o *domain.Order, store domain.StoreProfile) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, notifyData{Order: o, Store: store}); err != nil {
		return "", fmt.Errorf("render %s message: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func PurchaserMessage(o *domain.Order, store domain.StoreProfile) (string, error) {
	return render(purchaserTmpl, o, store)
}

func OwnerMessage(o *domain.Order, store domain.StoreProfile) (string, error) {
	return render(ownerTmpl, o, store)
}
