package notify

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/grupo-shop/orderflow/internal/orders"
)

var templates = template.Must(template.New("notify").Funcs(template.FuncMap{
	"rupees": FormatRupees,
}).Parse(`
{{define "order_confirmed"}}*Order Confirmed*

Hi {{.Order.Customer.Name}}, we have received your payment and your order is confirmed.

Order: {{.Order.OrderNumber}}
Product: {{.Order.ProductName}}
Quantity: {{.Order.Quantity}} units ({{.Order.Tier}})
Total: {{rupees .Order.TotalAmount}}

Shipping to: {{.Order.Customer.City}}, {{.Order.Customer.State}}

Track your order: {{.TrackURL}}{{.Order.OrderNumber}}

Thank you for shopping with Grupo!{{end}}

{{define "order_shipped"}}*Order Shipped*

Hi {{.Order.Customer.Name}}, your order is on its way.

Order: {{.Order.OrderNumber}}
Product: {{.Order.ProductName}}
Delivering to: {{.Order.Customer.City}}, {{.Order.Customer.State}}

Track your order: {{.TrackURL}}{{.Order.OrderNumber}}{{end}}

{{define "order_delivered"}}*Order Delivered*

Hi {{.Order.Customer.Name}}, your order has been delivered.

Order: {{.Order.OrderNumber}}
Product: {{.Order.ProductName}}

We hope you love it. Thank you for choosing Grupo!{{end}}

{{define "order_cancelled"}}*Order Cancelled*

Hi {{.Order.Customer.Name}}, your order has been cancelled.

Order: {{.Order.OrderNumber}}
Product: {{.Order.ProductName}}

If money was deducted it will be refunded within 5-7 business days. Contact our support team for any queries.{{end}}
`))

// Render produces the message text for kind.
func Render(kind Kind, order orders.Order, trackURL string) (string, error) {
	if templates.Lookup(string(kind)) == nil {
		return "", fmt.Errorf("unknown notification kind %q", kind)
	}
	var b strings.Builder
	err := templates.ExecuteTemplate(&b, string(kind), struct {
		Order    orders.Order
		TrackURL string
	}{order, trackURL})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	return b.String(), nil
}

// FormatRupees formats an amount with Indian digit grouping, e.g. ₹1,52,990.
// Paise are shown only when non-zero.
func FormatRupees(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)
	neg := d.IsNegative()
	d = d.Abs()

	whole := d.Truncate(0)
	frac := d.Sub(whole)

	digits := whole.String()
	var grouped string
	if len(digits) <= 3 {
		grouped = digits
	} else {
		head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
		var parts []string
		for len(head) > 2 {
			parts = append([]string{head[len(head)-2:]}, parts...)
			head = head[:len(head)-2]
		}
		parts = append([]string{head}, parts...)
		grouped = strings.Join(parts, ",") + "," + tail
	}

	out := "₹" + grouped
	if !frac.IsZero() {
		out += strings.TrimPrefix(frac.StringFixed(2), "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}
