package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shipfunnel/backend/internal/domain/notification"
)

// ReceiptData is the content of a payment receipt
type ReceiptData struct {
	AgencyName      string
	CustomerName    string
	CustomerEmail   string
	AmountCents     int64
	Currency        string
	PaymentIntentID string
	SessionID       string
}

var amountPrinter = message.NewPrinter(language.English)

// Amount formats the charged amount with thousands grouping and its currency
// code, e.g. "1,250.00 USD"
func (d ReceiptData) Amount() string {
	cents := d.AmountCents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return amountPrinter.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(d.Currency))
}

var textReceipt = texttemplate.Must(texttemplate.New("receipt").Parse(
	`Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},

We received your payment of {{.Amount}}.
Reference: {{.PaymentIntentID}}

Thank you for shipping with {{.AgencyName}}.
`))

var htmlReceipt = htmltemplate.Must(htmltemplate.New("receipt").Parse(
	`<p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
<p>We received your payment of <strong>{{.Amount}}</strong>.</p>
<p>Reference: <code>{{.PaymentIntentID}}</code></p>
<p>Thank you for shipping with {{.AgencyName}}.</p>
`))

// BuildReceipt renders the receipt for a completed payment
func BuildReceipt(data ReceiptData) (notification.Receipt, error) {
	var text, html bytes.Buffer
	if err := textReceipt.Execute(&text, data); err != nil {
		return notification.Receipt{}, fmt.Errorf("notify: failed to render text receipt: %w", err)
	}
	if err := htmlReceipt.Execute(&html, data); err != nil {
		return notification.Receipt{}, fmt.Errorf("notify: failed to render html receipt: %w", err)
	}

	return notification.Receipt{
		To:      data.CustomerEmail,
		Subject: fmt.Sprintf("%s payment receipt", data.AgencyName),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
