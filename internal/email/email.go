// Package email is the mail transport used by the notification dispatcher.
// Messages are rendered as plain text and written to the log; a real SMTP or
// API transport plugs in behind the same methods.
package email

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/notify"
	"github.com/sirupsen/logrus"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender struct {
	log  logrus.FieldLogger
	sent func(Message)
}

func NewSender(log logrus.FieldLogger) *Sender {
	return &Sender{log: log}
}

var (
	confirmationTmpl = template.Must(template.New("confirmation").Funcs(funcs).Parse(`Hello {{.CustomerName}},

Your booking #{{.BookingID}} from {{.StartDate}} to {{.EndDate}} ({{.RentalDays}} days) is confirmed.
{{range .Items}}
  {{.Quantity}} x {{.Name}}: {{money .LineTotalCents}}{{end}}
{{if gt .DiscountCents 0}}Discount ({{.DiscountPercentage}}%): -{{money .DiscountCents}}
{{end}}Subtotal: {{money .SubtotalExVatCents}}
VAT: {{money .TaxCents}}
Total paid: {{money .TotalCents}}
{{if gt .RemainingBalanceCents 0}}Balance due: {{money .RemainingBalanceCents}}
{{end}}`))

	alertTmpl = template.Must(template.New("alert").Funcs(funcs).Parse(`Booking #{{.BookingID}} confirmed ({{.Flow}})
Asset: {{.AssetID}}
Dates: {{.StartDate}} to {{.EndDate}}
Customer: {{.CustomerName}} <{{.CustomerEmail}}>
Total: {{money .TotalCents}}
`))

	funcs = template.FuncMap{"money": formatCents}
)

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d EUR", sign, cents/100, cents%100)
}

func (s *Sender) SendBookingConfirmation(ctx context.Context, to string, view notify.BookingView) error {
	body, err := render(confirmationTmpl, view)
	if err != nil {
		return err
	}
	return s.Send(ctx, Message{To: to, Subject: fmt.Sprintf("Booking #%d confirmed", view.BookingID), Body: body})
}

func (s *Sender) SendInternalAlert(ctx context.Context, to string, view notify.BookingView) error {
	body, err := render(alertTmpl, view)
	if err != nil {
		return err
	}
	return s.Send(ctx, Message{To: to, Subject: fmt.Sprintf("[ops] booking #%d confirmed", view.BookingID), Body: body})
}

func (s *Sender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("email: empty recipient")
	}
	s.log.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("send email")
	if s.sent != nil {
		s.sent(msg)
	}
	return nil
}

func render(t *template.Template, view notify.BookingView) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

var _ notify.Mailer = (*Sender)(nil)
