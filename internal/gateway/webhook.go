package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Verifier checks webhook signatures and decodes verified deliveries.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Parse verifies the Stripe-Signature header and converts the event.
func (v *Verifier) Parse(payload []byte, signature string) (Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return convert(evt)
}

func convert(evt stripe.Event) (Event, error) {
	out := Event{ID: evt.ID, Type: string(evt.Type), Created: evt.Created, Payload: Unhandled{}}
	if evt.ID == "" {
		return Event{}, fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	if evt.Data == nil {
		return out, nil
	}

	switch out.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		c := checkoutFrom(&s)
		switch out.Type {
		case "checkout.session.completed":
			out.Payload = CheckoutCompleted{c}
		case "checkout.session.async_payment_succeeded":
			// The provider only sends this event once funds have moved.
			c.Paid = true
			out.Payload = CheckoutAsyncSucceeded{c}
		case "checkout.session.async_payment_failed":
			out.Payload = CheckoutAsyncFailed{c}
		default:
			out.Payload = CheckoutExpired{c}
		}

	case "charge.dispute.created", "charge.dispute.updated", "charge.dispute.closed",
		"charge.dispute.funds_withdrawn", "charge.dispute.funds_reinstated":
		var d stripe.Dispute
		if err := json.Unmarshal(evt.Data.Raw, &d); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		status, closed := disputeStatus(string(d.Status))
		dc := DisputeChanged{
			DisputeID: d.ID,
			Status:    status,
			Closed:    closed,
			Reason:    string(d.Reason),
		}
		if d.Charge != nil {
			dc.ChargeID = d.Charge.ID
		}
		if d.PaymentIntent != nil {
			dc.PaymentIntentID = d.PaymentIntent.ID
		}
		out.Payload = dc

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		cr := ChargeRefunded{ChargeID: ch.ID, AmountRefundedCents: ch.AmountRefunded}
		if ch.PaymentIntent != nil {
			cr.PaymentIntentID = ch.PaymentIntent.ID
		}
		out.Payload = cr
	}
	return out, nil
}

func checkoutFrom(s *stripe.CheckoutSession) Checkout {
	c := Checkout{
		SessionID: s.ID,
		BookingID: bookingID(s),
		Purpose:   s.Metadata[MetaPurpose],
		Paid:      string(s.PaymentStatus) == "paid",
	}
	if c.Purpose == "" {
		c.Purpose = PurposeBooking
	}
	if s.PaymentIntent != nil {
		c.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Customer != nil {
		c.CustomerID = s.Customer.ID
	}
	if s.AmountTotal > 0 {
		c.Totals = settlementTotals(s)
	}
	return c
}

// bookingID prefers metadata and falls back to the client reference.
func bookingID(s *stripe.CheckoutSession) int64 {
	for _, raw := range []string{s.Metadata[MetaBookingID], s.ClientReferenceID} {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}

// settlementTotals reads the amounts actually charged. Tax and the discount
// snapshot come from the metadata written at checkout creation when the
// provider did not compute them itself.
func settlementTotals(s *stripe.CheckoutSession) *domain.SettlementTotals {
	total := s.AmountTotal
	var tax int64
	if s.TotalDetails != nil {
		tax = s.TotalDetails.AmountTax
	}
	if tax == 0 {
		tax = metaInt(s.Metadata, MetaTax)
	}
	if tax > total {
		tax = 0
	}

	sub := total - tax
	original := metaInt(s.Metadata, MetaOriginalSubtotal)
	if original == 0 {
		original = sub
		if s.TotalDetails != nil {
			original += s.TotalDetails.AmountDiscount
		}
	}
	pct, _ := strconv.ParseFloat(s.Metadata[MetaDiscountPercentage], 64)

	return &domain.SettlementTotals{
		SubtotalExVatCents:           sub,
		TaxCents:                     tax,
		TotalCents:                   total,
		DiscountPercentage:           pct,
		OriginalSubtotalExVatCents:   original,
		DiscountedSubtotalExVatCents: sub,
	}
}

func metaInt(md map[string]string, key string) int64 {
	v, err := strconv.ParseInt(md[key], 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// disputeStatus maps the provider status to ours. warning_closed is an
// inquiry that never became a chargeback, so the funds stay with us.
func disputeStatus(s string) (domain.DisputeStatus, bool) {
	switch s {
	case "won", "warning_closed":
		return domain.DisputeStatusWon, true
	case "lost", "charge_refunded":
		return domain.DisputeStatusLost, true
	default:
		return domain.DisputeStatusOpen, false
	}
}
