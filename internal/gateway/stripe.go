package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type StripeConfig struct {
	SecretKey         string
	Currency          string
	SuccessURL        string
	CancelURL         string
	BalanceSuccessURL string
	BalanceCancelURL  string
	// Timeout bounds every provider call. Zero leaves the caller's deadline.
	Timeout time.Duration
}

type StripeGateway struct {
	api *client.API
	cfg StripeConfig
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	return &StripeGateway{api: client.New(cfg.SecretKey, nil), cfg: cfg}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	ref := strconv.FormatInt(req.BookingID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		CustomerCreation:  stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways)),
		ClientReferenceID: stripe.String(ref),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{g.lineItem(req.Description, req.AmountCents)},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			// Keeps the card on file for the later off-session balance hold.
			SetupFutureUsage: stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession)),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey(req.BookingID, "checkout"))
	params.AddMetadata(MetaBookingID, ref)
	params.AddMetadata(MetaPurpose, PurposeBooking)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session for booking %d: %w", req.BookingID, err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// CreateAuthorizationCheckout builds the interactive fallback: a manual
// capture checkout bound to the customer who paid the booking.
func (g *StripeGateway) CreateAuthorizationCheckout(ctx context.Context, req AuthorizationCheckoutRequest) (*CheckoutSession, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	ref := strconv.FormatInt(req.BookingID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(ref),
		SuccessURL:        stripe.String(g.cfg.BalanceSuccessURL),
		CancelURL:         stripe.String(g.cfg.BalanceCancelURL),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{g.lineItem(fmt.Sprintf("Booking #%d balance", req.BookingID), req.AmountCents)},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	params.Context = ctx
	params.AddMetadata(MetaBookingID, ref)
	params.AddMetadata(MetaPurpose, PurposeBalanceAuthorization)

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create authorization checkout for booking %d: %w", req.BookingID, err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) AuthorizeOffSession(ctx context.Context, req AuthorizationRequest) (*Authorization, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(g.cfg.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey(req.BookingID, "balance"))
	params.AddMetadata(MetaBookingID, strconv.FormatInt(req.BookingID, 10))
	params.AddMetadata(MetaPurpose, PurposeBalanceAuthorization)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &Authorization{ID: pi.ID, Status: string(pi.Status), AmountCapturableCents: pi.AmountCapturable}, nil
}

func (g *StripeGateway) PaymentIdentity(ctx context.Context, paymentIntentID string) (Identity, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return Identity{}, fmt.Errorf("retrieve payment intent %s: %w", paymentIntentID, err)
	}

	var id Identity
	if pi.Customer != nil {
		id.CustomerID = pi.Customer.ID
	}
	if pi.PaymentMethod != nil {
		id.PaymentMethodID = pi.PaymentMethod.ID
	}
	return id, nil
}

func (g *StripeGateway) PaymentIntentForCharge(ctx context.Context, chargeID string) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	params := &stripe.ChargeParams{}
	params.Context = ctx
	ch, err := g.api.Charges.Get(chargeID, params)
	if err != nil {
		return "", fmt.Errorf("retrieve charge %s: %w", chargeID, err)
	}
	if ch.PaymentIntent == nil {
		return "", nil
	}
	return ch.PaymentIntent.ID, nil
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.Timeout)
}

func (g *StripeGateway) lineItem(name string, amountCents int64) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(1),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(g.cfg.Currency),
			UnitAmount: stripe.Int64(amountCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		},
	}
}

// idempotencyKey is stable per booking and purpose so a retried call reuses
// the provider object created by the first one.
func idempotencyKey(bookingID int64, purpose string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("booking:%d:%s", bookingID, purpose))).String()
}

// classify maps provider card errors onto the sentinel errors the balance
// authorizer falls back on. Anything else is returned wrapped.
func classify(err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return err
	}
	switch string(serr.Code) {
	case "authentication_required":
		return fmt.Errorf("%w: %s", ErrAuthenticationRequired, serr.Msg)
	case "card_declined", "expired_card", "insufficient_funds", "incorrect_cvc":
		return fmt.Errorf("%w: %s", ErrCardDeclined, serr.Msg)
	case "payment_method_missing", "resource_missing", "payment_intent_unexpected_state":
		return fmt.Errorf("%w: %s", ErrNoPaymentMethod, serr.Msg)
	}
	if string(serr.Type) == "card_error" {
		return fmt.Errorf("%w: %s", ErrCardDeclined, serr.Msg)
	}
	return err
}

var _ Gateway = (*StripeGateway)(nil)
