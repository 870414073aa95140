// Package gateway is the boundary to the payment provider. Provider payloads
// are converted here into small typed facts and never leave the package as
// raw maps.
package gateway

import (
	"context"
	"errors"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")

	// Off-session attempts that failed for a reason the interactive flow can
	// recover from.
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrCardDeclined           = errors.New("card declined")
	ErrNoPaymentMethod        = errors.New("no stored payment method")
)

// Metadata keys written on checkout sessions and read back from events.
const (
	MetaBookingID          = "booking_id"
	MetaPurpose            = "purpose"
	MetaDiscountPercentage = "discount_percentage"
	MetaOriginalSubtotal   = "original_subtotal_ex_vat_cents"
	MetaSubtotal           = "subtotal_ex_vat_cents"
	MetaTax                = "tax_cents"

	PurposeBooking              = "booking"
	PurposeBalanceAuthorization = "balance_authorization"
)

type Event struct {
	ID      string
	Type    string
	Created int64
	Payload Payload
}

// Payload is one of CheckoutCompleted, CheckoutAsyncSucceeded,
// CheckoutAsyncFailed, CheckoutExpired, DisputeChanged, ChargeRefunded or
// Unhandled.
type Payload interface {
	payload()
}

// Checkout is the common part of every checkout session event.
type Checkout struct {
	SessionID       string
	BookingID       int64
	PaymentIntentID string
	CustomerID      string
	Purpose         string
	// Paid is true when the provider reports that money has moved.
	Paid   bool
	Totals *domain.SettlementTotals
}

type CheckoutCompleted struct{ Checkout }
type CheckoutAsyncSucceeded struct{ Checkout }
type CheckoutAsyncFailed struct{ Checkout }
type CheckoutExpired struct{ Checkout }

type DisputeChanged struct {
	DisputeID       string
	ChargeID        string
	PaymentIntentID string
	Status          domain.DisputeStatus
	Closed          bool
	Reason          string
}

type ChargeRefunded struct {
	ChargeID            string
	PaymentIntentID     string
	AmountRefundedCents int64
}

type Unhandled struct{}

func (CheckoutCompleted) payload()      {}
func (CheckoutAsyncSucceeded) payload() {}
func (CheckoutAsyncFailed) payload()    {}
func (CheckoutExpired) payload()        {}
func (DisputeChanged) payload()         {}
func (ChargeRefunded) payload()         {}
func (Unhandled) payload()              {}

type CheckoutRequest struct {
	BookingID     int64
	CustomerEmail string
	Description   string
	AmountCents   int64
	Metadata      map[string]string
}

type AuthorizationCheckoutRequest struct {
	BookingID   int64
	CustomerID  string
	AmountCents int64
}

type CheckoutSession struct {
	ID  string
	URL string
}

type AuthorizationRequest struct {
	BookingID       int64
	AmountCents     int64
	CustomerID      string
	PaymentMethodID string
}

type Authorization struct {
	ID                    string
	Status                string
	AmountCapturableCents int64
}

// Capturable reports an authorization that holds funds for a later capture.
func (a *Authorization) Capturable() bool {
	return a.Status == "requires_capture"
}

// Identity is the stored customer and payment method behind a payment.
type Identity struct {
	CustomerID      string
	PaymentMethodID string
}

type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CreateAuthorizationCheckout(ctx context.Context, req AuthorizationCheckoutRequest) (*CheckoutSession, error)
	AuthorizeOffSession(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
	PaymentIdentity(ctx context.Context, paymentIntentID string) (Identity, error)
	PaymentIntentForCharge(ctx context.Context, chargeID string) (string, error)
}
