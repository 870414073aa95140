package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/gateway"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/metrics"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/repository"
	"github.com/sirupsen/logrus"
)

type AuthorizationStatus string

const (
	AuthorizationSkipped          AuthorizationStatus = "skipped"
	AuthorizationAuthorized       AuthorizationStatus = "authorized"
	AuthorizationCheckoutRequired AuthorizationStatus = "checkout_required"
)

// Reasons reported with a skipped authorization.
const (
	SkipNotConfirmed      = "not_confirmed"
	SkipAlreadyAuthorized = "already_authorized"
	SkipNoBalance         = "no_remaining_balance"
	SkipNoIdentity        = "no_stored_identity"
)

type AuthorizationResult struct {
	Status          AuthorizationStatus `json:"status"`
	Reason          string              `json:"reason,omitempty"`
	AuthorizationID string              `json:"authorization_id,omitempty"`
	AmountCents     int64               `json:"amount_cents,omitempty"`
	CheckoutURL     string              `json:"checkout_url,omitempty"`
}

type BalanceUseCase interface {
	Authorize(ctx context.Context, bookingID int64) (*AuthorizationResult, error)
}

type BalanceGateway interface {
	PaymentIdentity(ctx context.Context, paymentIntentID string) (gateway.Identity, error)
	AuthorizeOffSession(ctx context.Context, req gateway.AuthorizationRequest) (*gateway.Authorization, error)
	CreateAuthorizationCheckout(ctx context.Context, req gateway.AuthorizationCheckoutRequest) (*gateway.CheckoutSession, error)
}

// BalanceAuthorizer places a manual-capture hold for the unpaid part of a
// confirmed booking, off-session when the card allows it and through an
// interactive checkout otherwise.
type BalanceAuthorizer struct {
	bookings repository.BookingRepository
	gw       BalanceGateway
	log      logrus.FieldLogger
}

func NewBalanceAuthorizer(bookings repository.BookingRepository, gw BalanceGateway, log logrus.FieldLogger) *BalanceAuthorizer {
	return &BalanceAuthorizer{bookings: bookings, gw: gw, log: log}
}

func (a *BalanceAuthorizer) Authorize(ctx context.Context, bookingID int64) (*AuthorizationResult, error) {
	b, err := a.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	log := a.log.WithField("booking_id", b.ID)

	switch {
	case b.Status != domain.BookingStatusConfirmed:
		return a.skip(log, SkipNotConfirmed), nil
	case b.BalanceAuthorizationID != nil:
		return a.skip(log, SkipAlreadyAuthorized), nil
	case b.RemainingBalanceCents() <= 0:
		return a.skip(log, SkipNoBalance), nil
	case b.PaymentIntentID == nil:
		return a.skip(log, SkipNoIdentity), nil
	}
	remaining := b.RemainingBalanceCents()

	identity, err := a.gw.PaymentIdentity(ctx, *b.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("load payment identity: %w", err)
	}
	if identity.CustomerID == "" {
		return a.skip(log, SkipNoIdentity), nil
	}
	if identity.PaymentMethodID == "" {
		return a.fallback(ctx, b, identity, remaining, gateway.ErrNoPaymentMethod, log)
	}

	auth, err := a.gw.AuthorizeOffSession(ctx, gateway.AuthorizationRequest{
		BookingID:       b.ID,
		AmountCents:     remaining,
		CustomerID:      identity.CustomerID,
		PaymentMethodID: identity.PaymentMethodID,
	})
	switch {
	case errors.Is(err, gateway.ErrAuthenticationRequired),
		errors.Is(err, gateway.ErrCardDeclined),
		errors.Is(err, gateway.ErrNoPaymentMethod):
		return a.fallback(ctx, b, identity, remaining, err, log)
	case err != nil:
		return nil, fmt.Errorf("authorize balance: %w", err)
	case !auth.Capturable():
		return a.fallback(ctx, b, identity, remaining, fmt.Errorf("unexpected authorization status %q", auth.Status), log)
	}

	stored, err := a.persist(ctx, b.ID, auth)
	if err != nil {
		return nil, err
	}
	metrics.RecordBalanceAuthorization(string(AuthorizationAuthorized))
	log.WithField("authorization_id", stored.AuthorizationID).Info("balance authorized off-session")
	return stored, nil
}

// persist stores the authorization unless another one was recorded first, in
// which case the existing one is returned.
func (a *BalanceAuthorizer) persist(ctx context.Context, bookingID int64, auth *gateway.Authorization) (*AuthorizationResult, error) {
	res := &AuthorizationResult{Status: AuthorizationAuthorized}
	err := a.bookings.WithinTx(ctx, func(tx repository.BookingTx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.RecordBalanceAuthorization(auth.ID, auth.AmountCapturableCents) {
			res.AuthorizationID = *b.BalanceAuthorizationID
			res.AmountCents = *b.BalanceAuthorizedCents
			return nil
		}
		res.AuthorizationID = auth.ID
		res.AmountCents = auth.AmountCapturableCents
		return tx.SaveBooking(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("store balance authorization: %w", err)
	}
	return res, nil
}

func (a *BalanceAuthorizer) fallback(ctx context.Context, b *domain.Booking, identity gateway.Identity, amount int64, cause error, log logrus.FieldLogger) (*AuthorizationResult, error) {
	log.WithError(cause).Warn("off-session authorization unavailable, falling back to checkout")
	session, err := a.gw.CreateAuthorizationCheckout(ctx, gateway.AuthorizationCheckoutRequest{
		BookingID:   b.ID,
		CustomerID:  identity.CustomerID,
		AmountCents: amount,
	})
	if err != nil {
		return nil, fmt.Errorf("create authorization checkout: %w", err)
	}
	metrics.RecordBalanceAuthorization(string(AuthorizationCheckoutRequired))
	return &AuthorizationResult{
		Status:      AuthorizationCheckoutRequired,
		AmountCents: amount,
		CheckoutURL: session.URL,
	}, nil
}

func (a *BalanceAuthorizer) skip(log logrus.FieldLogger, reason string) *AuthorizationResult {
	metrics.RecordBalanceAuthorization(string(AuthorizationSkipped))
	log.WithField("reason", reason).Info("balance authorization skipped")
	return &AuthorizationResult{Status: AuthorizationSkipped, Reason: reason}
}

var _ BalanceUseCase = (*BalanceAuthorizer)(nil)
