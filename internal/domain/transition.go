package domain

import (
	"fmt"
	"time"
)

// Transition reports what a state-machine call did to a booking.
type Transition int

const (
	// TransitionApplied means the booking changed and must be persisted.
	TransitionApplied Transition = iota
	// TransitionAlreadyApplied means the booking is already in the target state.
	TransitionAlreadyApplied
	// TransitionNotApplicable means the booking is in the other terminal state.
	TransitionNotApplicable
)

func (t Transition) String() string {
	switch t {
	case TransitionApplied:
		return "applied"
	case TransitionAlreadyApplied:
		return "already_applied"
	default:
		return "not_applicable"
	}
}

// Settlement carries the facts of a payment that actually moved money.
type Settlement struct {
	PaymentIntentID string
	Totals          *SettlementTotals
}

type SettlementTotals struct {
	SubtotalExVatCents           int64
	TaxCents                     int64
	TotalCents                   int64
	DiscountPercentage           float64
	OriginalSubtotalExVatCents   int64
	DiscountedSubtotalExVatCents int64
}

const (
	CancelReasonHoldExpired    = "hold_expired"
	CancelReasonSessionExpired = "checkout_session_expired"
	CancelReasonCheckoutFailed = "checkout_unavailable"
)

// Confirm moves a PENDING booking to CONFIRMED. Settlement totals are only
// written when none were recorded before.
func (b *Booking) Confirm(s Settlement) Transition {
	switch b.Status {
	case BookingStatusConfirmed:
		return TransitionAlreadyApplied
	case BookingStatusCancelled:
		return TransitionNotApplicable
	}

	b.Status = BookingStatusConfirmed
	b.Paid = true
	b.HoldExpiresAt = nil
	if s.PaymentIntentID != "" {
		pi := s.PaymentIntentID
		b.PaymentIntentID = &pi
	}
	if s.Totals != nil && b.TotalCents == nil {
		t := *s.Totals
		b.SubtotalExVatCents = &t.SubtotalExVatCents
		b.TaxCents = &t.TaxCents
		b.TotalCents = &t.TotalCents
		b.DiscountPercentage = &t.DiscountPercentage
		b.OriginalSubtotalExVatCents = &t.OriginalSubtotalExVatCents
		b.DiscountedSubtotalExVatCents = &t.DiscountedSubtotalExVatCents
	}
	return TransitionApplied
}

// Cancel moves a PENDING booking to CANCELLED. A confirmed booking is never
// cancelled here.
func (b *Booking) Cancel(reason string) Transition {
	switch b.Status {
	case BookingStatusCancelled:
		return TransitionAlreadyApplied
	case BookingStatusConfirmed:
		return TransitionNotApplicable
	}

	b.Status = BookingStatusCancelled
	b.HoldExpiresAt = nil
	b.CancellationReason = &reason
	return TransitionApplied
}

// AttachPaymentIntent records the payment intent seen on a non-settling
// observation. It never replaces an id that is already set.
func (b *Booking) AttachPaymentIntent(id string) bool {
	if id == "" || b.PaymentIntentID != nil || b.Status != BookingStatusPending {
		return false
	}
	b.PaymentIntentID = &id
	return true
}

// RecordBalanceAuthorization keeps the first authorization ever stored.
func (b *Booking) RecordBalanceAuthorization(id string, capturableCents int64) bool {
	if b.BalanceAuthorizationID != nil {
		return false
	}
	b.BalanceAuthorizationID = &id
	b.BalanceAuthorizedCents = &capturableCents
	return true
}

type DisputeUpdate struct {
	DisputeID string
	Status    DisputeStatus
	Reason    string
	ClosedAt  *time.Time
}

// RecordDispute folds a dispute observation into the booking. An existing
// reason is kept and a closed outcome is never reopened.
func (b *Booking) RecordDispute(u DisputeUpdate) bool {
	if b.DisputeClosedAt != nil {
		return false
	}
	changed := false
	if b.DisputeID == nil || *b.DisputeID != u.DisputeID {
		id := u.DisputeID
		b.DisputeID = &id
		changed = true
	}
	if b.DisputeStatus == nil || *b.DisputeStatus != u.Status {
		st := u.Status
		b.DisputeStatus = &st
		changed = true
	}
	if b.DisputeReason == nil && u.Reason != "" {
		reason := u.Reason
		b.DisputeReason = &reason
		changed = true
	}
	if u.ClosedAt != nil {
		at := *u.ClosedAt
		b.DisputeClosedAt = &at
		changed = true
	}
	return changed
}

// RecordRefund stores the cumulative refunded amount reported by the provider.
func (b *Booking) RecordRefund(refundedCents int64, at time.Time) bool {
	if refundedCents <= b.RefundedCents {
		return false
	}
	b.RefundedCents = refundedCents
	b.RefundedAt = &at
	return true
}

// CheckInvariants reports a booking whose state the state machine could never
// have produced.
func (b *Booking) CheckInvariants() error {
	pending := b.Status == BookingStatusPending
	if pending != (b.HoldExpiresAt != nil) {
		return fmt.Errorf("booking %d: status %s with hold expiry set=%t", b.ID, b.Status, b.HoldExpiresAt != nil)
	}
	if b.Status == BookingStatusConfirmed && !b.Paid {
		return fmt.Errorf("booking %d: confirmed but not paid", b.ID)
	}
	if b.Status != BookingStatusConfirmed && b.Paid {
		return fmt.Errorf("booking %d: paid while %s", b.ID, b.Status)
	}
	return nil
}
