// Package payments reconciles bookings against payment provider events and
// collects the remaining balance of confirmed bookings.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/gateway"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/kafka"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/metrics"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/repository"
	"github.com/sirupsen/logrus"
)

type Outcome string

const (
	OutcomeProcessed  Outcome = "processed"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnresolved Outcome = "unresolved"
)

type PaymentsUseCase interface {
	Process(ctx context.Context, event gateway.Event) (Outcome, error)
}

type Availability interface {
	Invalidate(ctx context.Context, assetID int64)
}

type Publisher interface {
	Publish(ctx context.Context, event kafka.BookingEvent) error
}

// ChargeResolver finds the payment intent behind a charge.
type ChargeResolver interface {
	PaymentIntentForCharge(ctx context.Context, chargeID string) (string, error)
}

type Processor struct {
	bookings     repository.BookingRepository
	charges      ChargeResolver
	availability Availability
	producer     Publisher
	log          logrus.FieldLogger
}

type ProcessorOption func(*Processor)

func WithPublisher(p Publisher) ProcessorOption {
	return func(s *Processor) {
		s.producer = p
	}
}

func NewProcessor(
	bookings repository.BookingRepository,
	charges ChargeResolver,
	availability Availability,
	log logrus.FieldLogger,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		bookings:     bookings,
		charges:      charges,
		availability: availability,
		log:          log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// locate finds the booking an event refers to, inside the transaction.
// A nil booking means the reference could not be resolved.
type locate func(ctx context.Context, tx repository.BookingTx) (*domain.Booking, error)

// mutate applies an event to the locked booking.
type mutate func(b *domain.Booking) change

type change struct {
	save bool
	// to is set when the booking status changed.
	to domain.BookingStatus
	// event is published after commit.
	event string
}

// Process applies one verified provider event. A nil error means the delivery
// can be acknowledged; any error must make the provider retry.
func (p *Processor) Process(ctx context.Context, event gateway.Event) (Outcome, error) {
	log := p.log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.Type})

	outcome, err := p.dispatch(ctx, event, log)
	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "error")
		log.WithError(err).Error("payment event processing failed")
		return "", err
	}
	metrics.RecordWebhookEvent(event.Type, string(outcome))
	log.WithField("outcome", outcome).Debug("payment event handled")
	return outcome, nil
}

func (p *Processor) dispatch(ctx context.Context, event gateway.Event, log logrus.FieldLogger) (Outcome, error) {
	switch pl := event.Payload.(type) {
	case gateway.CheckoutCompleted:
		return p.run(ctx, event, log, byID(pl.BookingID), p.settle(pl.Checkout, log))
	case gateway.CheckoutAsyncSucceeded:
		return p.run(ctx, event, log, byID(pl.BookingID), p.settle(pl.Checkout, log))
	case gateway.CheckoutAsyncFailed:
		return p.run(ctx, event, log, byID(pl.BookingID), func(b *domain.Booking) change {
			log.WithField("booking_id", b.ID).Warn("asynchronous payment failed")
			return change{save: b.AttachPaymentIntent(pl.PaymentIntentID)}
		})
	case gateway.CheckoutExpired:
		return p.run(ctx, event, log, byID(pl.BookingID), expire(pl.Checkout))
	case gateway.DisputeChanged:
		return p.syncDispute(ctx, event, pl, log)
	case gateway.ChargeRefunded:
		return p.refund(ctx, event, pl, log)
	default:
		return OutcomeIgnored, nil
	}
}

// run records the event in the dedup log and applies it to the booking in one
// transaction. A duplicate id stops before the booking is touched.
func (p *Processor) run(ctx context.Context, event gateway.Event, log logrus.FieldLogger, find locate, apply mutate) (Outcome, error) {
	outcome := OutcomeProcessed
	var (
		booking *domain.Booking
		ch      change
	)
	err := p.bookings.WithinTx(ctx, func(tx repository.BookingTx) error {
		b, err := find(ctx, tx)
		if err != nil {
			return err
		}

		rec := domain.ProcessedPaymentEvent{EventID: event.ID, EventType: event.Type}
		if b != nil {
			id := b.ID
			rec.BookingID = &id
		}
		fresh, err := tx.RecordEvent(ctx, rec)
		if err != nil {
			return fmt.Errorf("record event %s: %w", event.ID, err)
		}
		if !fresh {
			outcome = OutcomeDuplicate
			return nil
		}
		if b == nil {
			outcome = OutcomeUnresolved
			return nil
		}

		booking = b
		ch = apply(b)
		if !ch.save {
			return nil
		}
		if err := tx.SaveBooking(ctx, b); err != nil {
			return fmt.Errorf("save booking %d: %w", b.ID, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	switch outcome {
	case OutcomeUnresolved:
		log.Error("payment event references no known booking")
	case OutcomeDuplicate:
		log.Info("payment event already processed")
	}
	if ch.save {
		p.committed(ctx, booking, ch)
	}
	return outcome, nil
}

// committed runs the best-effort side effects of a saved change.
func (p *Processor) committed(ctx context.Context, b *domain.Booking, ch change) {
	if ch.to != "" {
		metrics.RecordTransition(string(ch.to))
		p.availability.Invalidate(ctx, b.AssetID)
		p.log.WithFields(logrus.Fields{"booking_id": b.ID, "status": ch.to}).Info("booking status changed")
	}
	if ch.event == "" || p.producer == nil {
		return
	}
	if err := p.producer.Publish(ctx, kafka.NewBookingEvent(ch.event, b.ID, string(b.Status))); err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{"booking_id": b.ID, "event_type": ch.event}).Warn("failed to publish booking event")
	}
}

// settle handles the two checkout events that may carry settlement. Only a
// paid checkout confirms; an unpaid one only records the payment intent.
func (p *Processor) settle(c gateway.Checkout, log logrus.FieldLogger) mutate {
	return func(b *domain.Booking) change {
		log := log.WithField("booking_id", b.ID)
		if c.Purpose == gateway.PurposeBalanceAuthorization {
			return recordCheckoutAuthorization(b, c, log)
		}
		if !c.Paid {
			return change{save: b.AttachPaymentIntent(c.PaymentIntentID)}
		}

		switch b.Confirm(domain.Settlement{PaymentIntentID: c.PaymentIntentID, Totals: c.Totals}) {
		case domain.TransitionApplied:
			return change{save: true, to: domain.BookingStatusConfirmed, event: kafka.EventBookingConfirmed}
		case domain.TransitionNotApplicable:
			log.WithField("payment_intent_id", c.PaymentIntentID).Error("settlement received for a cancelled booking")
		}
		return change{}
	}
}

// recordCheckoutAuthorization stores the hold placed by an interactive balance
// checkout. The first recorded authorization wins.
func recordCheckoutAuthorization(b *domain.Booking, c gateway.Checkout, log logrus.FieldLogger) change {
	if b.Status != domain.BookingStatusConfirmed || c.PaymentIntentID == "" {
		log.WithField("status", b.Status).Warn("balance checkout completed for a booking that cannot take it")
		return change{}
	}
	amount := b.RemainingBalanceCents()
	if c.Totals != nil {
		amount = c.Totals.TotalCents
	}
	if !b.RecordBalanceAuthorization(c.PaymentIntentID, amount) {
		return change{}
	}
	metrics.RecordBalanceAuthorization("checkout_completed")
	return change{save: true}
}

func expire(c gateway.Checkout) mutate {
	return func(b *domain.Booking) change {
		if c.Purpose == gateway.PurposeBalanceAuthorization {
			return change{}
		}
		if b.Cancel(domain.CancelReasonSessionExpired) != domain.TransitionApplied {
			return change{}
		}
		return change{save: true, to: domain.BookingStatusCancelled, event: kafka.EventBookingCancelled}
	}
}

// syncDispute resolves the payment intent through the charge when the event
// does not name it, then folds the dispute into the owning booking.
func (p *Processor) syncDispute(ctx context.Context, event gateway.Event, d gateway.DisputeChanged, log logrus.FieldLogger) (Outcome, error) {
	log = log.WithField("dispute_id", d.DisputeID)
	pi, err := p.paymentIntent(ctx, d.PaymentIntentID, d.ChargeID)
	if err != nil {
		return "", err
	}

	update := domain.DisputeUpdate{DisputeID: d.DisputeID, Status: d.Status, Reason: d.Reason}
	if d.Closed {
		at := eventTime(event)
		update.ClosedAt = &at
	}
	return p.run(ctx, event, log, byPaymentIntent(pi), func(b *domain.Booking) change {
		if !b.RecordDispute(update) {
			return change{}
		}
		return change{save: true, event: kafka.EventDisputeUpdated}
	})
}

func (p *Processor) refund(ctx context.Context, event gateway.Event, r gateway.ChargeRefunded, log logrus.FieldLogger) (Outcome, error) {
	pi, err := p.paymentIntent(ctx, r.PaymentIntentID, r.ChargeID)
	if err != nil {
		return "", err
	}
	at := eventTime(event)
	return p.run(ctx, event, log.WithField("charge_id", r.ChargeID), byPaymentIntent(pi), func(b *domain.Booking) change {
		return change{save: b.RecordRefund(r.AmountRefundedCents, at)}
	})
}

func (p *Processor) paymentIntent(ctx context.Context, paymentIntentID, chargeID string) (string, error) {
	if paymentIntentID != "" || chargeID == "" {
		return paymentIntentID, nil
	}
	pi, err := p.charges.PaymentIntentForCharge(ctx, chargeID)
	if err != nil {
		return "", fmt.Errorf("resolve charge %s: %w", chargeID, err)
	}
	return pi, nil
}

func byID(id int64) locate {
	return func(ctx context.Context, tx repository.BookingTx) (*domain.Booking, error) {
		if id <= 0 {
			return nil, nil
		}
		return found(tx.LockBooking(ctx, id))
	}
}

func byPaymentIntent(id string) locate {
	return func(ctx context.Context, tx repository.BookingTx) (*domain.Booking, error) {
		if id == "" {
			return nil, nil
		}
		return found(tx.LockBookingByPaymentIntent(ctx, id))
	}
}

func found(b *domain.Booking, err error) (*domain.Booking, error) {
	if errors.Is(err, domain.ErrBookingNotFound) {
		return nil, nil
	}
	return b, err
}

func eventTime(event gateway.Event) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	return time.Now().UTC()
}

var _ PaymentsUseCase = (*Processor)(nil)
