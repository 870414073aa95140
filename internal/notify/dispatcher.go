// Package notify sends booking notifications at most once each. A
// notification is claimed through its timestamp column before the transport
// is called; a send that fails after the claim is logged and not retried.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/kafka"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/metrics"
	"github.com/sirupsen/logrus"
)

type Store interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ClaimNotification(ctx context.Context, bookingID int64, kind domain.NotificationKind) (bool, error)
}

type Mailer interface {
	SendBookingConfirmation(ctx context.Context, to string, view BookingView) error
	SendInternalAlert(ctx context.Context, to string, view BookingView) error
}

type Dispatcher struct {
	store    Store
	mailer   Mailer
	opsEmail string
	log      logrus.FieldLogger
}

func NewDispatcher(store Store, mailer Mailer, opsEmail string, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{store: store, mailer: mailer, opsEmail: opsEmail, log: log}
}

// HandleEvent reacts to booking events from the notifications topic.
func (d *Dispatcher) HandleEvent(ctx context.Context, event kafka.BookingEvent) error {
	switch event.Type {
	case kafka.EventBookingConfirmed:
		return d.BookingConfirmed(ctx, event.BookingID)
	default:
		d.log.WithFields(logrus.Fields{"booking_id": event.BookingID, "event_type": event.Type}).Debug("no notification for event")
		return nil
	}
}

// BookingConfirmed sends the customer confirmation and the internal alert for
// a confirmed booking. Errors are returned only when the booking could not be
// read or claimed, so the caller may redeliver. An unknown booking is dropped.
func (d *Dispatcher) BookingConfirmed(ctx context.Context, bookingID int64) error {
	b, err := d.store.GetByID(ctx, bookingID)
	if errors.Is(err, domain.ErrBookingNotFound) {
		d.log.WithField("booking_id", bookingID).Error("notification for unknown booking dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	if b.Status != domain.BookingStatusConfirmed {
		d.log.WithFields(logrus.Fields{"booking_id": bookingID, "status": b.Status}).Warn("skipping notifications for unconfirmed booking")
		return nil
	}

	view := NewBookingView(b)

	if err := d.send(ctx, b.ID, domain.NotificationCustomerConfirmation, func() error {
		return d.mailer.SendBookingConfirmation(ctx, b.CustomerEmail, view)
	}); err != nil {
		return err
	}

	if d.opsEmail == "" {
		return nil
	}
	return d.send(ctx, b.ID, domain.NotificationInternalAlert, func() error {
		return d.mailer.SendInternalAlert(ctx, d.opsEmail, view)
	})
}

func (d *Dispatcher) send(ctx context.Context, bookingID int64, kind domain.NotificationKind, deliver func() error) error {
	log := d.log.WithFields(logrus.Fields{"booking_id": bookingID, "notification": kind})

	won, err := d.store.ClaimNotification(ctx, bookingID, kind)
	if err != nil {
		return fmt.Errorf("claim %s for booking %d: %w", kind, bookingID, err)
	}
	if !won {
		metrics.RecordNotification(string(kind), "already_claimed")
		log.Debug("notification already claimed")
		return nil
	}

	if err := deliver(); err != nil {
		metrics.RecordNotification(string(kind), "failed")
		log.WithError(err).Warn("notification send failed after claim")
		return nil
	}
	metrics.RecordNotification(string(kind), "sent")
	log.Info("notification sent")
	return nil
}
