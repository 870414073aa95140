package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/daterange"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type BookingRepository interface {
	// CreatePending inserts a PENDING booking and its items after checking,
	// in the same transaction, that no active booking of the asset overlaps.
	CreatePending(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	SetCheckoutSession(ctx context.Context, bookingID int64, sessionID string) error
	ActiveRanges(ctx context.Context, assetID int64, from time.Time) ([]daterange.Range, error)
	ActiveRangesByAsset(ctx context.Context, from time.Time) (map[int64][]daterange.Range, error)
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]int64, error)
	// ClaimNotification returns true for exactly one caller per booking and kind.
	ClaimNotification(ctx context.Context, bookingID int64, kind domain.NotificationKind) (bool, error)
	WithinTx(ctx context.Context, fn func(tx BookingTx) error) error
}

// BookingTx is a unit of work scoped to a single booking row.
type BookingTx interface {
	// RecordEvent inserts the event id into the dedup log. It returns false
	// when the id was already recorded.
	RecordEvent(ctx context.Context, event domain.ProcessedPaymentEvent) (bool, error)
	LockBooking(ctx context.Context, id int64) (*domain.Booking, error)
	LockBookingByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Booking, error)
	SaveBooking(ctx context.Context, booking *domain.Booking) error
}

type PGBookingRepository struct {
	db DB
}

func NewBookingRepository(db DB) BookingRepository {
	return &PGBookingRepository{db: db}
}

const (
	pgUniqueViolation     = "23505"
	pgExclusionViolation  = "23P01"
	pgForeignKeyViolation = "23503"
)

const bookingColumns = `id, asset_id, flow, start_date, end_date, status, hold_expires_at, cancellation_reason,
	customer_name, customer_email, checkout_session_id, payment_intent_id, paid,
	rental_days, quote_net_cents, quote_tax_cents, quote_gross_cents, quote_discount_percentage, due_now_cents,
	subtotal_ex_vat_cents, tax_cents, total_cents, discount_percentage, original_subtotal_ex_vat_cents, discounted_subtotal_ex_vat_cents,
	balance_authorization_id, balance_authorized_cents,
	dispute_id, dispute_status, dispute_reason, dispute_closed_at,
	refunded_cents, refunded_at, invoice_id, invoice_number,
	customer_notified_at, internal_notified_at, created_at, updated_at`

const overlapQuery = `SELECT EXISTS (
	SELECT 1 FROM bookings
	WHERE asset_id = $1
	  AND status IN ('PENDING', 'CONFIRMED')
	  AND start_date <= $3
	  AND end_date >= $2
)`

func (r *PGBookingRepository) CreatePending(ctx context.Context, booking *domain.Booking) error {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		// Serializes reservations per asset so the overlap check below sees
		// every committed competitor.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, booking.AssetID); err != nil {
			return err
		}

		var taken bool
		if err := tx.QueryRow(ctx, overlapQuery, booking.AssetID, booking.StartDate, booking.EndDate).Scan(&taken); err != nil {
			return err
		}
		if taken {
			return domain.ErrDatesUnavailable
		}

		booking.Status = domain.BookingStatusPending
		q := booking.Quote
		if err := tx.QueryRow(ctx, `INSERT INTO bookings (asset_id, flow, start_date, end_date, status, hold_expires_at,
			customer_name, customer_email, rental_days, quote_net_cents, quote_tax_cents, quote_gross_cents,
			quote_discount_percentage, due_now_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id, created_at, updated_at`,
			booking.AssetID, booking.Flow, booking.StartDate, booking.EndDate, booking.Status, booking.HoldExpiresAt,
			booking.CustomerName, booking.CustomerEmail, q.RentalDays, q.NetCents, q.TaxCents, q.GrossCents,
			q.DiscountPercentage, q.DueNowCents).
			Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt); err != nil {
			return err
		}

		for i := range booking.Items {
			item := &booking.Items[i]
			item.BookingID = booking.ID
			if err := tx.QueryRow(ctx, `INSERT INTO booking_items (booking_id, catalog_item_id, name, quantity,
				charge_model, time_unit, unit_price_cents, line_total_cents)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id`,
				item.BookingID, item.CatalogItemID, item.Name, item.Quantity,
				item.ChargeModel, item.TimeUnit, item.UnitPriceCents, item.LineTotalCents).
				Scan(&item.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return mapPgError(err)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT id, booking_id, catalog_item_id, name, quantity, charge_model, time_unit,
		unit_price_cents, line_total_cents FROM booking_items WHERE booking_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.BookingItem
		var chargeModel, timeUnit string
		if err := rows.Scan(&item.ID, &item.BookingID, &item.CatalogItemID, &item.Name, &item.Quantity,
			&chargeModel, &timeUnit, &item.UnitPriceCents, &item.LineTotalCents); err != nil {
			return nil, err
		}
		item.ChargeModel = domain.ChargeModel(chargeModel)
		item.TimeUnit = domain.TimeUnit(timeUnit)
		b.Items = append(b.Items, item)
	}
	return b, rows.Err()
}

func (r *PGBookingRepository) SetCheckoutSession(ctx context.Context, bookingID int64, sessionID string) error {
	res, err := r.db.Exec(ctx, `UPDATE bookings SET checkout_session_id = $2, updated_at = now()
		WHERE id = $1 AND checkout_session_id IS NULL`, bookingID, sessionID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("booking %d already has a checkout session", bookingID)
	}
	return nil
}

func (r *PGBookingRepository) ActiveRanges(ctx context.Context, assetID int64, from time.Time) ([]daterange.Range, error) {
	rows, err := r.db.Query(ctx, `SELECT start_date, end_date FROM bookings
		WHERE asset_id = $1 AND status IN ('PENDING', 'CONFIRMED') AND end_date >= $2
		ORDER BY start_date`, assetID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ranges := make([]daterange.Range, 0)
	for rows.Next() {
		var rg daterange.Range
		if err := rows.Scan(&rg.From, &rg.To); err != nil {
			return nil, err
		}
		ranges = append(ranges, rg)
	}
	return ranges, rows.Err()
}

func (r *PGBookingRepository) ActiveRangesByAsset(ctx context.Context, from time.Time) (map[int64][]daterange.Range, error) {
	rows, err := r.db.Query(ctx, `SELECT asset_id, start_date, end_date FROM bookings
		WHERE status IN ('PENDING', 'CONFIRMED') AND end_date >= $1
		ORDER BY asset_id, start_date`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byAsset := make(map[int64][]daterange.Range)
	for rows.Next() {
		var assetID int64
		var rg daterange.Range
		if err := rows.Scan(&assetID, &rg.From, &rg.To); err != nil {
			return nil, err
		}
		byAsset[assetID] = append(byAsset[assetID], rg)
	}
	return byAsset, rows.Err()
}

func (r *PGBookingRepository) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM bookings
		WHERE status = 'PENDING' AND hold_expires_at <= $1
		ORDER BY hold_expires_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var notificationColumns = map[domain.NotificationKind]string{
	domain.NotificationCustomerConfirmation: "customer_notified_at",
	domain.NotificationInternalAlert:        "internal_notified_at",
}

func (r *PGBookingRepository) ClaimNotification(ctx context.Context, bookingID int64, kind domain.NotificationKind) (bool, error) {
	column, ok := notificationColumns[kind]
	if !ok {
		return false, fmt.Errorf("unknown notification kind %q", kind)
	}
	res, err := r.db.Exec(ctx, `UPDATE bookings SET `+column+` = now()
		WHERE id = $1 AND `+column+` IS NULL`, bookingID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *PGBookingRepository) WithinTx(ctx context.Context, fn func(tx BookingTx) error) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgBookingTx{tx: tx})
	})
}

func (r *PGBookingRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgBookingTx struct {
	tx pgx.Tx
}

func (t *pgBookingTx) RecordEvent(ctx context.Context, event domain.ProcessedPaymentEvent) (bool, error) {
	// A concurrent insert of the same id blocks here until the other
	// transaction ends, then either conflicts or proceeds.
	res, err := t.tx.Exec(ctx, `INSERT INTO processed_payment_events (event_id, event_type, booking_id)
		VALUES ($1, $2, $3) ON CONFLICT (event_id) DO NOTHING`, event.EventID, event.EventType, event.BookingID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (t *pgBookingTx) LockBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	return scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgBookingTx) LockBookingByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Booking, error) {
	// A balance authorization is its own payment intent; the booking's
	// original payment wins when both match.
	return scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE payment_intent_id = $1 OR balance_authorization_id = $1
		ORDER BY (payment_intent_id IS NOT DISTINCT FROM $1) DESC
		LIMIT 1 FOR UPDATE`, paymentIntentID))
}

func (t *pgBookingTx) SaveBooking(ctx context.Context, b *domain.Booking) error {
	var disputeStatus *string
	if b.DisputeStatus != nil {
		s := string(*b.DisputeStatus)
		disputeStatus = &s
	}

	res, err := t.tx.Exec(ctx, `UPDATE bookings SET
		status = $2, hold_expires_at = $3, cancellation_reason = $4,
		payment_intent_id = $5, paid = $6,
		subtotal_ex_vat_cents = $7, tax_cents = $8, total_cents = $9, discount_percentage = $10,
		original_subtotal_ex_vat_cents = $11, discounted_subtotal_ex_vat_cents = $12,
		balance_authorization_id = $13, balance_authorized_cents = $14,
		dispute_id = $15, dispute_status = $16, dispute_reason = $17, dispute_closed_at = $18,
		refunded_cents = $19, refunded_at = $20,
		updated_at = now()
		WHERE id = $1`,
		b.ID, b.Status, b.HoldExpiresAt, b.CancellationReason,
		b.PaymentIntentID, b.Paid,
		b.SubtotalExVatCents, b.TaxCents, b.TotalCents, b.DiscountPercentage,
		b.OriginalSubtotalExVatCents, b.DiscountedSubtotalExVatCents,
		b.BalanceAuthorizationID, b.BalanceAuthorizedCents,
		b.DisputeID, disputeStatus, b.DisputeReason, b.DisputeClosedAt,
		b.RefundedCents, b.RefundedAt)
	if err != nil {
		return mapPgError(err)
	}
	if res.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b             domain.Booking
		flow, status  string
		disputeStatus *string
	)
	err := row.Scan(&b.ID, &b.AssetID, &flow, &b.StartDate, &b.EndDate, &status, &b.HoldExpiresAt, &b.CancellationReason,
		&b.CustomerName, &b.CustomerEmail, &b.CheckoutSessionID, &b.PaymentIntentID, &b.Paid,
		&b.Quote.RentalDays, &b.Quote.NetCents, &b.Quote.TaxCents, &b.Quote.GrossCents, &b.Quote.DiscountPercentage, &b.Quote.DueNowCents,
		&b.SubtotalExVatCents, &b.TaxCents, &b.TotalCents, &b.DiscountPercentage, &b.OriginalSubtotalExVatCents, &b.DiscountedSubtotalExVatCents,
		&b.BalanceAuthorizationID, &b.BalanceAuthorizedCents,
		&b.DisputeID, &disputeStatus, &b.DisputeReason, &b.DisputeClosedAt,
		&b.RefundedCents, &b.RefundedAt, &b.InvoiceID, &b.InvoiceNumber,
		&b.CustomerNotifiedAt, &b.InternalNotifiedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	b.Flow = domain.BookingFlow(flow)
	b.Status = domain.BookingStatus(status)
	if disputeStatus != nil {
		ds := domain.DisputeStatus(*disputeStatus)
		b.DisputeStatus = &ds
	}
	return &b, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return fmt.Errorf("%w: %s", domain.ErrDatesUnavailable, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			if pgErr.ConstraintName == "bookings_asset_id_fkey" {
				return domain.ErrAssetNotFound
			}
		case pgUniqueViolation:
			return fmt.Errorf("unique constraint %s: %w", pgErr.ConstraintName, err)
		}
	}
	return err
}

var _ BookingRepository = (*PGBookingRepository)(nil)
