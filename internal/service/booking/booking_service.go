package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/daterange"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/gateway"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/kafka"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/metrics"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/pricing"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/repository"
	"github.com/sirupsen/logrus"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*CreateBookingResult, error)
	GetBooking(ctx context.Context, id int64) (*domain.Booking, error)
	ExpireHolds(ctx context.Context) (int, error)
}

// Availability is the cached calendar view. Reservations only invalidate it;
// CreatePending alone decides whether dates are free.
type Availability interface {
	Invalidate(ctx context.Context, assetID int64)
}

type Checkout interface {
	CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error)
}

type Publisher interface {
	Publish(ctx context.Context, event kafka.BookingEvent) error
}

type BookingService struct {
	bookings     repository.BookingRepository
	assets       repository.AssetRepository
	availability Availability
	checkout     Checkout
	producer     Publisher
	validate     *validator.Validate
	log          logrus.FieldLogger
	now          func() time.Time

	loc                *time.Location
	holdTTL            time.Duration
	vatPercent         float64
	discountPercentage float64
	addOnPrices        map[string]int64
	sweepBatch         int
}

type CreateBookingInput struct {
	AssetID       int64       `json:"asset_id" validate:"required,gt=0"`
	Flow          string      `json:"flow" validate:"required,oneof=LEGACY_DEPOSIT CART"`
	StartDate     string      `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string      `json:"end_date" validate:"required,datetime=2006-01-02"`
	CustomerName  string      `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string      `json:"customer_email" validate:"required,email"`
	Items         []ItemInput `json:"items" validate:"required_if=Flow CART,dive"`
	AddOns        []string    `json:"add_ons" validate:"unique,dive,oneof=delivery pickup insurance operator"`
}

type ItemInput struct {
	CatalogItemID int64 `json:"catalog_item_id" validate:"required,gt=0"`
	Quantity      int   `json:"quantity" validate:"required,min=1"`
}

type CreateBookingResult struct {
	Booking     *domain.Booking
	Breakdown   pricing.Breakdown
	CheckoutURL string
}

type BookingServiceOption func(*BookingService)

func WithProducer(p Publisher) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = p
	}
}

func WithPricing(vatPercent, discountPercentage float64, addOnPrices map[string]int64) BookingServiceOption {
	return func(s *BookingService) {
		s.vatPercent = vatPercent
		s.discountPercentage = discountPercentage
		s.addOnPrices = addOnPrices
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	assets repository.AssetRepository,
	availability Availability,
	checkout Checkout,
	loc *time.Location,
	holdTTL time.Duration,
	log logrus.FieldLogger,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		assets:       assets,
		availability: availability,
		checkout:     checkout,
		validate:     validator.New(),
		log:          log,
		now:          time.Now,
		loc:          loc,
		holdTTL:      holdTTL,
		sweepBatch:   100,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*CreateBookingResult, error) {
	if err := s.validate.Struct(input); err != nil {
		metrics.RecordBookingRejected("validation")
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	start, end, err := s.window(input.StartDate, input.EndDate)
	if err != nil {
		metrics.RecordBookingRejected("validation")
		return nil, err
	}

	asset, err := s.assets.GetByID(ctx, input.AssetID)
	if err != nil {
		return nil, err
	}

	flow := domain.BookingFlow(input.Flow)
	switch {
	case flow == domain.FlowCart && len(input.Items) == 0:
		metrics.RecordBookingRejected("validation")
		return nil, fmt.Errorf("%w: a cart booking needs at least one item", domain.ErrValidation)
	case flow == domain.FlowLegacyDeposit && len(input.Items) > 0:
		metrics.RecordBookingRejected("validation")
		return nil, fmt.Errorf("%w: a legacy booking takes no items", domain.ErrValidation)
	}
	days := int(end.Sub(start).Hours()/24) + 1
	breakdown, items, err := s.price(ctx, flow, asset, days, input)
	if err != nil {
		metrics.RecordBookingRejected("validation")
		return nil, err
	}

	hold := s.now().Add(s.holdTTL)
	b := &domain.Booking{
		AssetID:       asset.ID,
		Flow:          flow,
		StartDate:     start,
		EndDate:       end,
		Status:        domain.BookingStatusPending,
		HoldExpiresAt: &hold,
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
		Quote: domain.Quote{
			RentalDays:         days,
			NetCents:           breakdown.NetTotalCents,
			TaxCents:           breakdown.TaxCents,
			GrossCents:         breakdown.GrossTotalCents,
			DiscountPercentage: s.discountPercentage,
			DueNowCents:        dueNow(flow, asset, breakdown),
		},
		Items: items,
	}

	if err := s.bookings.CreatePending(ctx, b); err != nil {
		if errors.Is(err, domain.ErrDatesUnavailable) {
			metrics.RecordBookingRejected("dates_unavailable")
		}
		return nil, err
	}
	s.availability.Invalidate(ctx, b.AssetID)
	metrics.RecordBookingCreated(string(flow))

	log := s.log.WithFields(logrus.Fields{"booking_id": b.ID, "asset_id": b.AssetID})
	log.Info("booking created")

	session, err := s.checkout.CreateCheckout(ctx, gateway.CheckoutRequest{
		BookingID:     b.ID,
		CustomerEmail: b.CustomerEmail,
		Description:   fmt.Sprintf("%s, %s to %s", asset.Name, input.StartDate, input.EndDate),
		AmountCents:   b.Quote.DueNowCents,
		Metadata:      checkoutMetadata(b, breakdown),
	})
	if err != nil {
		// Release the dates instead of holding them for a checkout that
		// does not exist.
		if _, cerr := s.cancel(ctx, b.ID, domain.CancelReasonCheckoutFailed, false); cerr != nil {
			log.WithError(cerr).Error("failed to release booking after checkout error")
		}
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	if err := s.bookings.SetCheckoutSession(ctx, b.ID, session.ID); err != nil {
		// The session stays live at the provider; a payment against it lands
		// on a cancelled booking and is flagged for refund.
		log.WithError(err).WithField("checkout_session_id", session.ID).Error("failed to link checkout session, releasing booking")
		if _, cerr := s.cancel(ctx, b.ID, domain.CancelReasonCheckoutFailed, false); cerr != nil {
			log.WithError(cerr).Error("failed to release booking after checkout error")
		}
		return nil, fmt.Errorf("link checkout session: %w", err)
	}
	b.CheckoutSessionID = &session.ID

	s.publish(ctx, kafka.EventBookingCreated, b)
	return &CreateBookingResult{Booking: b, Breakdown: breakdown, CheckoutURL: session.URL}, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

// ExpireHolds cancels PENDING bookings whose hold has passed, each in its own
// transaction. Failures are logged and the sweep continues.
func (s *BookingService) ExpireHolds(ctx context.Context) (int, error) {
	ids, err := s.bookings.ExpiredHolds(ctx, s.now(), s.sweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		applied, err := s.cancel(ctx, id, domain.CancelReasonHoldExpired, true)
		if err != nil {
			s.log.WithError(err).WithField("booking_id", id).Error("failed to expire hold")
			continue
		}
		if applied {
			expired++
		}
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("expired booking holds")
	}
	return expired, nil
}

// cancel moves a PENDING booking to CANCELLED. With onlyExpired the hold is
// re-checked under the row lock so a booking confirmed or extended in the
// meantime is left alone.
func (s *BookingService) cancel(ctx context.Context, id int64, reason string, onlyExpired bool) (bool, error) {
	var b *domain.Booking
	applied := false
	err := s.bookings.WithinTx(ctx, func(tx repository.BookingTx) error {
		var err error
		b, err = tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if onlyExpired && (b.HoldExpiresAt == nil || b.HoldExpiresAt.After(s.now())) {
			return nil
		}
		if b.Cancel(reason) != domain.TransitionApplied {
			return nil
		}
		applied = true
		return tx.SaveBooking(ctx, b)
	})
	if err != nil || !applied {
		return false, err
	}

	metrics.RecordTransition(string(domain.BookingStatusCancelled))
	s.availability.Invalidate(ctx, b.AssetID)
	s.publish(ctx, kafka.EventBookingCancelled, b)
	return true, nil
}

func (s *BookingService) window(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := daterange.ParseDay(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	end, err := daterange.ParseDay(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date before start date", domain.ErrValidation)
	}
	if start.Before(daterange.Day(s.now(), s.loc)) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start date in the past", domain.ErrValidation)
	}
	return start, end, nil
}

func (s *BookingService) price(ctx context.Context, flow domain.BookingFlow, asset *domain.Asset, days int, input CreateBookingInput) (pricing.Breakdown, []domain.BookingItem, error) {
	addOns := s.addOns(input.AddOns)

	if flow == domain.FlowLegacyDeposit {
		b, err := pricing.Legacy(days, asset.DailyRateCents, addOns, s.discountPercentage, s.vatPercent)
		if err != nil {
			return pricing.Breakdown{}, nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		return b, nil, nil
	}

	ids := make([]int64, 0, len(input.Items))
	for _, it := range input.Items {
		ids = append(ids, it.CatalogItemID)
	}
	catalog, err := s.assets.CatalogItems(ctx, ids)
	if err != nil {
		return pricing.Breakdown{}, nil, err
	}

	priced := make([]pricing.Item, 0, len(input.Items))
	items := make([]domain.BookingItem, 0, len(input.Items))
	for _, it := range input.Items {
		entry, ok := catalog[it.CatalogItemID]
		if !ok {
			return pricing.Breakdown{}, nil, fmt.Errorf("%w: %w %d", domain.ErrValidation, domain.ErrCatalogItem, it.CatalogItemID)
		}
		priced = append(priced, pricing.Item{
			Quantity:       it.Quantity,
			ChargeModel:    entry.ChargeModel,
			TimeUnit:       entry.TimeUnit,
			UnitPriceCents: entry.UnitPriceCents,
		})
		items = append(items, domain.BookingItem{
			CatalogItemID:  entry.ID,
			Name:           entry.Name,
			Quantity:       it.Quantity,
			ChargeModel:    entry.ChargeModel,
			TimeUnit:       entry.TimeUnit,
			UnitPriceCents: entry.UnitPriceCents,
		})
	}

	b, err := pricing.Compute(pricing.Input{
		RentalDays:         days,
		Items:              priced,
		AddOns:             addOns,
		DiscountPercentage: s.discountPercentage,
		VATPercent:         s.vatPercent,
	})
	if err != nil {
		return pricing.Breakdown{}, nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	for i := range items {
		items[i].LineTotalCents = b.LineTotalsCents[i]
	}
	return b, items, nil
}

func (s *BookingService) addOns(selected []string) []pricing.AddOn {
	out := make([]pricing.AddOn, 0, len(selected))
	for _, kind := range selected {
		a := pricing.AddOn{Kind: pricing.AddOnKind(kind), Selected: true}
		if price, ok := s.addOnPrices[kind]; ok {
			p := price
			a.PriceCents = &p
		}
		out = append(out, a)
	}
	return out
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *domain.Booking) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Publish(ctx, kafka.NewBookingEvent(eventType, b.ID, string(b.Status))); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"booking_id": b.ID, "event_type": eventType}).Warn("failed to publish booking event")
	}
}

// dueNow is the deposit for legacy bookings, capped at the gross total, and
// the gross total for carts.
func dueNow(flow domain.BookingFlow, asset *domain.Asset, b pricing.Breakdown) int64 {
	if flow == domain.FlowLegacyDeposit && asset.DepositCents > 0 && asset.DepositCents < b.GrossTotalCents {
		return asset.DepositCents
	}
	return b.GrossTotalCents
}

func checkoutMetadata(b *domain.Booking, breakdown pricing.Breakdown) map[string]string {
	md := map[string]string{
		gateway.MetaDiscountPercentage: strconv.FormatFloat(b.Quote.DiscountPercentage, 'f', -1, 64),
	}
	// A deposit is not split into net and tax; the full quote is.
	if b.Quote.DueNowCents == breakdown.GrossTotalCents {
		md[gateway.MetaOriginalSubtotal] = strconv.FormatInt(breakdown.SubtotalCents, 10)
		md[gateway.MetaSubtotal] = strconv.FormatInt(breakdown.NetTotalCents, 10)
		md[gateway.MetaTax] = strconv.FormatInt(breakdown.TaxCents, 10)
	}
	return md
}

var _ BookingUseCase = (*BookingService)(nil)
