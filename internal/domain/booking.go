package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// BookingFlow tells legacy deposit bookings apart from itemized cart bookings.
type BookingFlow string

const (
	// FlowLegacyDeposit charges a deposit at checkout; the balance is collected later.
	FlowLegacyDeposit BookingFlow = "LEGACY_DEPOSIT"
	// FlowCart charges the full gross total at checkout.
	FlowCart BookingFlow = "CART"
)

func (f BookingFlow) Valid() bool {
	return f == FlowLegacyDeposit || f == FlowCart
}

type DisputeStatus string

const (
	DisputeStatusOpen DisputeStatus = "OPEN"
	DisputeStatusWon  DisputeStatus = "WON"
	DisputeStatusLost DisputeStatus = "LOST"
)

// Booking is one reservation of an asset for an inclusive day window.
// StartDate and EndDate are civil days stored as midnight UTC.
type Booking struct {
	ID        int64
	AssetID   int64
	Flow      BookingFlow
	StartDate time.Time
	EndDate   time.Time
	Status    BookingStatus

	// HoldExpiresAt is set while PENDING and nil afterwards.
	HoldExpiresAt      *time.Time
	CancellationReason *string

	CustomerName  string
	CustomerEmail string

	CheckoutSessionID *string
	PaymentIntentID   *string
	Paid              bool

	Quote Quote

	// Settlement snapshot, written once by the first settlement event.
	SubtotalExVatCents           *int64
	TaxCents                     *int64
	TotalCents                   *int64
	DiscountPercentage           *float64
	OriginalSubtotalExVatCents   *int64
	DiscountedSubtotalExVatCents *int64

	BalanceAuthorizationID *string
	BalanceAuthorizedCents *int64

	DisputeID       *string
	DisputeStatus   *DisputeStatus
	DisputeReason   *string
	DisputeClosedAt *time.Time

	RefundedCents int64
	RefundedAt    *time.Time

	InvoiceID     *string
	InvoiceNumber *string

	CustomerNotifiedAt *time.Time
	InternalNotifiedAt *time.Time

	Items []BookingItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Quote is what the pricing engine produced when the booking was created.
type Quote struct {
	RentalDays         int
	NetCents           int64
	TaxCents           int64
	GrossCents         int64
	DiscountPercentage float64
	// DueNowCents is the amount requested by the initial checkout.
	DueNowCents int64
}

// RemainingBalanceCents is the part of the quoted gross total not covered by
// the settled amount.
func (b *Booking) RemainingBalanceCents() int64 {
	if b.TotalCents == nil {
		return b.Quote.GrossCents
	}
	remaining := b.Quote.GrossCents - *b.TotalCents
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Days returns the inclusive number of rental days.
func (b *Booking) Days() int {
	return int(b.EndDate.Sub(b.StartDate).Hours()/24) + 1
}

type Asset struct {
	ID             int64
	Name           string
	DailyRateCents int64
	DepositCents   int64
}

type ProcessedPaymentEvent struct {
	EventID     string
	EventType   string
	BookingID   *int64
	ProcessedAt time.Time
}
