package domain

type ChargeModel string

const (
	ChargePerBooking ChargeModel = "PER_BOOKING"
	ChargePerUnit    ChargeModel = "PER_UNIT"
)

type TimeUnit string

const (
	TimeUnitDay  TimeUnit = "DAY"
	TimeUnitHour TimeUnit = "HOUR"
	TimeUnitNone TimeUnit = "NONE"
)

// CatalogItem is the current catalog entry. Its price is copied into a
// BookingItem when a booking is created and never read back for that booking.
type CatalogItem struct {
	ID             int64
	Name           string
	UnitPriceCents int64
	ChargeModel    ChargeModel
	TimeUnit       TimeUnit
}

type BookingItem struct {
	ID             int64
	BookingID      int64
	CatalogItemID  int64
	Name           string
	Quantity       int
	ChargeModel    ChargeModel
	TimeUnit       TimeUnit
	UnitPriceCents int64
	// LineTotalCents is the priced amount at creation time.
	LineTotalCents int64
}
