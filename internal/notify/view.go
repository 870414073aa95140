package notify

import (
	"github.com/itsadrianapaiva/amr-app-sub001/internal/daterange"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
)

// BookingView is the plain data handed to mail templates.
type BookingView struct {
	BookingID     int64
	AssetID       int64
	Flow          string
	CustomerName  string
	CustomerEmail string
	StartDate     string
	EndDate       string
	RentalDays    int

	Items []ItemView

	SubtotalExVatCents    int64
	TaxCents              int64
	TotalCents            int64
	DiscountPercentage    float64
	DiscountCents         int64
	RemainingBalanceCents int64
}

type ItemView struct {
	Name           string
	Quantity       int
	UnitPriceCents int64
	LineTotalCents int64
}

// NewBookingView prefers the settled amounts and falls back to the quote.
func NewBookingView(b *domain.Booking) BookingView {
	v := BookingView{
		BookingID:             b.ID,
		AssetID:               b.AssetID,
		Flow:                  string(b.Flow),
		CustomerName:          b.CustomerName,
		CustomerEmail:         b.CustomerEmail,
		StartDate:             daterange.FormatDay(b.StartDate),
		EndDate:               daterange.FormatDay(b.EndDate),
		RentalDays:            b.Quote.RentalDays,
		SubtotalExVatCents:    b.Quote.NetCents,
		TaxCents:              b.Quote.TaxCents,
		TotalCents:            b.Quote.GrossCents,
		DiscountPercentage:    b.Quote.DiscountPercentage,
		RemainingBalanceCents: b.RemainingBalanceCents(),
	}

	if b.TotalCents != nil {
		v.TotalCents = *b.TotalCents
		if b.SubtotalExVatCents != nil {
			v.SubtotalExVatCents = *b.SubtotalExVatCents
		}
		if b.TaxCents != nil {
			v.TaxCents = *b.TaxCents
		}
		if b.DiscountPercentage != nil {
			v.DiscountPercentage = *b.DiscountPercentage
		}
		if b.OriginalSubtotalExVatCents != nil && b.DiscountedSubtotalExVatCents != nil {
			v.DiscountCents = *b.OriginalSubtotalExVatCents - *b.DiscountedSubtotalExVatCents
		}
	}

	for _, it := range b.Items {
		v.Items = append(v.Items, ItemView{
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			LineTotalCents: it.LineTotalCents,
		})
	}
	return v
}
