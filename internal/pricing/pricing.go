// Package pricing computes booking totals in integer cents.
//
// Compute prices an itemized cart. Legacy is the historical single-item
// formula; Compute called with one {1, PER_BOOKING, DAY} item must return
// exactly what Legacy returns, so both share every rounding step below.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
)

var (
	ErrInvalidInput             = errors.New("invalid pricing input")
	ErrHourlyPricingUnsupported = errors.New("hourly pricing is not supported")
)

type AddOnKind string

const (
	AddOnDelivery  AddOnKind = "delivery"
	AddOnPickup    AddOnKind = "pickup"
	AddOnInsurance AddOnKind = "insurance"
	AddOnOperator  AddOnKind = "operator"
)

func (k AddOnKind) valid() bool {
	switch k {
	case AddOnDelivery, AddOnPickup, AddOnInsurance, AddOnOperator:
		return true
	}
	return false
}

type Item struct {
	Quantity       int
	ChargeModel    domain.ChargeModel
	TimeUnit       domain.TimeUnit
	UnitPriceCents int64
}

// AddOn is a flat extra. A selected add-on with a nil price is priced later
// and contributes nothing now.
type AddOn struct {
	Kind       AddOnKind
	Selected   bool
	PriceCents *int64
}

type Input struct {
	RentalDays         int
	Items              []Item
	AddOns             []AddOn
	DiscountPercentage float64
	// VATPercent is applied to the discounted net total. Zero means no tax line.
	VATPercent float64
}

type AddOnLine struct {
	Kind         AddOnKind
	AmountCents  int64
	PendingPrice bool
}

type Breakdown struct {
	LineTotalsCents    []int64
	ItemsSubtotalCents int64
	AddOns             []AddOnLine
	AddOnsTotalCents   int64
	// SubtotalCents is items plus add-ons before discount.
	SubtotalCents   int64
	DiscountCents   int64
	NetTotalCents   int64
	TaxCents        int64
	GrossTotalCents int64
}

// HasPendingPrice reports whether any selected add-on still awaits a price.
func (b Breakdown) HasPendingPrice() bool {
	for _, a := range b.AddOns {
		if a.PendingPrice {
			return true
		}
	}
	return false
}

// Compute prices a list of items plus add-ons for a rental of RentalDays days.
func Compute(in Input) (Breakdown, error) {
	if in.RentalDays < 0 {
		return Breakdown{}, fmt.Errorf("%w: rental days %d", ErrInvalidInput, in.RentalDays)
	}

	var out Breakdown
	out.LineTotalsCents = make([]int64, 0, len(in.Items))
	for i, item := range in.Items {
		line, err := lineTotal(item, in.RentalDays)
		if err != nil {
			return Breakdown{}, fmt.Errorf("item %d: %w", i, err)
		}
		out.LineTotalsCents = append(out.LineTotalsCents, line)
		out.ItemsSubtotalCents += line
	}

	return finish(out, in)
}

// Legacy is the single daily-rate formula used before itemized carts.
func Legacy(rentalDays int, dailyRateCents int64, addOns []AddOn, discountPercentage, vatPercent float64) (Breakdown, error) {
	if rentalDays < 0 {
		return Breakdown{}, fmt.Errorf("%w: rental days %d", ErrInvalidInput, rentalDays)
	}
	if dailyRateCents < 0 {
		return Breakdown{}, fmt.Errorf("%w: daily rate %d", ErrInvalidInput, dailyRateCents)
	}

	rental := int64(rentalDays) * dailyRateCents
	out := Breakdown{
		LineTotalsCents:    []int64{rental},
		ItemsSubtotalCents: rental,
	}
	return finish(out, Input{
		RentalDays:         rentalDays,
		AddOns:             addOns,
		DiscountPercentage: discountPercentage,
		VATPercent:         vatPercent,
	})
}

func lineTotal(item Item, rentalDays int) (int64, error) {
	if item.UnitPriceCents < 0 {
		return 0, fmt.Errorf("%w: unit price %d", ErrInvalidInput, item.UnitPriceCents)
	}

	var units int64
	switch item.ChargeModel {
	case domain.ChargePerBooking:
		units = 1
	case domain.ChargePerUnit:
		if item.Quantity < 1 {
			return 0, fmt.Errorf("%w: quantity %d", ErrInvalidInput, item.Quantity)
		}
		units = int64(item.Quantity)
	default:
		return 0, fmt.Errorf("%w: charge model %q", ErrInvalidInput, item.ChargeModel)
	}

	switch item.TimeUnit {
	case domain.TimeUnitDay:
		return units * item.UnitPriceCents * int64(rentalDays), nil
	case domain.TimeUnitNone:
		return units * item.UnitPriceCents, nil
	case domain.TimeUnitHour:
		return 0, ErrHourlyPricingUnsupported
	default:
		return 0, fmt.Errorf("%w: time unit %q", ErrInvalidInput, item.TimeUnit)
	}
}

func finish(out Breakdown, in Input) (Breakdown, error) {
	lines, total, err := addOnLines(in.AddOns)
	if err != nil {
		return Breakdown{}, err
	}
	out.AddOns = lines
	out.AddOnsTotalCents = total

	out.SubtotalCents = out.ItemsSubtotalCents + out.AddOnsTotalCents
	out.DiscountCents = DiscountCents(out.SubtotalCents, in.DiscountPercentage)
	out.NetTotalCents = out.SubtotalCents - out.DiscountCents
	out.TaxCents = percentOf(out.NetTotalCents, in.VATPercent)
	out.GrossTotalCents = out.NetTotalCents + out.TaxCents
	return out, nil
}

func addOnLines(addOns []AddOn) ([]AddOnLine, int64, error) {
	lines := make([]AddOnLine, 0, len(addOns))
	seen := make(map[AddOnKind]bool, len(addOns))
	var total int64
	for _, a := range addOns {
		if !a.Kind.valid() {
			return nil, 0, fmt.Errorf("%w: add-on %q", ErrInvalidInput, a.Kind)
		}
		if seen[a.Kind] {
			return nil, 0, fmt.Errorf("%w: add-on %q listed twice", ErrInvalidInput, a.Kind)
		}
		seen[a.Kind] = true
		if !a.Selected {
			continue
		}
		if a.PriceCents == nil {
			lines = append(lines, AddOnLine{Kind: a.Kind, PendingPrice: true})
			continue
		}
		if *a.PriceCents < 0 {
			return nil, 0, fmt.Errorf("%w: add-on %q price %d", ErrInvalidInput, a.Kind, *a.PriceCents)
		}
		lines = append(lines, AddOnLine{Kind: a.Kind, AmountCents: *a.PriceCents})
		total += *a.PriceCents
	}
	return lines, total, nil
}

// DiscountCents applies a flat percentage. Percentages outside [0,100]
// give no discount.
func DiscountCents(subtotalCents int64, percentage float64) int64 {
	if math.IsNaN(percentage) || percentage <= 0 || percentage > 100 {
		return 0
	}
	return percentOf(subtotalCents, percentage)
}

func percentOf(amountCents int64, percentage float64) int64 {
	if percentage <= 0 || math.IsNaN(percentage) {
		return 0
	}
	return int64(math.Round(float64(amountCents) * percentage / 100))
}
