// Package pricing computes order totals from authoritative unit prices.
//
// The order of operations is fixed: subtotal, priority surcharge, discount on
// the surcharged amount, total. Every amount is a decimal rounded to the
// currency's minor unit (two places).
package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// SurchargeRate is the flat expedite fee applied to priority orders.
	SurchargeRate = decimal.RequireFromString("0.20")
)

// Line is a single priced cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Total returns UnitPrice × Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Breakdown holds every intermediate amount of a priced order.
type Breakdown struct {
	LineTotals       []decimal.Decimal
	Subtotal         decimal.Decimal
	Surcharge        decimal.Decimal
	PreDiscountTotal decimal.Decimal
	DiscountPercent  decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
}

// Price computes the breakdown for lines. discountPercent is clamped to
// [0, 100] before use.
func Price(lines []Line, priority bool, discountPercent decimal.Decimal) Breakdown {
	b := Breakdown{
		LineTotals: make([]decimal.Decimal, len(lines)),
		Subtotal:   decimal.Zero,
		Surcharge:  decimal.Zero,
	}
	for i, l := range lines {
		lt := l.Total()
		b.LineTotals[i] = lt.Round(2)
		b.Subtotal = b.Subtotal.Add(lt)
	}
	b.Subtotal = b.Subtotal.Round(2)

	if priority {
		b.Surcharge = b.Subtotal.Mul(SurchargeRate).Round(2)
	}
	b.PreDiscountTotal = b.Subtotal.Add(b.Surcharge)

	b.DiscountPercent = ClampPercent(discountPercent)
	b.Discount = b.PreDiscountTotal.Mul(b.DiscountPercent).Div(hundred).Round(2)
	if b.Discount.GreaterThan(b.PreDiscountTotal) {
		b.Discount = b.PreDiscountTotal
	}

	b.Total = b.PreDiscountTotal.Sub(b.Discount)
	if b.Total.IsNegative() {
		b.Total = decimal.Zero
	}
	return b
}

// ClampPercent bounds p to [0, 100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	switch {
	case p.IsNegative():
		return decimal.Zero
	case p.GreaterThan(hundred):
		return hundred
	default:
		return p
	}
}
