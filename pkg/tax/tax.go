// Package tax computes GST totals for a sale. Everything here is pure decimal
// arithmetic with no I/O.
package tax

import (
	"github.com/shopspring/decimal"
)

var (
	// IGSTRate applies to inter-state sales.
	IGSTRate = decimal.RequireFromString("0.03")
	// CGSTRate and SGSTRate each apply to intra-state sales.
	CGSTRate = decimal.RequireFromString("0.015")
	SGSTRate = decimal.RequireFromString("0.015")
)

const minorUnits = 2

// Line is the subset of a sale line the calculator needs.
type Line struct {
	Quantity      int
	Carat         decimal.Decimal
	PricePerCarat decimal.Decimal
	CostPerCarat  decimal.NullDecimal
}

// Total returns quantity × carat × pricePerCarat rounded to minor units.
func (l Line) Total() decimal.Decimal {
	return decimal.NewFromInt(int64(l.Quantity)).Mul(l.Carat).Mul(l.PricePerCarat).Round(minorUnits)
}

// Breakdown is the full set of computed sale amounts.
type Breakdown struct {
	ItemsTotal   decimal.Decimal `json:"items_total"`
	Discount     decimal.Decimal `json:"discount"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	CGST         decimal.Decimal `json:"cgst"`
	SGST         decimal.Decimal `json:"sgst"`
	IGST         decimal.Decimal `json:"igst"`
	TotalWithTax decimal.Decimal `json:"total_with_tax"`
}

// Compute returns the tax breakdown for lines. A negative discount is
// treated as zero and the subtotal is floored at zero.
func Compute(lines []Line, discount decimal.Decimal, isOutOfState bool) Breakdown {
	itemsTotal := decimal.Zero
	for _, l := range lines {
		itemsTotal = itemsTotal.Add(l.Total())
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	discount = discount.Round(minorUnits)

	subtotal := itemsTotal.Sub(discount)
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}

	b := Breakdown{
		ItemsTotal: itemsTotal,
		Discount:   discount,
		Subtotal:   subtotal,
		CGST:       decimal.Zero,
		SGST:       decimal.Zero,
		IGST:       decimal.Zero,
	}
	if isOutOfState {
		b.IGST = subtotal.Mul(IGSTRate).Round(minorUnits)
	} else {
		b.CGST = subtotal.Mul(CGSTRate).Round(minorUnits)
		b.SGST = subtotal.Mul(SGSTRate).Round(minorUnits)
	}
	b.TotalWithTax = subtotal.Add(b.CGST).Add(b.SGST).Add(b.IGST)
	return b
}

// Equal reports whether two breakdowns agree on every amount.
func (b Breakdown) Equal(other Breakdown) bool {
	return b.ItemsTotal.Equal(other.ItemsTotal) &&
		b.Discount.Equal(other.Discount) &&
		b.Subtotal.Equal(other.Subtotal) &&
		b.CGST.Equal(other.CGST) &&
		b.SGST.Equal(other.SGST) &&
		b.IGST.Equal(other.IGST) &&
		b.TotalWithTax.Equal(other.TotalWithTax)
}

// Profit returns subtotal minus the cost basis of lines. The result is
// invalid when any line has no recorded cost per carat.
func Profit(subtotal decimal.Decimal, lines []Line) decimal.NullDecimal {
	cost := decimal.Zero
	for _, l := range lines {
		if !l.CostPerCarat.Valid {
			return decimal.NullDecimal{}
		}
		cost = cost.Add(decimal.NewFromInt(int64(l.Quantity)).Mul(l.Carat).Mul(l.CostPerCarat.Decimal))
	}
	return decimal.NewNullDecimal(subtotal.Sub(cost).Round(minorUnits))
}
