package helpers

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
)

// GroupTotals are the frozen amounts written onto a transaction at creation.
type GroupTotals struct {
	SubtotalCentimos int64
	ShippingCentimos int64
	TaxCentimos      int64
	TotalCentimos    int64
}

// ComputeGroupTotals prices one seller group: line subtotals, a flat
// shipping charge per group, and tax on the subtotal. The tax rate arrives
// as a percent string so the IVA rate is exact, never a float.
func ComputeGroupTotals(lines []PricedLine, shippingFlat int64, taxRatePercent string) (GroupTotals, error) {
	var totals GroupTotals
	for _, line := range lines {
		totals.SubtotalCentimos += line.Listing.PriceCentimos * int64(line.Qty)
	}
	totals.ShippingCentimos = shippingFlat

	rate, err := decimal.NewFromString(taxRatePercent)
	if err != nil {
		return GroupTotals{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse tax rate")
	}
	if rate.IsNegative() {
		return GroupTotals{}, pkgerrors.New(pkgerrors.CodeInternal, "negative tax rate")
	}
	tax := decimal.NewFromInt(totals.SubtotalCentimos).
		Mul(rate).
		Div(decimal.NewFromInt(100)).
		Round(0)
	totals.TaxCentimos = tax.IntPart()

	totals.TotalCentimos = totals.SubtotalCentimos + totals.ShippingCentimos + totals.TaxCentimos
	return totals, nil
}
