package domain

import (
	"fmt"

	"github.com/smallbiznis/invoicing/internal/tax"
)

// LineTotals is the computed monetary state of one line.
type LineTotals struct {
	Subtotal   float64 `json:"subtotal"`
	TaxGST     float64 `json:"tax_gst"`
	TaxPST     float64 `json:"tax_pst"`
	GrandTotal float64 `json:"grand_total"`
}

// ComputeTotals is the pure formula set shared by the authoritative side and
// the presentation-tier mirror. In inclusive mode the subtotal already
// carries the tax, so the channel amounts are informational and are not
// re-added to the grand total.
func ComputeTotals(price, quantity, discount float64, gst, pst *float64, mode tax.Mode, taxesDisabled bool) LineTotals {
	t := LineTotals{
		Subtotal: price * quantity * (1 - discount/100),
	}
	if !taxesDisabled {
		t.TaxGST = tax.Compute(mode, t.Subtotal, rate(gst))
		t.TaxPST = tax.Compute(mode, t.Subtotal, rate(pst))
	}
	t.GrandTotal = t.Subtotal
	if mode == tax.ModeExclusive {
		t.GrandTotal += t.TaxGST + t.TaxPST
	}
	return t
}

func rate(r *float64) float64 {
	if r == nil {
		return 0
	}
	return *r
}

// Subtotal returns price * quantity less the discount percentage.
func (l *InvoiceLine) Subtotal() float64 {
	return l.Price * l.Quantity * (1 - l.Discount/100)
}

// Totals returns the full computed monetary state of the line.
func (l *InvoiceLine) Totals(mode tax.Mode, taxesDisabled bool) LineTotals {
	return ComputeTotals(l.Price, l.Quantity, l.Discount, l.TaxGST, l.TaxPST, mode, taxesDisabled)
}

// TaxAmountGST returns the GST channel amount for the active mode.
func (l *InvoiceLine) TaxAmountGST(mode tax.Mode, taxesDisabled bool) float64 {
	return l.Totals(mode, taxesDisabled).TaxGST
}

// TaxAmountPST returns the PST channel amount for the active mode.
func (l *InvoiceLine) TaxAmountPST(mode tax.Mode, taxesDisabled bool) float64 {
	return l.Totals(mode, taxesDisabled).TaxPST
}

// TaxAmount returns both channels combined.
func (l *InvoiceLine) TaxAmount(mode tax.Mode, taxesDisabled bool) float64 {
	t := l.Totals(mode, taxesDisabled)
	return t.TaxGST + t.TaxPST
}

// GrandTotal is the line total including tax in exclusive mode; in inclusive
// mode the subtotal is already the inclusive figure.
func (l *InvoiceLine) GrandTotal(mode tax.Mode, taxesDisabled bool) float64 {
	return l.Totals(mode, taxesDisabled).GrandTotal
}

// DiscountString renders the discount percent to two decimal places. A zero
// discount renders empty rather than "0.00%".
func (l *InvoiceLine) DiscountString() string {
	if l.Discount == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f%%", l.Discount)
}

// TaxGSTString renders the GST rate to three decimal places, empty when the
// rate is absent.
func (l *InvoiceLine) TaxGSTString() string {
	return percentString(l.TaxGST)
}

// TaxPSTString renders the PST rate to three decimal places, empty when the
// rate is absent.
func (l *InvoiceLine) TaxPSTString() string {
	return percentString(l.TaxPST)
}

func percentString(r *float64) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%.3f%%", *r)
}
