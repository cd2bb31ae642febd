// Package preview is the presentation-tier mirror calculator. It recomputes
// line and page totals from raw field values on every edit so a user sees a
// correct total before the authoritative recompute commits. It shares the
// formula set with the invoice domain and never touches durable state; the
// server-side recompute supersedes it on submission.
package preview

import (
	"errors"

	invoicedomain "github.com/smallbiznis/invoicing/internal/invoice/domain"
	"github.com/smallbiznis/invoicing/internal/numeric"
	"github.com/smallbiznis/invoicing/internal/tax"
)

// Field names an editable row field.
type Field string

const (
	FieldDescription Field = "description"
	FieldPrice       Field = "price"
	FieldQuantity    Field = "quantity"
	FieldDiscount    Field = "discount"
	FieldTaxGST      Field = "tax_gst"
	FieldTaxPST      Field = "tax_pst"
)

var (
	ErrRowOutOfRange  = errors.New("row_out_of_range")
	ErrUnknownField   = errors.New("unknown_field")
	ErrBadPermutation = errors.New("bad_permutation")
)

// Row holds one visible line's raw field values, exactly as typed.
type Row struct {
	Description string `json:"description"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	Discount    string `json:"discount"`
	TaxGST      string `json:"tax_gst"`
	TaxPST      string `json:"tax_pst"`
	Position    int    `json:"position"`
}

// Sheet is the set of visible rows for one invoice being edited.
type Sheet struct {
	mode          tax.Mode
	taxesDisabled bool
	rows          []*Row
}

func NewSheet(mode tax.Mode, taxesDisabled bool) *Sheet {
	return &Sheet{mode: mode, taxesDisabled: taxesDisabled}
}

// AddRow appends a row at the end of the visual order and returns its index.
func (s *Sheet) AddRow(r Row) int {
	row := r
	row.Position = len(s.rows) + 1
	s.rows = append(s.rows, &row)
	return len(s.rows) - 1
}

// RemoveRow hides a row and renumbers the remaining ones.
func (s *Sheet) RemoveRow(i int) error {
	if i < 0 || i >= len(s.rows) {
		return ErrRowOutOfRange
	}
	s.rows = append(s.rows[:i:i], s.rows[i+1:]...)
	s.renumber()
	return nil
}

// SetField applies one keystroke-level edit to a row.
func (s *Sheet) SetField(i int, field Field, raw string) error {
	if i < 0 || i >= len(s.rows) {
		return ErrRowOutOfRange
	}
	row := s.rows[i]
	switch field {
	case FieldDescription:
		row.Description = raw
	case FieldPrice:
		row.Price = raw
	case FieldQuantity:
		row.Quantity = raw
	case FieldDiscount:
		row.Discount = raw
	case FieldTaxGST:
		row.TaxGST = raw
	case FieldTaxPST:
		row.TaxPST = raw
	default:
		return ErrUnknownField
	}
	return nil
}

// Reorder rearranges the rows to follow perm, a full permutation of the
// current row indices (drag-and-drop result), and renumbers positions to
// match the new visual order.
func (s *Sheet) Reorder(perm []int) error {
	if len(perm) != len(s.rows) {
		return ErrBadPermutation
	}
	seen := make([]bool, len(s.rows))
	out := make([]*Row, 0, len(s.rows))
	for _, idx := range perm {
		if idx < 0 || idx >= len(s.rows) || seen[idx] {
			return ErrBadPermutation
		}
		seen[idx] = true
		out = append(out, s.rows[idx])
	}
	s.rows = out
	s.renumber()
	return nil
}

// CopyPriceToAll copies row i's price into every other row, then the next
// Totals call recomputes the page aggregate.
func (s *Sheet) CopyPriceToAll(i int) error {
	if i < 0 || i >= len(s.rows) {
		return ErrRowOutOfRange
	}
	price := s.rows[i].Price
	for _, row := range s.rows {
		row.Price = price
	}
	return nil
}

// Rows exposes the current visual order.
func (s *Sheet) Rows() []*Row { return s.rows }

// RowTotals computes one row's monetary state with the authoritative
// formulas.
func (s *Sheet) RowTotals(i int) (invoicedomain.LineTotals, error) {
	if i < 0 || i >= len(s.rows) {
		return invoicedomain.LineTotals{}, ErrRowOutOfRange
	}
	return s.compute(s.rows[i]), nil
}

// Totals returns every row's totals in visual order plus the page aggregate.
func (s *Sheet) Totals() ([]invoicedomain.LineTotals, float64) {
	totals := make([]invoicedomain.LineTotals, len(s.rows))
	var sum float64
	for i, row := range s.rows {
		totals[i] = s.compute(row)
		sum += totals[i].GrandTotal
	}
	return totals, sum
}

func (s *Sheet) compute(row *Row) invoicedomain.LineTotals {
	return invoicedomain.ComputeTotals(
		numeric.Parse(row.Price),
		numeric.Parse(row.Quantity),
		numeric.Parse(row.Discount),
		optionalRate(row.TaxGST),
		optionalRate(row.TaxPST),
		s.mode,
		s.taxesDisabled,
	)
}

func (s *Sheet) renumber() {
	for i, row := range s.rows {
		row.Position = i + 1
	}
}

func optionalRate(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v := numeric.Parse(raw)
	return &v
}
