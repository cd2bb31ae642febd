package domain

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/invoicing/internal/numeric"
)

// LineInput carries user-entered line fields. Price and quantity arrive as
// raw text so the numeric normalizer runs at the entity boundary, matching
// what the user typed (commas included).
type LineInput struct {
	Description string         `json:"description"`
	Price       string         `json:"price"`
	Quantity    string         `json:"quantity"`
	Discount    *float64       `json:"discount,omitempty"`
	TaxGST      *float64       `json:"tax_gst,omitempty"`
	TaxPST      *float64       `json:"tax_pst,omitempty"`
	Units       string         `json:"units,omitempty"`
	ProductRef  *string        `json:"product_ref,omitempty"`
	Position    *int           `json:"position,omitempty"`
	CustomField map[string]any `json:"custom_fields,omitempty"`
}

// Validate applies the line boundary rules. Malformed numeric text is still
// reported here even though Parse would coerce it to 0 for arithmetic.
func (in LineInput) Validate() error {
	if strings.TrimSpace(in.Description) == "" && (in.ProductRef == nil || *in.ProductRef == "") {
		return ErrDescriptionRequired
	}
	if strings.TrimSpace(in.Price) == "" {
		return ErrPriceRequired
	}
	if !numeric.Valid(in.Price) {
		return ErrPriceInvalid
	}
	if numeric.Parse(in.Price) < 0 {
		return ErrPriceNegative
	}
	if strings.TrimSpace(in.Quantity) == "" {
		return ErrQuantityRequired
	}
	if !numeric.Valid(in.Quantity) {
		return ErrQuantityInvalid
	}
	if in.Discount != nil && (*in.Discount < 0 || *in.Discount > 100) {
		return ErrDiscountInvalid
	}
	return nil
}

// UpdateLineInput carries a partial line edit; nil fields stay unchanged.
// A nil tax rate means "leave as is", so clearing a rate back to absent goes
// through the explicit clear flags.
type UpdateLineInput struct {
	Description *string        `json:"description,omitempty"`
	Price       *string        `json:"price,omitempty"`
	Quantity    *string        `json:"quantity,omitempty"`
	Discount    *float64       `json:"discount,omitempty"`
	TaxGST      *float64       `json:"tax_gst,omitempty"`
	TaxPST      *float64       `json:"tax_pst,omitempty"`
	ClearTaxGST bool           `json:"clear_tax_gst,omitempty"`
	ClearTaxPST bool           `json:"clear_tax_pst,omitempty"`
	Units       *string        `json:"units,omitempty"`
	ProductRef  *string        `json:"product_ref,omitempty"`
	Position    *int           `json:"position,omitempty"`
	CustomField map[string]any `json:"custom_fields,omitempty"`
}

// CreateInvoiceRequest creates an invoice with an optional initial line set.
// The aggregate amount of the new invoice is computed in memory and written
// with the invoice's own insert.
type CreateInvoiceRequest struct {
	Number   string      `json:"number"`
	Currency string      `json:"currency,omitempty"`
	Lines    []LineInput `json:"lines,omitempty"`
}

// Service exposes the invoicing core operations. Every line mutation leaves
// the owning invoice's amount equal to the sum of its current lines' grand
// totals before returning.
type Service interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GetInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	DeleteInvoice(ctx context.Context, id snowflake.ID) error

	AddLine(ctx context.Context, invoiceID snowflake.ID, in LineInput) (*InvoiceLine, error)
	UpdateLine(ctx context.Context, invoiceID, lineID snowflake.ID, in UpdateLineInput) (*InvoiceLine, error)
	DeleteLine(ctx context.Context, invoiceID, lineID snowflake.ID) error
	ListLines(ctx context.Context, invoiceID snowflake.ID) ([]*InvoiceLine, error)

	Reorder(ctx context.Context, invoiceID snowflake.ID, order []snowflake.ID) error
	RecalculateAmount(ctx context.Context, invoiceID snowflake.ID) (float64, error)

	// ComputeLineTotal is a pure function over the line's fields and the
	// active tax configuration.
	ComputeLineTotal(line *InvoiceLine) LineTotals
}
