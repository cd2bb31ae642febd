package domain

import "errors"

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrLineNotFound    = errors.New("line_not_found")
	ErrDuplicateNumber = errors.New("duplicate_invoice_number")

	// Field validation. A failed validation rejects the mutation before any
	// aggregate recompute runs.
	ErrDescriptionRequired = errors.New("description_required")
	ErrPriceRequired       = errors.New("price_required")
	ErrPriceInvalid        = errors.New("price_invalid")
	ErrPriceNegative       = errors.New("price_negative")
	ErrQuantityRequired    = errors.New("quantity_required")
	ErrQuantityInvalid     = errors.New("quantity_invalid")
	ErrDiscountInvalid     = errors.New("discount_invalid")

	// ErrIncompleteLineSet is fatal to the running mutation: the line set
	// could not be fully loaded, so no aggregate may be committed.
	ErrIncompleteLineSet = errors.New("incomplete_line_set")
)
