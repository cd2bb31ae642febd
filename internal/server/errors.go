package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	invoicedomain "github.com/smallbiznis/invoicing/internal/invoice/domain"
	"github.com/smallbiznis/invoicing/internal/ordering"
	"github.com/smallbiznis/invoicing/internal/preview"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

// fieldErrors maps the domain's validation sentinels to field-level
// payloads. A mutation that fails one of these never reached the aggregate
// recompute.
var fieldErrors = map[error]ValidationError{
	invoicedomain.ErrDescriptionRequired: {Field: "description", Code: "description_required", Message: "description is required when no product is set"},
	invoicedomain.ErrPriceRequired:       {Field: "price", Code: "price_required", Message: "price is required"},
	invoicedomain.ErrPriceInvalid:        {Field: "price", Code: "price_invalid", Message: "price must be numeric"},
	invoicedomain.ErrPriceNegative:       {Field: "price", Code: "price_negative", Message: "price cannot be negative"},
	invoicedomain.ErrQuantityRequired:    {Field: "quantity", Code: "quantity_required", Message: "quantity is required"},
	invoicedomain.ErrQuantityInvalid:     {Field: "quantity", Code: "quantity_invalid", Message: "quantity must be numeric"},
	invoicedomain.ErrDiscountInvalid:     {Field: "discount", Code: "discount_invalid", Message: "discount must be between 0 and 100"},
	ordering.ErrOrderMismatch:            {Field: "order", Code: "order_mismatch", Message: "order must be a full permutation of the invoice's line ids"},
	ordering.ErrUnknownID:                {Field: "order", Code: "unknown_line", Message: "order references an unknown line"},
	preview.ErrRowOutOfRange:             {Field: "row", Code: "row_out_of_range", Message: "row index out of range"},
	preview.ErrUnknownField:              {Field: "field", Code: "unknown_field", Message: "unknown field"},
	preview.ErrBadPermutation:            {Field: "order", Code: "order_mismatch", Message: "order must be a full permutation of the sheet's rows"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	for sentinel, field := range fieldErrors {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors:  []ValidationError{field},
			}
		}
	}

	switch {
	case errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, invoicedomain.ErrLineNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, invoicedomain.ErrDuplicateNumber):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "invoice number already exists",
		}
	case errors.Is(err, invoicedomain.ErrIncompleteLineSet):
		return http.StatusInternalServerError, errorPayload{
			Type:    "consistency_failure",
			Message: "invoice line set could not be fully loaded",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
