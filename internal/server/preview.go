package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	invoicedomain "github.com/smallbiznis/invoicing/internal/invoice/domain"
	"github.com/smallbiznis/invoicing/internal/preview"
)

type previewRequest struct {
	Rows []preview.Row `json:"rows"`
	// Order optionally applies a drag-and-drop permutation of row indexes
	// before computing.
	Order []int `json:"order,omitempty"`
	// CopyPriceFrom optionally copies one row's price to all rows before
	// computing.
	CopyPriceFrom *int `json:"copy_price_from,omitempty"`
}

type previewRow struct {
	preview.Row
	Totals invoicedomain.LineTotals `json:"totals"`
}

// PreviewSheet is the stateless endpoint behind the presentation-tier
// mirror: it recomputes a submitted sheet with the authoritative formulas
// and returns per-row totals plus the page aggregate. Nothing is persisted.
func (s *Server) PreviewSheet(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	settings := s.billing.Get()
	sheet := preview.NewSheet(settings.Mode(), settings.DisableTaxes)
	for _, row := range req.Rows {
		sheet.AddRow(row)
	}

	if req.Order != nil {
		if err := sheet.Reorder(req.Order); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	if req.CopyPriceFrom != nil {
		if err := sheet.CopyPriceToAll(*req.CopyPriceFrom); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	totals, sum := sheet.Totals()
	rows := make([]previewRow, 0, len(totals))
	for i, row := range sheet.Rows() {
		rows = append(rows, previewRow{Row: *row, Totals: totals[i]})
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"rows":  rows,
		"total": sum,
	}})
}
