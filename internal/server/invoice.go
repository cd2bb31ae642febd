package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	invoicedomain "github.com/smallbiznis/invoicing/internal/invoice/domain"
)

type lineView struct {
	*invoicedomain.InvoiceLine
	Totals          invoicedomain.LineTotals `json:"totals"`
	Currency        string                   `json:"currency"`
	DiscountDisplay string                   `json:"discount_display"`
	TaxGSTDisplay   string                   `json:"tax_gst_display"`
	TaxPSTDisplay   string                   `json:"tax_pst_display"`
}

type invoiceView struct {
	*invoicedomain.Invoice
	Lines []lineView `json:"lines"`
}

func (s *Server) lineView(currency string, line *invoicedomain.InvoiceLine) lineView {
	return lineView{
		InvoiceLine:     line,
		Totals:          s.invoiceSvc.ComputeLineTotal(line),
		Currency:        currency,
		DiscountDisplay: line.DiscountString(),
		TaxGSTDisplay:   line.TaxGSTString(),
		TaxPSTDisplay:   line.TaxPSTString(),
	}
}

func (s *Server) invoiceView(inv *invoicedomain.Invoice) invoiceView {
	view := invoiceView{Invoice: inv, Lines: make([]lineView, 0, len(inv.Lines))}
	for _, line := range inv.Lines {
		view.Lines = append(view.Lines, s.lineView(inv.Currency, line))
	}
	return view
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inv, err := s.invoiceSvc.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": s.invoiceView(inv)})
}

func (s *Server) GetInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.invoiceView(inv)})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.invoiceSvc.DeleteInvoice(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RecalculateInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	amount, err := s.invoiceSvc.RecalculateAmount(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"amount": amount}})
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, ErrInvalidRequest
	}
	return id, nil
}
