package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	invoicedomain "github.com/smallbiznis/invoicing/internal/invoice/domain"
)

func (s *Server) ListLines(c *gin.Context) {
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

	views := make([]lineView, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		views = append(views, s.lineView(inv.Currency, line))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (s *Server) AddLine(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req invoicedomain.LineInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inv, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	line, err := s.invoiceSvc.AddLine(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": s.lineView(inv.Currency, line)})
}

func (s *Server) UpdateLine(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	lineID, err := parseID(c.Param("line_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req invoicedomain.UpdateLineInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inv, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	line, err := s.invoiceSvc.UpdateLine(c.Request.Context(), id, lineID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.lineView(inv.Currency, line)})
}

func (s *Server) DeleteLine(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	lineID, err := parseID(c.Param("line_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.invoiceSvc.DeleteLine(c.Request.Context(), id, lineID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type reorderRequest struct {
	Order []string `json:"order"`
}

func (s *Server) ReorderLines(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	order := make([]snowflake.ID, 0, len(req.Order))
	for _, raw := range req.Order {
		lineID, err := parseID(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		order = append(order, lineID)
	}

	if err := s.invoiceSvc.Reorder(c.Request.Context(), id, order); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
