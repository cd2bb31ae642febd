package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListUnits exposes the configured display unit list for line editors.
func (s *Server) ListUnits(c *gin.Context) {
	settings := s.billing.Get()
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"units":    settings.Units,
		"currency": settings.DefaultCurrency,
		"tax_mode": settings.TaxMode,
	}})
}
