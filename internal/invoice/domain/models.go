// Package domain contains the invoice and invoice line models plus the line
// financial formulas.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	"github.com/smallbiznis/invoicing/internal/tax"
)

// InvoiceStatus represents invoice lifecycle states. The core carries the
// status as pass-through state; no workflow logic hangs off it.
type InvoiceStatus string

const (
	InvoiceStatusDraft    InvoiceStatus = "DRAFT"
	InvoiceStatusSent     InvoiceStatus = "SENT"
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusCanceled InvoiceStatus = "CANCELED"
)

// Invoice owns an ordered set of lines and a denormalized amount kept equal
// to the sum of the lines' grand totals after every line mutation.
type Invoice struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	Number    string        `gorm:"type:text;not null;uniqueIndex" json:"number"`
	Currency  string        `gorm:"type:text;not null" json:"currency"`
	Status    InvoiceStatus `gorm:"type:text;not null;default:'DRAFT'" json:"status"`
	Amount    float64       `gorm:"type:numeric(15,2);not null;default:0" json:"amount"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Lines []*InvoiceLine `gorm:"foreignKey:InvoiceID" json:"lines,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// CalculateAmount sums the grand totals of the in-memory line set. The
// service uses it both for the authoritative recompute and for draft
// invoices that are not yet durable.
func (inv *Invoice) CalculateAmount(mode tax.Mode, taxesDisabled bool) float64 {
	var sum float64
	for _, line := range inv.Lines {
		sum += line.GrandTotal(mode, taxesDisabled)
	}
	return sum
}

// InvoiceLine is one billable row of an invoice. Price and quantity are
// stored as entered (already normalized); discount and the two tax channels
// are percent values.
type InvoiceLine struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID      `gorm:"not null;index" json:"invoice_id"`
	Description string            `gorm:"type:text" json:"description"`
	Price       float64           `gorm:"type:numeric(15,4);not null" json:"price"`
	Quantity    float64           `gorm:"type:numeric(15,4);not null" json:"quantity"`
	Discount    float64           `gorm:"type:numeric(6,2);not null;default:0" json:"discount"`
	TaxGST      *float64          `gorm:"type:numeric(6,3)" json:"tax_gst,omitempty"`
	TaxPST      *float64          `gorm:"type:numeric(6,3)" json:"tax_pst,omitempty"`
	Units       string            `gorm:"type:text" json:"units,omitempty"`
	Position    int               `gorm:"not null" json:"position"`
	ProductRef  *string           `gorm:"type:text" json:"product_ref,omitempty"`
	CustomField datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"custom_fields"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }

// SequenceID implements ordering.Positioned.
func (l *InvoiceLine) SequenceID() snowflake.ID { return l.ID }

// SequencePos implements ordering.Positioned.
func (l *InvoiceLine) SequencePos() int { return l.Position }

// SetSequencePos implements ordering.Positioned.
func (l *InvoiceLine) SetSequencePos(pos int) { l.Position = pos }
