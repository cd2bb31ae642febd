// Package service implements the invoicing core operations: line lifecycle,
// position ordering, and the aggregate recalculation that keeps an invoice's
// amount equal to the sum of its lines.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/invoicing/internal/config"
	invoicedomain "github.com/smallbiznis/invoicing/internal/invoice/domain"
	"github.com/smallbiznis/invoicing/internal/numeric"
	"github.com/smallbiznis/invoicing/internal/ordering"
	"github.com/smallbiznis/invoicing/pkg/db"
	"github.com/smallbiznis/invoicing/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Billing *config.BillingSettingsHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	billing *config.BillingSettingsHolder

	invoices repository.Repository[invoicedomain.Invoice]
	lines    repository.Repository[invoicedomain.InvoiceLine]
}

var _ invoicedomain.Service = (*Service)(nil)

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("invoice.service"),
		genID:   p.GenID,
		billing: p.Billing,

		invoices: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		lines:    repository.ProvideStore[invoicedomain.InvoiceLine](p.DB),
	}
}

func (s *Service) CreateInvoice(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	settings := s.billing.Get()

	for _, in := range req.Lines {
		if err := in.Validate(); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	inv := &invoicedomain.Invoice{
		ID:        s.genID.Generate(),
		Number:    strings.TrimSpace(req.Number),
		Currency:  strings.TrimSpace(req.Currency),
		Status:    invoicedomain.InvoiceStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if inv.Number == "" {
		inv.Number = fmt.Sprintf("INV-%s", inv.ID.String())
	}
	if inv.Currency == "" {
		inv.Currency = settings.DefaultCurrency
	}

	for i, in := range req.Lines {
		line := s.materializeLine(inv.ID, in, now)
		line.Position = i + 1
		inv.Lines = append(inv.Lines, line)
	}

	// The invoice is not durable yet: the aggregate is computed in memory
	// and written as part of the invoice's own insert.
	inv.Amount = inv.CalculateAmount(settings.Mode(), settings.DisableTaxes)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.invoices.WithTrx(tx).Create(ctx, inv); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return invoicedomain.ErrDuplicateNumber
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("number", inv.Number),
		zap.Int("lines", len(inv.Lines)),
		zap.Float64("amount", inv.Amount),
	)
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.invoices.FindOne(ctx, &invoicedomain.Invoice{ID: id})
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	lines, err := s.loadLines(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).
			Where("invoice_id = ?", inv.ID).
			Delete(&invoicedomain.InvoiceLine{}).Error; err != nil {
			return err
		}
		return s.invoices.WithTrx(tx).Delete(ctx, int64(inv.ID))
	})
}

func (s *Service) AddLine(ctx context.Context, invoiceID snowflake.ID, in invoicedomain.LineInput) (*invoicedomain.InvoiceLine, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	line := s.materializeLine(invoiceID, in, time.Now().UTC())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		lines, err := s.loadLines(ctx, tx, inv.ID)
		if err != nil {
			return err
		}

		if in.Position != nil {
			seq := ordering.InsertAt(lines, line, *in.Position)
			if err := s.persistPositions(ctx, tx, seq, line.ID); err != nil {
				return err
			}
		} else {
			ordering.Append(lines, line)
		}

		if err := s.lines.WithTrx(tx).Create(ctx, line); err != nil {
			return err
		}
		_, err = s.recalculate(ctx, tx, inv)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("line added",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("line_id", line.ID.String()),
		zap.Int("position", line.Position),
	)
	return line, nil
}

func (s *Service) UpdateLine(ctx context.Context, invoiceID, lineID snowflake.ID, in invoicedomain.UpdateLineInput) (*invoicedomain.InvoiceLine, error) {
	var updated *invoicedomain.InvoiceLine

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		line, err := s.lines.WithTrx(tx).FindOne(ctx, &invoicedomain.InvoiceLine{ID: lineID, InvoiceID: inv.ID})
		if err != nil {
			return err
		}
		if line == nil {
			return invoicedomain.ErrLineNotFound
		}

		if err := applyLineUpdate(line, in); err != nil {
			return err
		}
		line.UpdatedAt = time.Now().UTC()

		if err := s.lines.WithTrx(tx).BatchUpdate(ctx, []*invoicedomain.InvoiceLine{line}); err != nil {
			return err
		}

		if in.Position != nil {
			if err := s.moveLine(ctx, tx, inv.ID, line, *in.Position); err != nil {
				return err
			}
		}

		if _, err := s.recalculate(ctx, tx, inv); err != nil {
			return err
		}
		updated = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteLine(ctx context.Context, invoiceID, lineID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		line, err := s.lines.WithTrx(tx).FindOne(ctx, &invoicedomain.InvoiceLine{ID: lineID, InvoiceID: inv.ID})
		if err != nil {
			return err
		}
		if line == nil {
			return invoicedomain.ErrLineNotFound
		}

		if err := s.lines.WithTrx(tx).Delete(ctx, int64(line.ID)); err != nil {
			return err
		}

		// The removed line is already detached here, so it neither keeps a
		// position nor contributes to the new aggregate.
		remaining, err := s.loadLines(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		ordering.Renumber(remaining)
		if err := s.persistPositions(ctx, tx, remaining, 0); err != nil {
			return err
		}

		_, err = s.recalculate(ctx, tx, inv)
		return err
	})
}

func (s *Service) ListLines(ctx context.Context, invoiceID snowflake.ID) ([]*invoicedomain.InvoiceLine, error) {
	inv, err := s.invoices.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return s.loadLines(ctx, s.db, invoiceID)
}

func (s *Service) Reorder(ctx context.Context, invoiceID snowflake.ID, order []snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		lines, err := s.loadLines(ctx, tx, inv.ID)
		if err != nil {
			return err
		}

		seq, err := ordering.Apply(lines, order)
		if err != nil {
			return err
		}
		if err := s.persistPositions(ctx, tx, seq, 0); err != nil {
			return err
		}

		// Reordering does not change the sum, but running the recompute here
		// keeps every mutation path behind the same invariant.
		_, err = s.recalculate(ctx, tx, inv)
		return err
	})
}

func (s *Service) RecalculateAmount(ctx context.Context, invoiceID snowflake.ID) (float64, error) {
	var amount float64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		amount, err = s.recalculate(ctx, tx, inv)
		return err
	})
	return amount, err
}

func (s *Service) ComputeLineTotal(line *invoicedomain.InvoiceLine) invoicedomain.LineTotals {
	settings := s.billing.Get()
	return line.Totals(settings.Mode(), settings.DisableTaxes)
}

// lockInvoice loads the invoice row under an exclusive lock, serializing
// concurrent line mutations for the rest of the transaction.
func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.invoices.WithTrx(tx).FindOne(ctx, &invoicedomain.Invoice{ID: id}, repository.WithLockForUpdate())
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return inv, nil
}

// loadLines returns the invoice's lines in position order and refuses to
// proceed on a partial load: committing an aggregate computed from an
// incomplete line set would silently corrupt the invoice amount.
func (s *Service) loadLines(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]*invoicedomain.InvoiceLine, error) {
	lines, err := s.lines.WithTrx(tx).Find(ctx,
		&invoicedomain.InvoiceLine{InvoiceID: invoiceID},
		repository.WithOrder("position ASC"),
	)
	if err != nil {
		return nil, err
	}

	count, err := s.lines.WithTrx(tx).Count(ctx, &invoicedomain.InvoiceLine{InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	if count != int64(len(lines)) {
		return nil, invoicedomain.ErrIncompleteLineSet
	}

	// The slice order must hold even if the query's ORDER BY changes.
	ordering.Sort(lines)
	return lines, nil
}

// recalculate recomputes the aggregate from the current durable line set and
// persists it on the invoice row inside the caller's transaction.
func (s *Service) recalculate(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) (float64, error) {
	settings := s.billing.Get()

	lines, err := s.loadLines(ctx, tx, inv.ID)
	if err != nil {
		return 0, err
	}
	inv.Lines = lines
	amount := inv.CalculateAmount(settings.Mode(), settings.DisableTaxes)

	if err := s.invoices.WithTrx(tx).Update(ctx, int64(inv.ID), map[string]any{
		"amount":     amount,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return 0, err
	}
	inv.Amount = amount
	return amount, nil
}

// persistPositions saves every line in seq whose position changed. skipID
// excludes a line that is not inserted yet.
func (s *Service) persistPositions(ctx context.Context, tx *gorm.DB, seq []*invoicedomain.InvoiceLine, skipID snowflake.ID) error {
	changed := make([]*invoicedomain.InvoiceLine, 0, len(seq))
	for _, line := range seq {
		if line.ID == skipID {
			continue
		}
		changed = append(changed, line)
	}
	return s.lines.WithTrx(tx).BatchUpdate(ctx, changed)
}

// moveLine repositions an existing line and renumbers the rest.
func (s *Service) moveLine(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, line *invoicedomain.InvoiceLine, pos int) error {
	lines, err := s.loadLines(ctx, tx, invoiceID)
	if err != nil {
		return err
	}
	remaining, err := ordering.Remove(lines, line.ID)
	if err != nil {
		return err
	}
	seq := ordering.InsertAt(remaining, line, pos)
	return s.persistPositions(ctx, tx, seq, 0)
}

func (s *Service) materializeLine(invoiceID snowflake.ID, in invoicedomain.LineInput, now time.Time) *invoicedomain.InvoiceLine {
	line := &invoicedomain.InvoiceLine{
		ID:          s.genID.Generate(),
		InvoiceID:   invoiceID,
		Description: strings.TrimSpace(in.Description),
		Price:       numeric.Parse(in.Price),
		Quantity:    numeric.Parse(in.Quantity),
		TaxGST:      in.TaxGST,
		TaxPST:      in.TaxPST,
		Units:       strings.TrimSpace(in.Units),
		ProductRef:  in.ProductRef,
		CustomField: datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Discount != nil {
		line.Discount = *in.Discount
	}
	if in.CustomField != nil {
		line.CustomField = datatypes.JSONMap(in.CustomField)
	}
	return line
}

// applyLineUpdate folds a partial edit into line, revalidating the fields it
// touches and the resulting description/product pairing.
func applyLineUpdate(line *invoicedomain.InvoiceLine, in invoicedomain.UpdateLineInput) error {
	if in.Price != nil {
		if strings.TrimSpace(*in.Price) == "" {
			return invoicedomain.ErrPriceRequired
		}
		if !numeric.Valid(*in.Price) {
			return invoicedomain.ErrPriceInvalid
		}
		if numeric.Parse(*in.Price) < 0 {
			return invoicedomain.ErrPriceNegative
		}
		line.Price = numeric.Parse(*in.Price)
	}
	if in.Quantity != nil {
		if strings.TrimSpace(*in.Quantity) == "" {
			return invoicedomain.ErrQuantityRequired
		}
		if !numeric.Valid(*in.Quantity) {
			return invoicedomain.ErrQuantityInvalid
		}
		line.Quantity = numeric.Parse(*in.Quantity)
	}
	if in.Discount != nil {
		if *in.Discount < 0 || *in.Discount > 100 {
			return invoicedomain.ErrDiscountInvalid
		}
		line.Discount = *in.Discount
	}
	switch {
	case in.ClearTaxGST:
		line.TaxGST = nil
	case in.TaxGST != nil:
		line.TaxGST = in.TaxGST
	}
	switch {
	case in.ClearTaxPST:
		line.TaxPST = nil
	case in.TaxPST != nil:
		line.TaxPST = in.TaxPST
	}
	if in.Units != nil {
		line.Units = strings.TrimSpace(*in.Units)
	}
	if in.ProductRef != nil {
		line.ProductRef = in.ProductRef
	}
	if in.Description != nil {
		line.Description = strings.TrimSpace(*in.Description)
	}
	if in.CustomField != nil {
		line.CustomField = datatypes.JSONMap(in.CustomField)
	}

	if line.Description == "" && (line.ProductRef == nil || *line.ProductRef == "") {
		return invoicedomain.ErrDescriptionRequired
	}
	return nil
}
