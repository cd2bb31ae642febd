package service

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/invoicing/internal/config"
	invoicedomain "github.com/smallbiznis/invoicing/internal/invoice/domain"
	"github.com/smallbiznis/invoicing/internal/tax"
)

func fptr(v float64) *float64 { return &v }

func newTestService(t *testing.T, settings config.BillingSettings) (invoicedomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Billing: config.NewStaticBillingSettingsHolder(settings),
	})
	return svc, db
}

func exclusiveSettings() config.BillingSettings {
	return config.BillingSettings{
		TaxMode:         string(tax.ModeExclusive),
		DefaultCurrency: "USD",
	}
}

var invoiceSeq int

func createInvoice(t *testing.T, svc invoicedomain.Service, lines ...invoicedomain.LineInput) *invoicedomain.Invoice {
	t.Helper()
	invoiceSeq++
	inv, err := svc.CreateInvoice(context.Background(), invoicedomain.CreateInvoiceRequest{
		Number: fmt.Sprintf("TST-%s-%04d", t.Name(), invoiceSeq),
		Lines:  lines,
	})
	require.NoError(t, err)
	return inv
}

// sumGrandTotals recomputes the aggregate independently of the service.
func sumGrandTotals(t *testing.T, db *gorm.DB, invoiceID snowflake.ID, mode tax.Mode) float64 {
	t.Helper()
	var lines []*invoicedomain.InvoiceLine
	require.NoError(t, db.Where("invoice_id = ?", invoiceID).Find(&lines).Error)
	var sum float64
	for _, line := range lines {
		sum += line.GrandTotal(mode, false)
	}
	return sum
}

func storedAmount(t *testing.T, db *gorm.DB, invoiceID snowflake.ID) float64 {
	t.Helper()
	var inv invoicedomain.Invoice
	require.NoError(t, db.First(&inv, "id = ?", invoiceID).Error)
	return inv.Amount
}

func positions(t *testing.T, db *gorm.DB, invoiceID snowflake.ID) []int {
	t.Helper()
	var lines []*invoicedomain.InvoiceLine
	require.NoError(t, db.Where("invoice_id = ?", invoiceID).Order("position ASC").Find(&lines).Error)
	out := make([]int, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.Position)
	}
	return out
}

func TestCreateInvoice_ComputesAmountBeforeInsert(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())

	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "consulting", Price: "100", Quantity: "2", Discount: fptr(10), TaxGST: fptr(5), TaxPST: fptr(2)},
		invoicedomain.LineInput{Description: "hosting", Price: "25", Quantity: "4"},
	)

	assert.InDelta(t, 292.60, inv.Amount, 1e-9)
	assert.Equal(t, []int{1, 2}, positions(t, db, inv.ID))
	assert.InDelta(t, 292.60, storedAmount(t, db, inv.ID), 1e-9)
	assert.Equal(t, "USD", inv.Currency)
}

func TestCreateInvoice_RejectsInvalidLineWithoutPersisting(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())

	_, err := svc.CreateInvoice(context.Background(), invoicedomain.CreateInvoiceRequest{
		Number: "TST-invalid-create",
		Lines: []invoicedomain.LineInput{
			{Description: "ok", Price: "10", Quantity: "1"},
			{Description: "bad", Price: "abc", Quantity: "1"},
		},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrPriceInvalid)

	var count int64
	require.NoError(t, db.Model(&invoicedomain.Invoice{}).Where("number = ?", "TST-invalid-create").Count(&count).Error)
	assert.Zero(t, count)
}

func TestAddLine_AppendsAndRecalculates(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "10", Quantity: "1"},
	)

	line, err := svc.AddLine(context.Background(), inv.ID, invoicedomain.LineInput{
		Description: "b", Price: "12,5", Quantity: "2",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, line.Position)
	assert.InDelta(t, 12.5, line.Price, 1e-9)
	assert.InDelta(t, 35.0, storedAmount(t, db, inv.ID), 1e-9)
}

func TestAddLine_AtPositionShiftsSubsequent(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "first", Price: "1", Quantity: "1"},
		invoicedomain.LineInput{Description: "second", Price: "1", Quantity: "1"},
	)

	pos := 1
	line, err := svc.AddLine(context.Background(), inv.ID, invoicedomain.LineInput{
		Description: "inserted", Price: "1", Quantity: "1", Position: &pos,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, line.Position)

	lines, err := svc.ListLines(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "inserted", lines[0].Description)
	assert.Equal(t, "first", lines[1].Description)
	assert.Equal(t, "second", lines[2].Description)
	assert.Equal(t, []int{1, 2, 3}, positions(t, db, inv.ID))
}

func TestAddLine_ValidationFailureLeavesAmountUntouched(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "10", Quantity: "1"},
	)
	before := storedAmount(t, db, inv.ID)

	_, err := svc.AddLine(context.Background(), inv.ID, invoicedomain.LineInput{
		Price: "10", Quantity: "1",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrDescriptionRequired)
	assert.Equal(t, before, storedAmount(t, db, inv.ID))
}

func TestAddLine_NonFinitePriceRejected(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "10", Quantity: "1"},
	)

	for _, raw := range []string{"Inf", "+Inf", "NaN", "Infinity"} {
		_, err := svc.AddLine(context.Background(), inv.ID, invoicedomain.LineInput{
			Description: "bad", Price: raw, Quantity: "1",
		})
		assert.ErrorIs(t, err, invoicedomain.ErrPriceInvalid, raw)
	}

	amount := storedAmount(t, db, inv.ID)
	assert.InDelta(t, 10.0, amount, 1e-9)
	assert.False(t, math.IsNaN(amount) || math.IsInf(amount, 0))
}

func TestUpdateLine_RecalculatesAggregate(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "100", Quantity: "2"},
	)

	price := "150"
	_, err := svc.UpdateLine(context.Background(), inv.ID, inv.Lines[0].ID, invoicedomain.UpdateLineInput{
		Price: &price,
	})
	require.NoError(t, err)

	assert.InDelta(t, 300.0, storedAmount(t, db, inv.ID), 1e-9)
}

func TestUpdateLine_CommaPriceNormalized(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "1", Quantity: "1"},
	)

	price := "12,5"
	line, err := svc.UpdateLine(context.Background(), inv.ID, inv.Lines[0].ID, invoicedomain.UpdateLineInput{
		Price: &price,
	})
	require.NoError(t, err)
	assert.InDelta(t, 12.5, line.Price, 1e-9)
	assert.InDelta(t, 12.5, storedAmount(t, db, inv.ID), 1e-9)
}

func TestUpdateLine_MalformedPriceRejected(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "10", Quantity: "1"},
	)

	bad := "12..5x"
	_, err := svc.UpdateLine(context.Background(), inv.ID, inv.Lines[0].ID, invoicedomain.UpdateLineInput{
		Price: &bad,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrPriceInvalid)
	assert.InDelta(t, 10.0, storedAmount(t, db, inv.ID), 1e-9)
}

func TestUpdateLine_ClearTaxRate(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "100", Quantity: "1", TaxGST: fptr(5), TaxPST: fptr(2)},
	)
	require.InDelta(t, 107.0, storedAmount(t, db, inv.ID), 1e-9)

	line, err := svc.UpdateLine(context.Background(), inv.ID, inv.Lines[0].ID, invoicedomain.UpdateLineInput{
		ClearTaxGST: true,
	})
	require.NoError(t, err)

	assert.Nil(t, line.TaxGST)
	assert.Equal(t, "", line.TaxGSTString())
	assert.Equal(t, "2.000%", line.TaxPSTString())
	assert.InDelta(t, 102.0, storedAmount(t, db, inv.ID), 1e-9)
}

func TestUpdateLine_MovePositionRenumbers(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "1", Quantity: "1"},
		invoicedomain.LineInput{Description: "b", Price: "1", Quantity: "1"},
		invoicedomain.LineInput{Description: "c", Price: "1", Quantity: "1"},
	)

	pos := 1
	_, err := svc.UpdateLine(context.Background(), inv.ID, inv.Lines[2].ID, invoicedomain.UpdateLineInput{
		Position: &pos,
	})
	require.NoError(t, err)

	lines, err := svc.ListLines(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", lines[0].Description)
	assert.Equal(t, "a", lines[1].Description)
	assert.Equal(t, "b", lines[2].Description)
	assert.Equal(t, []int{1, 2, 3}, positions(t, db, inv.ID))
}

func TestDeleteLine_ClosesGapAndRecalculates(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "10", Quantity: "1"},
		invoicedomain.LineInput{Description: "b", Price: "20", Quantity: "1"},
		invoicedomain.LineInput{Description: "c", Price: "30", Quantity: "1"},
	)

	require.NoError(t, svc.DeleteLine(context.Background(), inv.ID, inv.Lines[1].ID))

	lines, err := svc.ListLines(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].Description)
	assert.Equal(t, 1, lines[0].Position)
	assert.Equal(t, "c", lines[1].Description)
	assert.Equal(t, 2, lines[1].Position)
	assert.InDelta(t, 40.0, storedAmount(t, db, inv.ID), 1e-9)
}

func TestDeleteLine_LastLineYieldsZeroAmount(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "only", Price: "10", Quantity: "1"},
	)

	require.NoError(t, svc.DeleteLine(context.Background(), inv.ID, inv.Lines[0].ID))

	lines, err := svc.ListLines(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Zero(t, storedAmount(t, db, inv.ID))
}

func TestReorder_AppliesPermutation(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "1", Quantity: "1"},
		invoicedomain.LineInput{Description: "b", Price: "1", Quantity: "1"},
		invoicedomain.LineInput{Description: "c", Price: "1", Quantity: "1"},
	)

	order := []snowflake.ID{inv.Lines[2].ID, inv.Lines[0].ID, inv.Lines[1].ID}
	require.NoError(t, svc.Reorder(context.Background(), inv.ID, order))

	lines, err := svc.ListLines(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", lines[0].Description)
	assert.Equal(t, "a", lines[1].Description)
	assert.Equal(t, "b", lines[2].Description)
	assert.Equal(t, []int{1, 2, 3}, positions(t, db, inv.ID))
}

func TestReorder_RejectsPartialPermutation(t *testing.T) {
	svc, _ := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "1", Quantity: "1"},
		invoicedomain.LineInput{Description: "b", Price: "1", Quantity: "1"},
	)

	err := svc.Reorder(context.Background(), inv.ID, []snowflake.ID{inv.Lines[0].ID})
	assert.Error(t, err)
}

func TestRecalculateAmount_MatchesIndependentSum(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "99,5", Quantity: "3", TaxGST: fptr(5)},
		invoicedomain.LineInput{Description: "b", Price: "10", Quantity: "-1"},
	)

	amount, err := svc.RecalculateAmount(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.InDelta(t, sumGrandTotals(t, db, inv.ID, tax.ModeExclusive), amount, 1e-9)
}

func TestRecalculateAmount_Idempotent(t *testing.T) {
	svc, _ := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "33,33", Quantity: "3", TaxGST: fptr(7), TaxPST: fptr(8)},
	)

	first, err := svc.RecalculateAmount(context.Background(), inv.ID)
	require.NoError(t, err)
	second, err := svc.RecalculateAmount(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInclusiveMode_AggregateUsesSubtotals(t *testing.T) {
	svc, db := newTestService(t, config.BillingSettings{
		TaxMode:         string(tax.ModeInclusive),
		DefaultCurrency: "USD",
	})
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "110", Quantity: "1", TaxGST: fptr(10)},
	)

	// The line amount is already tax-inclusive; tax is informational.
	assert.InDelta(t, 110.0, storedAmount(t, db, inv.ID), 1e-9)
}

func TestComputeLineTotal_Pure(t *testing.T) {
	svc, _ := newTestService(t, exclusiveSettings())

	totals := svc.ComputeLineTotal(&invoicedomain.InvoiceLine{
		Price: 100, Quantity: 2, Discount: 10, TaxGST: fptr(5), TaxPST: fptr(2),
	})
	assert.InDelta(t, 180.00, totals.Subtotal, 1e-9)
	assert.InDelta(t, 9.00, totals.TaxGST, 1e-9)
	assert.InDelta(t, 3.60, totals.TaxPST, 1e-9)
	assert.InDelta(t, 192.60, totals.GrandTotal, 1e-9)
}

func TestGetInvoice_NotFound(t *testing.T) {
	svc, _ := newTestService(t, exclusiveSettings())
	_, err := svc.GetInvoice(context.Background(), snowflake.ID(424242))
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestDeleteInvoice_RemovesLines(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "1", Quantity: "1"},
	)

	require.NoError(t, svc.DeleteInvoice(context.Background(), inv.ID))

	var count int64
	require.NoError(t, db.Model(&invoicedomain.InvoiceLine{}).Where("invoice_id = ?", inv.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLoadLines_AbortsOnConcurrentMutation(t *testing.T) {
	iface, db := newTestService(t, exclusiveSettings())
	svc := iface.(*Service)
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "10", Quantity: "1"},
		invoicedomain.LineInput{Description: "b", Price: "20", Quantity: "1"},
	)

	// A writer slipping in between the line read and the count must surface
	// as a consistency failure, never as a short aggregate.
	injected := false
	err := db.Callback().Query().After("gorm:query").Register("late_line_insert", func(tx *gorm.DB) {
		if injected {
			return
		}
		if _, ok := tx.Statement.Dest.(*[]*invoicedomain.InvoiceLine); !ok {
			return
		}
		injected = true
		extra := &invoicedomain.InvoiceLine{
			ID:          snowflake.ID(999001),
			InvoiceID:   inv.ID,
			Description: "late",
			Price:       1,
			Quantity:    1,
			Position:    3,
			CustomField: datatypes.JSONMap{},
		}
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Create(extra).Error)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Callback().Query().Remove("late_line_insert") })

	_, err = svc.loadLines(context.Background(), db, inv.ID)
	require.True(t, injected)
	assert.ErrorIs(t, err, invoicedomain.ErrIncompleteLineSet)
}

func TestAggregateProperty_AfterMutationSequence(t *testing.T) {
	svc, db := newTestService(t, exclusiveSettings())
	inv := createInvoice(t, svc,
		invoicedomain.LineInput{Description: "a", Price: "10", Quantity: "2", TaxGST: fptr(5)},
	)

	ctx := context.Background()
	lineB, err := svc.AddLine(ctx, inv.ID, invoicedomain.LineInput{Description: "b", Price: "7,25", Quantity: "4", TaxPST: fptr(2)})
	require.NoError(t, err)

	q := "3"
	_, err = svc.UpdateLine(ctx, inv.ID, lineB.ID, invoicedomain.UpdateLineInput{Quantity: &q})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLine(ctx, inv.ID, inv.Lines[0].ID))

	assert.InDelta(t, sumGrandTotals(t, db, inv.ID, tax.ModeExclusive), storedAmount(t, db, inv.ID), 1e-9)
	assert.Equal(t, []int{1}, positions(t, db, inv.ID))
}
