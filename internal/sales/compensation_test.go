package sales

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/internal/ledger"
	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
)

func TestCreateSaleFailureRestoresAppliedDeltas(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			h := newHarness(t, mode.transactional)
			ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
			emerald := h.seedStone(t, "EMR-001", "Emerald", "1.0", "30000", "", 3)
			h.ledger.failOn = 2

			_, err := h.svc.CreateSale(context.Background(), h.draft(
				line("RUBY-001", 2, "2.0", "10000"),
				line("EMR-001", 1, "1.0", "30000"),
			))
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeSaleCreationFailed, typed.Code())
			details := typed.Details().(map[string]any)
			assert.Equal(t, string(pkgerrors.CodeInventoryUpdateFailed), details["cause_code"])
			assert.Equal(t, 1, details["details"].(map[string]any)["line"])

			rubyQty, rubyAvail := h.quantity(t, ruby.ID)
			emeraldQty, _ := h.quantity(t, emerald.ID)
			assert.Equal(t, 5, rubyQty)
			assert.True(t, rubyAvail)
			assert.Equal(t, 3, emeraldQty)

			sales, items := h.countSales(t)
			assert.Zero(t, sales)
			assert.Zero(t, items)
			assert.Empty(t, h.events(t))
		})
	}
}

func TestCreateSaleCompensationIsCounted(t *testing.T) {
	h := newHarness(t, false)
	h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
	h.seedStone(t, "EMR-001", "Emerald", "1.0", "30000", "", 3)
	h.ledger.failOn = 2

	_, err := h.svc.CreateSale(context.Background(), h.draft(
		line("RUBY-001", 2, "2.0", "10000"),
		line("EMR-001", 1, "1.0", "30000"),
	))
	require.Error(t, err)
	assert.Equal(t, float64(1), counterValue(t, h.reg, "sale_compensations_total", map[string]string{"op": opCreate, "result": "ok"}))
	assert.Equal(t, float64(1), counterValue(t, h.reg, "sale_operations_total", map[string]string{"op": opCreate, "outcome": "sale_creation_failed"}))
}

func TestCreateSaleLineItemFailureRemovesHeader(t *testing.T) {
	h := newHarness(t, false)
	ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
	h.repo.faults.insertLineItems = true

	_, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 2, "2.0", "10000")))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeSaleCreationFailed, typed.Code())
	assert.Equal(t, string(pkgerrors.CodePersistenceFailed), typed.Details().(map[string]any)["cause_code"])

	qty, _ := h.quantity(t, ruby.ID)
	assert.Equal(t, 5, qty)
	sales, items := h.countSales(t)
	assert.Zero(t, sales)
	assert.Zero(t, items)
}

func TestCreateSaleFailedReversalEscalates(t *testing.T) {
	h := newHarness(t, false)
	ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
	h.seedStone(t, "EMR-001", "Emerald", "1.0", "30000", "", 3)
	h.ledger.failOn = 2
	h.ledger.failReversals = true

	_, err := h.svc.CreateSale(context.Background(), h.draft(
		line("RUBY-001", 2, "2.0", "10000"),
		line("EMR-001", 1, "1.0", "30000"),
	))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeCompensationFailed, typed.Code())
	assert.False(t, pkgerrors.MetadataFor(typed.Code()).Retryable)

	details := typed.Details().(map[string]any)
	unreversed := details["unreversed"].([]map[string]any)
	require.Len(t, unreversed, 1)
	assert.Equal(t, string(stepInventory), unreversed[0]["kind"])
	assert.Equal(t, ruby.ID.String(), unreversed[0]["inventory_item_id"])
	assert.Equal(t, -2, unreversed[0]["delta"])

	// The header and lines were still removed; only the stock is off.
	qty, _ := h.quantity(t, ruby.ID)
	assert.Equal(t, 3, qty)
	sales, _ := h.countSales(t)
	assert.Zero(t, sales)
	assert.Equal(t, float64(1), counterValue(t, h.reg, "sale_compensations_total", map[string]string{"op": opCreate, "result": "failed"}))
}

func TestDeleteSaleAbortsWhenRestoreFails(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			h := newHarness(t, mode.transactional)
			ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
			emerald := h.seedStone(t, "EMR-001", "Emerald", "1.0", "30000", "", 3)
			sale, err := h.svc.CreateSale(context.Background(), h.draft(
				line("RUBY-001", 2, "2.0", "10000"),
				line("EMR-001", 1, "1.0", "30000"),
			))
			require.NoError(t, err)

			// Calls 1 and 2 were the sale itself; fail the second restore.
			h.ledger.failOn = 4
			_, err = h.svc.DeleteSale(context.Background(), sale.ID)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInventoryUpdateFailed), "got %v", err)

			rubyQty, _ := h.quantity(t, ruby.ID)
			emeraldQty, _ := h.quantity(t, emerald.ID)
			assert.Equal(t, 3, rubyQty)
			assert.Equal(t, 2, emeraldQty)
			sales, items := h.countSales(t)
			assert.Equal(t, int64(1), sales)
			assert.Equal(t, int64(2), items)
			assert.Equal(t, []enums.OutboxEventType{enums.EventSaleCreated}, h.events(t))
		})
	}
}

func TestDeleteSaleHeaderFailureReinstatesLines(t *testing.T) {
	h := newHarness(t, false)
	ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
	sale, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 2, "2.0", "10000")))
	require.NoError(t, err)

	h.repo.faults.deleteSale = true
	_, err = h.svc.DeleteSale(context.Background(), sale.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistenceFailed), "got %v", err)

	qty, _ := h.quantity(t, ruby.ID)
	assert.Equal(t, 3, qty)
	view, err := h.svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 2, view.Lines[0].Quantity)
}

func TestUpdateSaleHeaderFailureRollsBackEverything(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			h := newHarness(t, mode.transactional)
			ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
			emerald := h.seedStone(t, "EMR-001", "Emerald", "1.0", "30000", "", 3)
			sale, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 2, "2.0", "10000")))
			require.NoError(t, err)

			h.repo.faults.updateSale = true
			_, err = h.svc.UpdateSale(context.Background(), sale.ID, h.draft(line("EMR-001", 3, "1.0", "30000")))
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistenceFailed), "got %v", err)

			rubyQty, _ := h.quantity(t, ruby.ID)
			emeraldQty, emeraldAvail := h.quantity(t, emerald.ID)
			assert.Equal(t, 3, rubyQty)
			assert.Equal(t, 3, emeraldQty)
			assert.True(t, emeraldAvail)

			view, err := h.svc.GetSale(context.Background(), sale.ID)
			require.NoError(t, err)
			require.Len(t, view.Lines, 1)
			assert.Equal(t, "RUBY-001", view.Lines[0].GemCode)
			assert.True(t, view.TotalsConsistent)
			assert.True(t, view.Stored.TotalWithTax.Equal(dec("41200")))
		})
	}
}

func TestCreateSaleMovementFailureLeavesStockUntouched(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			h := newHarness(t, mode.transactional)
			ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
			h.stock.failMovements = enums.MovementTypeSale

			_, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 3, "2.0", "10000")))
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeSaleCreationFailed, typed.Code())
			assert.Equal(t, string(pkgerrors.CodeInventoryUpdateFailed), typed.Details().(map[string]any)["cause_code"])

			qty, avail := h.quantity(t, ruby.ID)
			assert.Equal(t, 5, qty)
			assert.True(t, avail)
			sales, lines := h.countSales(t)
			assert.Zero(t, sales)
			assert.Zero(t, lines)
			assert.Empty(t, h.events(t))
		})
	}
}

func TestDeleteSaleMovementFailureKeepsSale(t *testing.T) {
	h := newHarness(t, false)
	ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
	sale, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 2, "2.0", "10000")))
	require.NoError(t, err)

	h.stock.failMovements = enums.MovementTypeRestore
	_, err = h.svc.DeleteSale(context.Background(), sale.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInventoryUpdateFailed), "got %v", err)

	qty, _ := h.quantity(t, ruby.ID)
	assert.Equal(t, 3, qty)
	sales, lines := h.countSales(t)
	assert.Equal(t, int64(1), sales)
	assert.Equal(t, int64(1), lines)
}

func TestDeleteSaleClampedReversalEscalates(t *testing.T) {
	h := newHarness(t, false)
	ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
	sale, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 2, "2.0", "10000")))
	require.NoError(t, err)

	// The restore lands (3 -> 5), a manual adjustment then leaves one stone,
	// and the header delete fails. Taking the two restored stones back can
	// only move one.
	h.repo.faults.deleteSale = true
	h.ledger.before = func(_ *gorm.DB, delta ledger.Delta) {
		if delta.Type != enums.MovementTypeCompensation {
			return
		}
		require.NoError(t, h.db.Model(&models.InventoryItem{}).Where("id = ?", ruby.ID).
			Updates(map[string]any{"quantity": 1, "is_available": true}).Error)
	}

	_, err = h.svc.DeleteSale(context.Background(), sale.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeCompensationFailed, typed.Code())

	unreversed := typed.Details().(map[string]any)["unreversed"].([]map[string]any)
	require.Len(t, unreversed, 1)
	assert.Equal(t, string(stepInventory), unreversed[0]["kind"])
	assert.Equal(t, ruby.ID.String(), unreversed[0]["inventory_item_id"])
	assert.Equal(t, 2, unreversed[0]["delta"])

	qty, avail := h.quantity(t, ruby.ID)
	assert.Equal(t, 0, qty)
	assert.False(t, avail)
	assert.Equal(t, float64(1), counterValue(t, h.reg, "sale_compensations_total", map[string]string{"op": opDelete, "result": "failed"}))
}

func TestCreateSaleShortageAfterWritesIsCreationFailure(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			h := newHarness(t, mode.transactional)
			ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)

			// Another writer takes four stones between validation and the
			// stock write.
			taken := false
			h.ledger.before = func(tx *gorm.DB, delta ledger.Delta) {
				if taken || delta.Type != enums.MovementTypeSale {
					return
				}
				taken = true
				conn := h.db
				if tx != nil {
					conn = tx
				}
				require.NoError(t, conn.Model(&models.InventoryItem{}).Where("id = ?", ruby.ID).
					Updates(map[string]any{"quantity": 1, "is_available": true}).Error)
			}

			_, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 3, "2.0", "10000")))
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeSaleCreationFailed, typed.Code())
			details := typed.Details().(map[string]any)
			assert.Equal(t, string(pkgerrors.CodeInsufficientInventory), details["cause_code"])

			want := 1
			if mode.transactional {
				want = 5
			}
			qty, avail := h.quantity(t, ruby.ID)
			assert.Equal(t, want, qty)
			assert.True(t, avail)
			sales, lines := h.countSales(t)
			assert.Zero(t, sales)
			assert.Zero(t, lines)
		})
	}
}

func TestCreateSaleUpfrontShortageStaysPrecondition(t *testing.T) {
	h := newHarness(t, false)
	h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)

	_, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 6, "2.0", "10000")))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientInventory, typed.Code())
	assert.Zero(t, counterValue(t, h.reg, "sale_compensations_total", map[string]string{"op": opCreate, "result": "ok"}))
}
