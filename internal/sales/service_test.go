package sales

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

var modes = []struct {
	name          string
	transactional bool
}{
	{name: "transactional", transactional: true},
	{name: "compensating", transactional: false},
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestCreateSaleConsumesStockAndComputesTax(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			h := newHarness(t, mode.transactional)
			ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)

			sale, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 3, "2.0", "10000")))
			require.NoError(t, err)

			assert.True(t, sale.TotalAmount.Equal(dec("60000")))
			assert.True(t, sale.CGST.Equal(dec("900")))
			assert.True(t, sale.SGST.Equal(dec("900")))
			assert.True(t, sale.IGST.IsZero())
			assert.True(t, sale.TotalWithTax.Equal(dec("61800")))
			assert.False(t, sale.Profit.Valid)
			assert.Regexp(t, `^SL-\d{4}-`, sale.SaleCode)
			require.Len(t, sale.Items, 1)
			assert.Equal(t, enums.MatchKindCode, sale.Items[0].MatchKind)

			qty, available := h.quantity(t, ruby.ID)
			assert.Equal(t, 2, qty)
			assert.True(t, available)
			assert.Equal(t, []enums.OutboxEventType{enums.EventSaleCreated}, h.events(t))
			assert.Equal(t, float64(1), counterValue(t, h.reg, "sale_operations_total", map[string]string{"op": "sale.create", "outcome": "ok"}))
		})
	}
}

func TestCreateSaleRejectsOversell(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			h := newHarness(t, mode.transactional)
			ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)

			_, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 6, "2.0", "10000")))
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeInsufficientInventory, typed.Code())

			details := typed.Details().(map[string]any)
			lines := details["lines"].([]map[string]any)
			require.Len(t, lines, 1)
			assert.Equal(t, "RUBY-001", lines[0]["gem_code"])
			assert.Equal(t, 6, lines[0]["requested"])
			assert.Equal(t, 5, lines[0]["available"])

			qty, _ := h.quantity(t, ruby.ID)
			assert.Equal(t, 5, qty)
			sales, items := h.countSales(t)
			assert.Zero(t, sales)
			assert.Zero(t, items)
			assert.Empty(t, h.events(t))
		})
	}
}

func TestCreateSaleAggregatesRequestsPerStone(t *testing.T) {
	h := newHarness(t, true)
	h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)

	_, err := h.svc.CreateSale(context.Background(), h.draft(
		line("RUBY-001", 3, "2.0", "10000"),
		line("ruby-001", 3, "2.0", "10000"),
	))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientInventory, typed.Code())
	lines := typed.Details().(map[string]any)["lines"].([]map[string]any)
	require.Len(t, lines, 2)
	assert.Equal(t, 6, lines[1]["requested"])
}

func TestCreateSaleReportsEveryUnknownStone(t *testing.T) {
	h := newHarness(t, true)
	h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)

	_, err := h.svc.CreateSale(context.Background(), h.draft(
		line("NOPE-1", 1, "1.0", "100"),
		line("RUBY-001", 1, "2.0", "10000"),
		line("NOPE-2", 1, "1.0", "100"),
	))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStoneNotFound, typed.Code())
	lines := typed.Details().(map[string]any)["lines"].([]map[string]any)
	require.Len(t, lines, 2)
	assert.Equal(t, 0, lines[0]["line"])
	assert.Equal(t, "NOPE-2", lines[1]["stone_ref"])

	sales, _ := h.countSales(t)
	assert.Zero(t, sales)
}

func TestCreateSaleUsesFuzzyMatchAndProfit(t *testing.T) {
	h := newHarness(t, true)
	emerald := h.seedStone(t, "EMR-777", "Emerald", "1.52", "20000", "12000", 2)

	draft := h.draft(LineDraft{StoneRef: "legacy emerald", StoneType: "Emerald", Quantity: 1, Carat: dec("1.50")})
	draft.IsOutOfState = true
	sale, err := h.svc.CreateSale(context.Background(), draft)
	require.NoError(t, err)

	require.Len(t, sale.Items, 1)
	assert.Equal(t, emerald.ID, sale.Items[0].InventoryItemID)
	assert.Equal(t, enums.MatchKindFuzzy, sale.Items[0].MatchKind)
	// 1 × 1.50 × 20000 at the stocked price.
	assert.True(t, sale.TotalAmount.Equal(dec("30000")))
	assert.True(t, sale.IGST.Equal(dec("900")))
	require.True(t, sale.Profit.Valid)
	assert.True(t, sale.Profit.Decimal.Equal(dec("12000")), sale.Profit.Decimal.String())
}

func TestCreateSaleOutOfStateWithDiscount(t *testing.T) {
	h := newHarness(t, true)
	h.seedStone(t, "SAP-100", "Sapphire", "5.0", "20000", "", 1)

	draft := h.draft(line("SAP-100", 1, "5.0", "20000"))
	draft.IsOutOfState = true
	draft.Discount = dec("10000")
	sale, err := h.svc.CreateSale(context.Background(), draft)
	require.NoError(t, err)
	assert.True(t, sale.ItemsTotal.Equal(dec("100000")))
	assert.True(t, sale.TotalAmount.Equal(dec("90000")))
	assert.True(t, sale.IGST.Equal(dec("2700")))
	assert.True(t, sale.CGST.IsZero())
	assert.True(t, sale.TotalWithTax.Equal(dec("92700")))
}

func TestCreateSaleValidatesDraft(t *testing.T) {
	h := newHarness(t, true)
	h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)

	valid := func(mutate func(*SaleDraft)) SaleDraft {
		d := h.draft(line("RUBY-001", 1, "2.0", "10000"))
		mutate(&d)
		return d
	}
	cases := map[string]SaleDraft{
		"no lines":        h.draft(),
		"zero quantity":   h.draft(line("RUBY-001", 0, "2.0", "10000")),
		"unknown client":  valid(func(d *SaleDraft) { d.ClientID = uuid.New() }),
		"bad status":      valid(func(d *SaleDraft) { d.PaymentStatus = "owed" }),
		"negative amount": valid(func(d *SaleDraft) { d.Discount = dec("-1") }),
	}
	for name, draft := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.CreateSale(context.Background(), draft)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestCreateSaleHonoursCancelledContextBeforeWrites(t *testing.T) {
	h := newHarness(t, true)
	h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.CreateSale(ctx, h.draft(line("RUBY-001", 1, "2.0", "10000")))
	require.ErrorIs(t, err, context.Canceled)
	sales, _ := h.countSales(t)
	assert.Zero(t, sales)
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			h := newHarness(t, mode.transactional)
			ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
			sale, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 3, "2.0", "10000")))
			require.NoError(t, err)

			deleted, err := h.svc.DeleteSale(context.Background(), sale.ID)
			require.NoError(t, err)
			assert.Equal(t, sale.SaleCode, deleted.SaleCode)

			qty, available := h.quantity(t, ruby.ID)
			assert.Equal(t, 5, qty)
			assert.True(t, available)
			sales, items := h.countSales(t)
			assert.Zero(t, sales)
			assert.Zero(t, items)
			assert.Equal(t, []enums.OutboxEventType{enums.EventSaleCreated, enums.EventSaleDeleted}, h.events(t))

			_, err = h.svc.DeleteSale(context.Background(), sale.ID)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
		})
	}
}

func TestUpdateSaleMatchesDeleteThenCreate(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			edited := newHarness(t, mode.transactional)
			ruby := edited.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
			emerald := edited.seedStone(t, "EMR-001", "Emerald", "1.0", "30000", "", 4)

			sale, err := edited.svc.CreateSale(context.Background(), edited.draft(line("RUBY-001", 3, "2.0", "10000")))
			require.NoError(t, err)
			next := edited.draft(line("EMR-001", 2, "1.0", "30000"), line("RUBY-001", 1, "2.0", "10000"))
			updated, err := edited.svc.UpdateSale(context.Background(), sale.ID, next)
			require.NoError(t, err)
			assert.Equal(t, sale.SaleCode, updated.SaleCode)
			assert.True(t, updated.TotalAmount.Equal(dec("80000")))
			assert.True(t, updated.TotalWithTax.Equal(dec("82400")))

			fresh := newHarness(t, mode.transactional)
			freshRuby := fresh.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
			freshEmerald := fresh.seedStone(t, "EMR-001", "Emerald", "1.0", "30000", "", 4)
			_, err = fresh.svc.CreateSale(context.Background(), fresh.draft(line("EMR-001", 2, "1.0", "30000"), line("RUBY-001", 1, "2.0", "10000")))
			require.NoError(t, err)

			gotRuby, _ := edited.quantity(t, ruby.ID)
			wantRuby, _ := fresh.quantity(t, freshRuby.ID)
			gotEmerald, _ := edited.quantity(t, emerald.ID)
			wantEmerald, _ := fresh.quantity(t, freshEmerald.ID)
			assert.Equal(t, wantRuby, gotRuby)
			assert.Equal(t, wantEmerald, gotEmerald)
			assert.Equal(t, 4, gotRuby)
			assert.Equal(t, 2, gotEmerald)

			_, items := edited.countSales(t)
			assert.Equal(t, int64(2), items)
		})
	}
}

func TestUpdateSaleValidatesAgainstRestoredStock(t *testing.T) {
	h := newHarness(t, false)
	ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
	sale, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 5, "2.0", "10000")))
	require.NoError(t, err)
	qty, available := h.quantity(t, ruby.ID)
	require.Equal(t, 0, qty)
	require.False(t, available)

	draft := h.draft(line("RUBY-001", 5, "2.0", "10000"))
	draft.PaymentStatus = enums.PaymentStatusPaid
	updated, err := h.svc.UpdateSale(context.Background(), sale.ID, draft)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, updated.PaymentStatus)

	qty, available = h.quantity(t, ruby.ID)
	assert.Equal(t, 0, qty)
	assert.False(t, available)
}

func TestUpdateSaleRejectedLeavesSaleIntact(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			h := newHarness(t, mode.transactional)
			ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
			sale, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 3, "2.0", "10000")))
			require.NoError(t, err)

			_, err = h.svc.UpdateSale(context.Background(), sale.ID, h.draft(line("RUBY-001", 6, "2.0", "10000")))
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory), "got %v", err)

			qty, _ := h.quantity(t, ruby.ID)
			assert.Equal(t, 2, qty)
			view, err := h.svc.GetSale(context.Background(), sale.ID)
			require.NoError(t, err)
			require.Len(t, view.Lines, 1)
			assert.Equal(t, 3, view.Lines[0].Quantity)
		})
	}
}

func TestAvailabilityTracksQuantityAcrossOperations(t *testing.T) {
	h := newHarness(t, false)
	ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 2)

	check := func() {
		var item models.InventoryItem
		require.NoError(t, h.db.First(&item, "id = ?", ruby.ID).Error)
		assert.Equal(t, item.Quantity > 0, item.IsAvailable)
		assert.GreaterOrEqual(t, item.Quantity, 0)
	}

	sale, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 2, "2.0", "10000")))
	require.NoError(t, err)
	check()
	_, err = h.svc.UpdateSale(context.Background(), sale.ID, h.draft(line("RUBY-001", 1, "2.0", "10000")))
	require.NoError(t, err)
	check()
	_, err = h.svc.DeleteSale(context.Background(), sale.ID)
	require.NoError(t, err)
	check()
}

func TestGetSaleBuildsView(t *testing.T) {
	h := newHarness(t, true)
	h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)
	sale, err := h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 3, "2.0", "10000")))
	require.NoError(t, err)

	view, err := h.svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.True(t, view.TotalsConsistent)
	assert.Equal(t, "Meera Jewels", view.Client.DisplayName)
	assert.Equal(t, "Jaipur, Rajasthan", view.Client.Address)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "Ruby 2.00ct · Burma · AAA", view.Lines[0].StoneName)
	assert.Equal(t, "RUBY-001", view.Lines[0].GemCode)
	assert.True(t, view.Totals.TotalWithTax.Equal(dec("61800")))

	_, err = h.svc.GetSale(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListSalesFiltersAndPaginates(t *testing.T) {
	h := newHarness(t, true)
	h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 10)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		d := h.draft(line("RUBY-001", 1, "2.0", "10000"))
		d.SaleDate = base.AddDate(0, 0, i)
		if i == 2 {
			d.PaymentStatus = enums.PaymentStatusPaid
		}
		_, err := h.svc.CreateSale(context.Background(), d)
		require.NoError(t, err)
	}

	page, err := h.svc.ListSales(context.Background(), ListSalesInput{Pagination: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].SaleDate.After(page.Items[1].SaleDate))
	require.NotEmpty(t, page.NextCursor)

	rest, err := h.svc.ListSales(context.Background(), ListSalesInput{Pagination: pagination.Params{Limit: 2, Cursor: page.NextCursor}})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)

	paid := enums.PaymentStatusPaid
	filtered, err := h.svc.ListSales(context.Background(), ListSalesInput{Filters: ListFilters{PaymentStatus: &paid, ClientID: &h.client.ID}})
	require.NoError(t, err)
	assert.Len(t, filtered.Items, 1)

	from := base.AddDate(0, 0, 1)
	ranged, err := h.svc.ListSales(context.Background(), ListSalesInput{Filters: ListFilters{From: &from}})
	require.NoError(t, err)
	assert.Len(t, ranged.Items, 2)
}

func TestConcurrentSalesCannotOversell(t *testing.T) {
	h := newHarness(t, false)
	// One connection keeps sqlite from refusing the second writer outright;
	// the two sales still interleave statement by statement.
	sqlDB, err := h.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	ruby := h.seedStone(t, "RUBY-001", "Ruby", "2.0", "10000", "", 5)

	const buyers = 2
	errs := make([]error, buyers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.svc.CreateSale(context.Background(), h.draft(line("RUBY-001", 3, "2.0", "10000")))
		}(i)
	}
	close(start)
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	require.Len(t, failed, 1, "exactly one sale must win: %v", errs)
	typed := pkgerrors.As(failed[0])
	require.NotNil(t, typed)
	assert.Contains(t, []pkgerrors.Code{pkgerrors.CodeInsufficientInventory, pkgerrors.CodeSaleCreationFailed}, typed.Code())

	qty, avail := h.quantity(t, ruby.ID)
	assert.Equal(t, 2, qty)
	assert.Equal(t, qty > 0, avail)
	sales, lines := h.countSales(t)
	assert.Equal(t, int64(1), sales)
	assert.Equal(t, int64(1), lines)

	var net int
	require.NoError(t, h.db.Model(&models.InventoryMovement{}).
		Where("inventory_item_id = ?", ruby.ID).
		Select("COALESCE(SUM(delta), 0)").Scan(&net).Error)
	assert.Equal(t, -3, net)
}
