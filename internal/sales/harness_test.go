package sales

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/internal/clients"
	"github.com/angelmondragon/gemtrade-backend/internal/inventory"
	"github.com/angelmondragon/gemtrade-backend/internal/ledger"
	"github.com/angelmondragon/gemtrade-backend/internal/resolver"
	"github.com/angelmondragon/gemtrade-backend/pkg/db"
	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/metrics"
	"github.com/angelmondragon/gemtrade-backend/pkg/outbox"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

type harness struct {
	db     *gorm.DB
	svc    Service
	reg    *prometheus.Registry
	client *models.Client
	ledger *flakyLedger
	stock  *stockFaults
	repo   *faultyRepo
	outbox *outbox.Repository
}

func newHarness(t *testing.T, transactional bool) *harness {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:sales_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Client{},
		&models.InventoryItem{},
		&models.InventoryMovement{},
		&models.Sale{},
		&models.SaleLineItem{},
		&models.OutboxEvent{},
	))

	reg := prometheus.NewRegistry()
	m := metrics.NewSaleMetrics(reg)
	logg := logger.Nop()

	res, err := resolver.New(resolver.NewRepository(conn), logg, m)
	require.NoError(t, err)
	stock := &stockFaults{}
	adj, err := ledger.NewAdjuster(ledger.AdjusterParams{
		Repo:    &faultyStock{Repository: ledger.NewRepository(conn), faults: stock},
		Logger:  logg,
		Metrics: m,
	})
	require.NoError(t, err)

	flaky := &flakyLedger{inner: adj}
	faulty := &faultyRepo{Repository: NewRepository(conn), faults: &repoFaults{}}
	outboxRepo := outbox.NewRepository(conn)

	svc, err := NewService(ServiceParams{
		Repo:          faulty,
		Resolver:      res,
		Ledger:        flaky,
		Inventory:     inventory.NewRepository(conn),
		Clients:       clients.NewRepository(conn),
		Outbox:        outbox.NewService(outboxRepo, logg),
		Codes:         NewCodeGenerator("SL", nil, logg),
		Tx:            db.Wrap(conn),
		Logger:        logg,
		Metrics:       m,
		Transactional: transactional,
	})
	require.NoError(t, err)

	client := &models.Client{Name: "Meera Jewels", Company: "Meera Jewels Pvt Ltd", City: "Jaipur", State: "Rajasthan"}
	require.NoError(t, conn.Create(client).Error)

	return &harness{db: conn, svc: svc, reg: reg, client: client, ledger: flaky, stock: stock, repo: faulty, outbox: outboxRepo}
}

func (h *harness) seedStone(t *testing.T, code, stoneType, carat, price string, cost string, qty int) *models.InventoryItem {
	t.Helper()
	item := &models.InventoryItem{
		GemCode:       code,
		StoneType:     stoneType,
		Origin:        "Burma",
		Grade:         "AAA",
		Carat:         decimal.RequireFromString(carat),
		PricePerCarat: decimal.RequireFromString(price),
		Quantity:      qty,
	}
	if cost != "" {
		item.CostPerCarat = decimal.NewNullDecimal(decimal.RequireFromString(cost))
	}
	require.NoError(t, h.db.Create(item).Error)
	return item
}

func (h *harness) quantity(t *testing.T, id uuid.UUID) (int, bool) {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, h.db.First(&item, "id = ?", id).Error)
	return item.Quantity, item.IsAvailable
}

func (h *harness) countSales(t *testing.T) (sales, lines int64) {
	t.Helper()
	require.NoError(t, h.db.Model(&models.Sale{}).Count(&sales).Error)
	require.NoError(t, h.db.Model(&models.SaleLineItem{}).Count(&lines).Error)
	return sales, lines
}

func (h *harness) events(t *testing.T) []enums.OutboxEventType {
	t.Helper()
	rows, err := h.outbox.FetchUnpublishedForPublish(nil, 100, 5)
	require.NoError(t, err)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func (h *harness) draft(lines ...LineDraft) SaleDraft {
	return SaleDraft{
		ClientID:      h.client.ID,
		PaymentStatus: enums.PaymentStatusUnpaid,
		Discount:      decimal.Zero,
		Lines:         lines,
	}
}

func line(ref string, qty int, carat, price string) LineDraft {
	return LineDraft{
		StoneRef:      ref,
		Quantity:      qty,
		Carat:         decimal.RequireFromString(carat),
		PricePerCarat: decimal.RequireFromString(price),
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for k, v := range labels {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == k && lp.GetValue() == v {
						found = true
					}
				}
				if !found {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

var errInjected = errors.New("injected failure")

// flakyLedger fails the failOn-th forward delta. Compensating deltas fail
// when failReversals is set. before, when set, runs ahead of every delta
// that reaches the real ledger.
type flakyLedger struct {
	inner         ledger.Adjuster
	failOn        int
	failReversals bool
	before        func(tx *gorm.DB, delta ledger.Delta)

	mu    sync.Mutex
	calls int
}

func (f *flakyLedger) ApplyDelta(ctx context.Context, tx *gorm.DB, delta ledger.Delta) (*ledger.Result, error) {
	f.mu.Lock()
	fail := false
	if delta.Type == enums.MovementTypeCompensation {
		fail = f.failReversals
	} else {
		f.calls++
		fail = f.failOn > 0 && f.calls == f.failOn
	}
	before := f.before
	f.mu.Unlock()

	if fail {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInventoryUpdateFailed, errInjected, "write inventory quantity").
			WithDetails(map[string]any{"inventory_item_id": delta.ItemID.String(), "delta": delta.Quantity})
	}
	if before != nil {
		before(tx, delta)
	}
	return f.inner.ApplyDelta(ctx, tx, delta)
}

func (f *flakyLedger) ListMovements(ctx context.Context, itemID uuid.UUID, params pagination.Params) (*ledger.MovementList, error) {
	return f.inner.ListMovements(ctx, itemID, params)
}

// stockFaults fails movement inserts of one type after the quantity write
// they belong to has gone through.
type stockFaults struct {
	mu            sync.Mutex
	failMovements enums.MovementType
}

func (f *stockFaults) failsFor(t enums.MovementType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failMovements != "" && f.failMovements == t
}

// faultyStock wraps the real ledger store, including the transactions it
// opens, and injects movement failures.
type faultyStock struct {
	ledger.Repository
	faults *stockFaults
}

func (r *faultyStock) WithTx(tx *gorm.DB) ledger.Repository {
	return &faultyStock{Repository: r.Repository.WithTx(tx), faults: r.faults}
}

func (r *faultyStock) Atomic(ctx context.Context, fn func(ledger.Repository) error) error {
	return r.Repository.Atomic(ctx, func(inner ledger.Repository) error {
		return fn(&faultyStock{Repository: inner, faults: r.faults})
	})
}

func (r *faultyStock) CreateMovement(ctx context.Context, m *models.InventoryMovement) error {
	if r.faults.failsFor(m.Type) {
		return errInjected
	}
	return r.Repository.CreateMovement(ctx, m)
}

type repoFaults struct {
	insertLineItems bool
	updateSale      bool
	deleteSale      bool
}

// faultyRepo injects write failures into the sale store.
type faultyRepo struct {
	Repository
	faults *repoFaults
}

func (r *faultyRepo) WithTx(tx *gorm.DB) Repository {
	return &faultyRepo{Repository: r.Repository.WithTx(tx), faults: r.faults}
}

func (r *faultyRepo) InsertLineItems(ctx context.Context, items []models.SaleLineItem) error {
	if r.faults.insertLineItems {
		r.faults.insertLineItems = false
		return errInjected
	}
	return r.Repository.InsertLineItems(ctx, items)
}

func (r *faultyRepo) UpdateSale(ctx context.Context, sale *models.Sale) error {
	if r.faults.updateSale {
		r.faults.updateSale = false
		return errInjected
	}
	return r.Repository.UpdateSale(ctx, sale)
}

func (r *faultyRepo) DeleteSale(ctx context.Context, saleID uuid.UUID) error {
	if r.faults.deleteSale {
		r.faults.deleteSale = false
		return errInjected
	}
	return r.Repository.DeleteSale(ctx, saleID)
}
