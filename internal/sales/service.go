// Package sales coordinates sale writes with the inventory ledger so that
// stock, line items and computed totals never drift apart.
package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/internal/ledger"
	"github.com/angelmondragon/gemtrade-backend/internal/resolver"
	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/metrics"
	"github.com/angelmondragon/gemtrade-backend/pkg/outbox"
	"github.com/angelmondragon/gemtrade-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gemtrade-backend/pkg/tax"
)

const (
	opCreate = "sale.create"
	opUpdate = "sale.update"
	opDelete = "sale.delete"
)

// Service is the inbound contract for sale writes and reads.
type Service interface {
	CreateSale(ctx context.Context, draft SaleDraft) (*models.Sale, error)
	UpdateSale(ctx context.Context, saleID uuid.UUID, draft SaleDraft) (*models.Sale, error)
	DeleteSale(ctx context.Context, saleID uuid.UUID) (*models.Sale, error)
	GetSale(ctx context.Context, saleID uuid.UUID) (*SaleView, error)
	ListSales(ctx context.Context, input ListSalesInput) (*SaleList, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type clientReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Client, error)
}

type inventoryReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.InventoryItem, error)
}

type codeSource interface {
	Next(ctx context.Context, saleDate time.Time) string
}

// ServiceParams wires the coordinator. Tx is required when Transactional is
// set; otherwise every step commits on its own and failures are compensated
// from the journal.
type ServiceParams struct {
	Repo          Repository
	Resolver      resolver.Resolver
	Ledger        ledger.Adjuster
	Inventory     inventoryReader
	Clients       clientReader
	Outbox        outboxPublisher
	Codes         codeSource
	Tx            txRunner
	Logger        *logger.Logger
	Metrics       *metrics.SaleMetrics
	Transactional bool
}

type service struct {
	repo          Repository
	resolver      resolver.Resolver
	ledger        ledger.Adjuster
	inventory     inventoryReader
	clients       clientReader
	outbox        outboxPublisher
	codes         codeSource
	tx            txRunner
	logg          *logger.Logger
	metrics       *metrics.SaleMetrics
	transactional bool
	now           func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("sale repository required")
	}
	if p.Resolver == nil {
		return nil, fmt.Errorf("resolver required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger adjuster required")
	}
	if p.Inventory == nil {
		return nil, fmt.Errorf("inventory reader required")
	}
	if p.Clients == nil {
		return nil, fmt.Errorf("client reader required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Codes == nil {
		return nil, fmt.Errorf("sale code generator required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Transactional && p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required in transactional mode")
	}
	return &service{
		repo:          p.Repo,
		resolver:      p.Resolver,
		ledger:        p.Ledger,
		inventory:     p.Inventory,
		clients:       p.Clients,
		outbox:        p.Outbox,
		codes:         p.Codes,
		tx:            p.Tx,
		logg:          p.Logger,
		metrics:       p.Metrics,
		transactional: p.Transactional,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// plannedLine is a draft line after resolution.
type plannedLine struct {
	index int
	ref   string
	match *resolver.Match
	qty   int
	carat decimal.Decimal
	price decimal.Decimal
}

func (p plannedLine) taxLine() tax.Line {
	return tax.Line{
		Quantity:      p.qty,
		Carat:         p.carat,
		PricePerCarat: p.price,
		CostPerCarat:  p.match.Item.CostPerCarat,
	}
}

func (s *service) CreateSale(ctx context.Context, draft SaleDraft) (*models.Sale, error) {
	start := time.Now()
	ctx = s.logg.WithOperation(ctx, opCreate)
	sale, err := s.createSale(ctx, draft)
	s.observe(opCreate, start, err)
	return sale, err
}

func (s *service) createSale(ctx context.Context, draft SaleDraft) (*models.Sale, error) {
	if err := draft.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureClient(ctx, draft.ClientID); err != nil {
		return nil, err
	}
	// From here on the operation runs to completion or compensation.
	ctx = context.WithoutCancel(ctx)

	saleDate := draft.SaleDate
	if saleDate.IsZero() {
		saleDate = s.now()
	}

	var created *models.Sale
	err := s.run(ctx, opCreate, func(ctx context.Context, tx *gorm.DB, j *journal) error {
		repo := s.repo.WithTx(tx)

		planned, err := s.plan(ctx, tx, draft.Lines)
		if err != nil {
			return err
		}

		now := s.now()
		sale := &models.Sale{
			ID:            uuid.New(),
			SaleCode:      s.codes.Next(ctx, saleDate),
			SaleDate:      saleDate.UTC(),
			ClientID:      draft.ClientID,
			PaymentStatus: draft.PaymentStatus,
			IsOutOfState:  draft.IsOutOfState,
			Notes:         draft.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		applyTotals(sale, planned, draft.Discount)
		saleID := sale.ID
		ctx = s.logg.WithSaleID(ctx, saleID.String())

		if err := repo.InsertSale(ctx, sale); err != nil {
			return persistenceFailed("insert sale header", saleID, err)
		}
		j.record(step{Kind: stepSaleHeader, Action: "insert", SaleID: saleID, undo: func(ctx context.Context) error {
			return s.repo.DeleteSale(ctx, saleID)
		}})

		items := buildLineItems(saleID, planned, now)
		if err := repo.InsertLineItems(ctx, items); err != nil {
			return persistenceFailed("insert sale line items", saleID, err)
		}
		j.record(step{Kind: stepLineItems, Action: "insert", SaleID: saleID, undo: func(ctx context.Context) error {
			return s.repo.DeleteSaleLineItems(ctx, saleID)
		}})

		if err := s.consume(ctx, tx, j, saleID, planned); err != nil {
			return err
		}

		sale.Items = items
		if err := s.emit(ctx, tx, enums.EventSaleCreated, saleID, saleEvent(sale, eventLinesFromPlan(planned))); err != nil {
			return err
		}
		created = sale
		return nil
	})
	if err != nil {
		return nil, s.creationError(err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"sale_id":        created.ID.String(),
		"sale_code":      created.SaleCode,
		"lines":          len(created.Items),
		"total_with_tax": created.TotalWithTax.String(),
	}), "sale created")
	return created, nil
}

func (s *service) UpdateSale(ctx context.Context, saleID uuid.UUID, draft SaleDraft) (*models.Sale, error) {
	start := time.Now()
	ctx = s.logg.WithSaleID(s.logg.WithOperation(ctx, opUpdate), saleID.String())
	sale, err := s.updateSale(ctx, saleID, draft)
	s.observe(opUpdate, start, err)
	return sale, err
}

// updateSale restores the old lines, validates the new ones against the
// restored stock, swaps the line set wholesale, consumes the new stock and
// rewrites the header totals.
func (s *service) updateSale(ctx context.Context, saleID uuid.UUID, draft SaleDraft) (*models.Sale, error) {
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id is required")
	}
	if err := draft.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureClient(ctx, draft.ClientID); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	var updated *models.Sale
	err := s.run(ctx, opUpdate, func(ctx context.Context, tx *gorm.DB, j *journal) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindSale(ctx, saleID)
		if err != nil {
			return saleLookupFailed(saleID, err)
		}
		oldHeader := *existing
		oldHeader.Items = nil
		oldItems := cloneItems(existing.Items)

		if err := s.restore(ctx, tx, j, saleID, oldItems); err != nil {
			return err
		}

		planned, err := s.plan(ctx, tx, draft.Lines)
		if err != nil {
			return err
		}

		if err := repo.DeleteSaleLineItems(ctx, saleID); err != nil {
			return persistenceFailed("delete sale line items", saleID, err)
		}
		j.record(step{Kind: stepLineItems, Action: "delete", SaleID: saleID, undo: func(ctx context.Context) error {
			return s.repo.InsertLineItems(ctx, cloneItems(oldItems))
		}})

		now := s.now()
		items := buildLineItems(saleID, planned, now)
		if err := repo.InsertLineItems(ctx, items); err != nil {
			return persistenceFailed("insert sale line items", saleID, err)
		}
		j.record(step{Kind: stepLineItems, Action: "insert", SaleID: saleID, undo: func(ctx context.Context) error {
			return s.repo.DeleteSaleLineItems(ctx, saleID)
		}})

		if err := s.consume(ctx, tx, j, saleID, planned); err != nil {
			return err
		}

		next := oldHeader
		if !draft.SaleDate.IsZero() {
			next.SaleDate = draft.SaleDate.UTC()
		}
		next.ClientID = draft.ClientID
		next.PaymentStatus = draft.PaymentStatus
		next.IsOutOfState = draft.IsOutOfState
		next.Notes = draft.Notes
		next.UpdatedAt = now
		applyTotals(&next, planned, draft.Discount)
		if err := repo.UpdateSale(ctx, &next); err != nil {
			return persistenceFailed("update sale header", saleID, err)
		}
		previous := oldHeader
		j.record(step{Kind: stepSaleHeader, Action: "update", SaleID: saleID, undo: func(ctx context.Context) error {
			return s.repo.UpdateSale(ctx, &previous)
		}})

		next.Items = items
		if err := s.emit(ctx, tx, enums.EventSaleUpdated, saleID, saleEvent(&next, eventLinesFromPlan(planned))); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, s.writeError(err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"sale_code":      updated.SaleCode,
		"lines":          len(updated.Items),
		"total_with_tax": updated.TotalWithTax.String(),
	}), "sale updated")
	return updated, nil
}

func (s *service) DeleteSale(ctx context.Context, saleID uuid.UUID) (*models.Sale, error) {
	start := time.Now()
	ctx = s.logg.WithSaleID(s.logg.WithOperation(ctx, opDelete), saleID.String())
	sale, err := s.deleteSale(ctx, saleID)
	s.observe(opDelete, start, err)
	return sale, err
}

// deleteSale treats stock restoration as a precondition: when any restore
// fails the earlier ones are re-consumed and the sale stays.
func (s *service) deleteSale(ctx context.Context, saleID uuid.UUID) (*models.Sale, error) {
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	var deleted *models.Sale
	err := s.run(ctx, opDelete, func(ctx context.Context, tx *gorm.DB, j *journal) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindSale(ctx, saleID)
		if err != nil {
			return saleLookupFailed(saleID, err)
		}
		header := *existing
		header.Items = nil
		oldItems := cloneItems(existing.Items)

		if err := s.restore(ctx, tx, j, saleID, oldItems); err != nil {
			return err
		}

		if err := repo.DeleteSaleLineItems(ctx, saleID); err != nil {
			return persistenceFailed("delete sale line items", saleID, err)
		}
		j.record(step{Kind: stepLineItems, Action: "delete", SaleID: saleID, undo: func(ctx context.Context) error {
			return s.repo.InsertLineItems(ctx, cloneItems(oldItems))
		}})

		if err := repo.DeleteSale(ctx, saleID); err != nil {
			return persistenceFailed("delete sale header", saleID, err)
		}
		j.record(step{Kind: stepSaleHeader, Action: "delete", SaleID: saleID, undo: func(ctx context.Context) error {
			restored := header
			return s.repo.InsertSale(ctx, &restored)
		}})

		data := payloads.SaleDeletedEvent{
			SaleID:   saleID,
			SaleCode: existing.SaleCode,
			Restored: eventLinesFromItems(oldItems),
		}
		if err := s.emit(ctx, tx, enums.EventSaleDeleted, saleID, data); err != nil {
			return err
		}
		deleted = existing
		return nil
	})
	if err != nil {
		return nil, s.writeError(err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"sale_code": deleted.SaleCode,
		"restored":  len(deleted.Items),
	}), "sale deleted")
	return deleted, nil
}

// run executes fn as one unit of work. In transactional mode a failure rolls
// back; otherwise the journal is unwound.
func (s *service) run(ctx context.Context, op string, fn func(ctx context.Context, tx *gorm.DB, j *journal) error) error {
	j := newJournal(op)
	if s.transactional {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return fn(ctx, tx, j)
		})
		if err != nil && len(j.steps) > 0 {
			err = afterWrites(err)
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"journal":     j.describe(),
				"rolled_back": true,
			}), "sale operation rolled back", err)
		}
		return err
	}

	err := fn(ctx, nil, j)
	if err == nil || len(j.steps) == 0 {
		return err
	}
	return s.compensate(ctx, j, afterWrites(err))
}

// writePhaseError marks a failure that surfaced after the operation had
// written, even when its code reads like a precondition.
type writePhaseError struct {
	error
}

func (e writePhaseError) Unwrap() error { return e.error }

func afterWrites(err error) error {
	if isPrecondition(err) {
		return writePhaseError{error: err}
	}
	return err
}

func wroteBeforeFailing(err error) bool {
	var late writePhaseError
	return errors.As(err, &late)
}

// compensate reverses the journal after a failed step. The original error is
// returned when every reversal lands; otherwise COMPENSATION_FAILED lists the
// writes that are still in effect.
func (s *service) compensate(ctx context.Context, j *journal, cause error) error {
	s.logg.Error(s.logg.WithField(ctx, "journal", j.describe()), "sale operation failed after writes, compensating", cause)

	failed, err := j.unwind(ctx)
	if err == nil {
		s.metrics.IncCompensation(j.op, true)
		s.logg.Warn(s.logg.WithField(ctx, "reversed", len(j.steps)), "compensation complete")
		return cause
	}

	s.metrics.IncCompensation(j.op, false)
	unreversed := make([]map[string]any, 0, len(failed))
	for _, st := range failed {
		unreversed = append(unreversed, st.describe())
	}
	s.logg.Error(s.logg.WithField(ctx, "unreversed", unreversed), "compensation failed, manual reconciliation required", err)
	return pkgerrors.Wrap(pkgerrors.CodeCompensationFailed, multierr.Append(cause, err), "compensation failed").
		WithDetails(map[string]any{
			"operation":  j.op,
			"cause":      cause.Error(),
			"applied":    j.describe(),
			"unreversed": unreversed,
		})
}

// plan resolves every line, then checks stock with requests for the same
// item summed across lines. Every failing line is reported, not just the
// first.
func (s *service) plan(ctx context.Context, tx *gorm.DB, lines []LineDraft) ([]plannedLine, error) {
	planned := make([]plannedLine, 0, len(lines))
	var missing []map[string]any
	for i, line := range lines {
		ref := strings.TrimSpace(line.StoneRef)
		match, err := s.resolver.Resolve(ctx, tx, ref, resolver.Hint{StoneType: line.StoneType, Carat: line.Carat})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStoneNotFound) {
				missing = append(missing, map[string]any{"line": i, "stone_ref": ref})
				continue
			}
			return nil, err
		}
		p := plannedLine{
			index: i,
			ref:   ref,
			match: match,
			qty:   line.Quantity,
			carat: match.Item.Carat,
			price: match.Item.PricePerCarat,
		}
		if line.Carat.IsPositive() {
			p.carat = line.Carat
		}
		if line.PricePerCarat.IsPositive() {
			p.price = line.PricePerCarat
		}
		planned = append(planned, p)
	}
	if len(missing) > 0 {
		msg := fmt.Sprintf("stone %q not found", missing[0]["stone_ref"])
		if len(missing) > 1 {
			msg = fmt.Sprintf("%d stone references not found", len(missing))
		}
		return nil, pkgerrors.New(pkgerrors.CodeStoneNotFound, msg).
			WithDetails(map[string]any{"lines": missing})
	}

	requested := make(map[uuid.UUID]int, len(planned))
	for _, p := range planned {
		requested[p.match.Item.ID] += p.qty
	}
	var short []map[string]any
	for _, p := range planned {
		item := p.match.Item
		if requested[item.ID] > item.Quantity {
			short = append(short, shortageDetail(p, requested[item.ID], item.Quantity))
		}
	}
	if len(short) > 0 {
		first := short[0]
		msg := fmt.Sprintf("insufficient inventory for %s: requested %d, available %d", first["gem_code"], first["requested"], first["available"])
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientInventory, msg).
			WithDetails(map[string]any{"lines": short})
	}
	return planned, nil
}

// consume applies the negative delta of every planned line. A clamped delta
// means another writer took the stock after validation.
func (s *service) consume(ctx context.Context, tx *gorm.DB, j *journal, saleID uuid.UUID, planned []plannedLine) error {
	for _, p := range planned {
		res, err := s.ledger.ApplyDelta(ctx, tx, ledger.Delta{
			ItemID:   p.match.Item.ID,
			Quantity: -p.qty,
			Type:     enums.MovementTypeSale,
			SaleID:   &saleID,
		})
		if err != nil {
			return withLine(err, p.index, p.ref)
		}
		s.recordDelta(j, saleID, p.index, res)
		if res.Applied() != -p.qty {
			return pkgerrors.New(pkgerrors.CodeInsufficientInventory,
				fmt.Sprintf("insufficient inventory for %s: requested %d, available %d", res.Item.GemCode, p.qty, res.Movement.QuantityBefore)).
				WithDetails(map[string]any{"lines": []map[string]any{shortageDetail(p, p.qty, res.Movement.QuantityBefore)}})
		}
	}
	return nil
}

func (s *service) restore(ctx context.Context, tx *gorm.DB, j *journal, saleID uuid.UUID, items []models.SaleLineItem) error {
	for i, item := range items {
		res, err := s.ledger.ApplyDelta(ctx, tx, ledger.Delta{
			ItemID:   item.InventoryItemID,
			Quantity: item.Quantity,
			Type:     enums.MovementTypeRestore,
			SaleID:   &saleID,
		})
		if err != nil {
			return withLine(err, i, item.StoneRef)
		}
		s.recordDelta(j, saleID, i, res)
	}
	return nil
}

// recordDelta journals the quantity that actually landed so the reversal
// undoes exactly that much.
func (s *service) recordDelta(j *journal, saleID uuid.UUID, line int, res *ledger.Result) {
	applied := res.Applied()
	if applied == 0 {
		return
	}
	itemID := res.Item.ID
	action := string(res.Movement.Type)
	j.record(step{
		Kind:     stepInventory,
		Action:   action,
		SaleID:   saleID,
		ItemID:   &itemID,
		Line:     &line,
		Quantity: applied,
		undo: func(ctx context.Context) error {
			res, err := s.ledger.ApplyDelta(ctx, nil, ledger.Delta{
				ItemID:   itemID,
				Quantity: -applied,
				Type:     enums.MovementTypeCompensation,
				SaleID:   &saleID,
				Reason:   "reverse " + action,
			})
			if err != nil {
				return err
			}
			if got := res.Applied(); got != -applied {
				return fmt.Errorf("reversal of %d on item %s landed %d", -applied, itemID, got)
			}
			return nil
		},
	})
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, saleID uuid.UUID, data any) error {
	event := outbox.DomainEvent{
		EventType:   eventType,
		AggregateID: saleID,
		Data:        data,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return persistenceFailed("queue "+string(eventType)+" event", saleID, err)
	}
	return nil
}

func (s *service) ensureClient(ctx context.Context, clientID uuid.UUID) error {
	if _, err := s.clients.FindByID(ctx, clientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "client not found").
				WithDetails(map[string]any{"client_id": clientID.String()})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load client")
	}
	return nil
}

func (s *service) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			outcome = strings.ToLower(string(typed.Code()))
		} else {
			outcome = "error"
		}
	}
	s.metrics.ObserveOperation(op, outcome, time.Since(start))
}

// creationError folds write-phase failures of a create into
// SALE_CREATION_FAILED. Failures detected before any write pass through,
// and a shortage found while consuming stock counts as a write failure.
func (s *service) creationError(err error) error {
	err = s.writeError(err)
	if pkgerrors.IsCode(err, pkgerrors.CodeCompensationFailed) {
		return err
	}
	if isPrecondition(err) && !wroteBeforeFailing(err) {
		return err
	}
	typed := pkgerrors.As(err)
	return pkgerrors.Wrap(pkgerrors.CodeSaleCreationFailed, err, "sale creation failed").
		WithDetails(map[string]any{
			"cause_code": string(typed.Code()),
			"cause":      typed.Message(),
			"details":    typed.Details(),
		})
}

// writeError types anything that escaped untyped, such as a failed commit.
func (s *service) writeError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistenceFailed, err, "commit sale operation")
}

func isPrecondition(err error) bool {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeStoneNotFound,
		pkgerrors.CodeInsufficientInventory,
	} {
		if pkgerrors.IsCode(err, code) {
			return true
		}
	}
	return false
}

func applyTotals(sale *models.Sale, planned []plannedLine, discount decimal.Decimal) {
	lines := make([]tax.Line, 0, len(planned))
	for _, p := range planned {
		lines = append(lines, p.taxLine())
	}
	totals := tax.Compute(lines, discount, sale.IsOutOfState)
	sale.ItemsTotal = totals.ItemsTotal
	sale.Discount = totals.Discount
	sale.TotalAmount = totals.Subtotal
	sale.CGST = totals.CGST
	sale.SGST = totals.SGST
	sale.IGST = totals.IGST
	sale.TotalWithTax = totals.TotalWithTax
	sale.Profit = tax.Profit(totals.Subtotal, lines)
}

func buildLineItems(saleID uuid.UUID, planned []plannedLine, now time.Time) []models.SaleLineItem {
	items := make([]models.SaleLineItem, 0, len(planned))
	for i, p := range planned {
		line := p.taxLine()
		items = append(items, models.SaleLineItem{
			ID:              uuid.New(),
			SaleID:          saleID,
			InventoryItemID: p.match.Item.ID,
			StoneRef:        p.ref,
			MatchKind:       p.match.Kind,
			Quantity:        p.qty,
			Carat:           p.carat,
			PricePerCarat:   p.price,
			CostPerCarat:    p.match.Item.CostPerCarat,
			TotalPrice:      line.Total(),
			Position:        i,
			CreatedAt:       now,
		})
	}
	return items
}

func cloneItems(items []models.SaleLineItem) []models.SaleLineItem {
	out := make([]models.SaleLineItem, len(items))
	copy(out, items)
	return out
}

func shortageDetail(p plannedLine, requested, available int) map[string]any {
	return map[string]any{
		"line":              p.index,
		"stone_ref":         p.ref,
		"inventory_item_id": p.match.Item.ID.String(),
		"gem_code":          p.match.Item.GemCode,
		"requested":         requested,
		"available":         available,
	}
}

func withLine(err error, line int, ref string) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	details := map[string]any{}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	details["line"] = line
	if ref != "" {
		details["stone_ref"] = ref
	}
	return typed.WithDetails(details)
}

func persistenceFailed(action string, saleID uuid.UUID, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodePersistenceFailed, err, action).
		WithDetails(map[string]any{"sale_id": saleID.String(), "action": action})
}

func saleLookupFailed(saleID uuid.UUID, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "sale not found").
			WithDetails(map[string]any{"sale_id": saleID.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
}

func saleEvent(sale *models.Sale, lines []payloads.SaleLine) payloads.SaleEvent {
	return payloads.SaleEvent{
		SaleID:        sale.ID,
		SaleCode:      sale.SaleCode,
		SaleDate:      sale.SaleDate,
		ClientID:      sale.ClientID,
		PaymentStatus: sale.PaymentStatus,
		IsOutOfState:  sale.IsOutOfState,
		TotalAmount:   sale.TotalAmount,
		TotalWithTax:  sale.TotalWithTax,
		Lines:         lines,
	}
}

func eventLinesFromPlan(planned []plannedLine) []payloads.SaleLine {
	out := make([]payloads.SaleLine, 0, len(planned))
	for _, p := range planned {
		out = append(out, payloads.SaleLine{
			InventoryItemID: p.match.Item.ID,
			GemCode:         p.match.Item.GemCode,
			Quantity:        p.qty,
			MatchKind:       p.match.Kind,
			TotalPrice:      p.taxLine().Total(),
		})
	}
	return out
}

func eventLinesFromItems(items []models.SaleLineItem) []payloads.SaleLine {
	out := make([]payloads.SaleLine, 0, len(items))
	for _, item := range items {
		out = append(out, payloads.SaleLine{
			InventoryItemID: item.InventoryItemID,
			Quantity:        item.Quantity,
			MatchKind:       item.MatchKind,
			TotalPrice:      item.TotalPrice,
		})
	}
	return out
}
