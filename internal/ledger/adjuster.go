package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/metrics"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

const DefaultMaxCASAttempts = 5

var errLostSwap = errors.New("inventory item changed concurrently")

// Delta is a signed quantity change: negative consumes stock, positive
// restores it.
type Delta struct {
	ItemID   uuid.UUID
	Quantity int
	Type     enums.MovementType
	SaleID   *uuid.UUID
	Reason   string
}

// Result is the item after the delta plus the movement row recording it.
type Result struct {
	Item     *models.InventoryItem
	Movement *models.InventoryMovement
}

// Applied is the quantity change that actually landed, which differs from
// the requested delta when the zero floor clamped it.
func (r Result) Applied() int {
	if r.Movement == nil {
		return 0
	}
	return r.Movement.QuantityAfter - r.Movement.QuantityBefore
}

// Adjuster applies quantity deltas to inventory items.
type Adjuster interface {
	ApplyDelta(ctx context.Context, tx *gorm.DB, delta Delta) (*Result, error)
	ListMovements(ctx context.Context, itemID uuid.UUID, params pagination.Params) (*MovementList, error)
}

type MovementList struct {
	Items      []models.InventoryMovement `json:"items"`
	NextCursor string                     `json:"next_cursor,omitempty"`
}

type AdjusterParams struct {
	Repo           Repository
	Logger         *logger.Logger
	Metrics        *metrics.SaleMetrics
	MaxCASAttempts int
}

type adjuster struct {
	repo        Repository
	logg        *logger.Logger
	metrics     *metrics.SaleMetrics
	maxAttempts int
}

func NewAdjuster(params AdjusterParams) (Adjuster, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	attempts := params.MaxCASAttempts
	if attempts <= 0 {
		attempts = DefaultMaxCASAttempts
	}
	return &adjuster{
		repo:        params.Repo,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxAttempts: attempts,
	}, nil
}

func (a *adjuster) ApplyDelta(ctx context.Context, tx *gorm.DB, delta Delta) (*Result, error) {
	if delta.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory item id is required")
	}
	if delta.Quantity == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if !delta.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement type %q", delta.Type))
	}

	repo := a.repo.WithTx(tx)
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		item, err := repo.FindItem(ctx, delta.ItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, updateFailed(delta, attempt, err, "inventory item not found")
			}
			return nil, updateFailed(delta, attempt, err, "read inventory item")
		}

		before := item.Quantity
		next := before + delta.Quantity
		if next < 0 {
			next = 0
			logCtx := a.logg.WithItem(ctx, delta.ItemID.String(), item.GemCode)
			a.logg.Warn(a.logg.WithFields(logCtx, map[string]any{
				"delta":           delta.Quantity,
				"quantity_before": before,
			}), "inventory delta clamped at zero")
		}

		movement := &models.InventoryMovement{
			InventoryItemID: delta.ItemID,
			SaleID:          delta.SaleID,
			Type:            delta.Type,
			Delta:           next - before,
			QuantityBefore:  before,
			QuantityAfter:   next,
			ItemVersion:     item.Version + 1,
			Reason:          delta.Reason,
			CreatedAt:       time.Now().UTC(),
		}
		err = a.write(ctx, repo, tx != nil, func(w Repository) error {
			swapped, err := w.CompareAndSwapQuantity(ctx, delta.ItemID, Snapshot{Quantity: before, Version: item.Version}, next)
			if err != nil {
				return updateFailed(delta, attempt, err, "write inventory quantity")
			}
			if !swapped {
				return errLostSwap
			}
			if err := w.CreateMovement(ctx, movement); err != nil {
				return updateFailed(delta, attempt, err, "record inventory movement")
			}
			return nil
		})
		if errors.Is(err, errLostSwap) {
			a.metrics.IncCASRetry()
			continue
		}
		if err != nil {
			return nil, err
		}

		item.Quantity = next
		item.IsAvailable = next > 0
		item.Version++
		return &Result{Item: item, Movement: movement}, nil
	}

	return nil, pkgerrors.New(pkgerrors.CodeInventoryUpdateFailed, "inventory item changed concurrently").
		WithDetails(map[string]any{
			"inventory_item_id": delta.ItemID.String(),
			"delta":             delta.Quantity,
			"attempts":          a.maxAttempts,
			"reason":            "conflict",
		})
}

// write commits the quantity swap and its movement row together. Inside a
// caller's transaction the caller owns the commit.
func (a *adjuster) write(ctx context.Context, repo Repository, bound bool, fn func(Repository) error) error {
	if bound {
		return fn(repo)
	}
	return repo.Atomic(ctx, fn)
}

func (a *adjuster) ListMovements(ctx context.Context, itemID uuid.UUID, params pagination.Params) (*MovementList, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory item id is required")
	}
	rows, err := a.repo.ListMovements(ctx, itemID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory movements")
	}
	page, next := pagination.Page(rows, params.Limit, func(m models.InventoryMovement) pagination.Cursor {
		return pagination.Cursor{At: m.CreatedAt, ID: m.ID}
	})
	return &MovementList{Items: page, NextCursor: next}, nil
}

func updateFailed(delta Delta, attempt int, cause error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeInventoryUpdateFailed, cause, msg).
		WithDetails(map[string]any{
			"inventory_item_id": delta.ItemID.String(),
			"delta":             delta.Quantity,
			"attempt":           attempt,
		})
}
