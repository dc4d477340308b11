// Package inventory manages stocked gemstone lots. Quantity changes after
// creation always go through the ledger.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/internal/ledger"
	"github.com/angelmondragon/gemtrade-backend/pkg/db"
	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/outbox"
	"github.com/angelmondragon/gemtrade-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

// Service exposes inventory management operations.
type Service interface {
	CreateItem(ctx context.Context, input CreateItemInput) (*ItemDTO, error)
	GetItem(ctx context.Context, id uuid.UUID) (*ItemDTO, error)
	GetItemByCode(ctx context.Context, code string) (*ItemDTO, error)
	ListItems(ctx context.Context, input ListItemsInput) (*ItemList, error)
	UpdateItem(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*ItemDTO, error)
	AdjustStock(ctx context.Context, id uuid.UUID, input AdjustStockInput) (*ItemDTO, error)
	ListMovements(ctx context.Context, id uuid.UUID, params pagination.Params) (*ledger.MovementList, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo   Repository
	tx     txRunner
	ledger ledger.Adjuster
	outbox outboxPublisher
}

func NewService(repo Repository, tx txRunner, adjuster ledger.Adjuster, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if adjuster == nil {
		return nil, fmt.Errorf("ledger adjuster required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, ledger: adjuster, outbox: outbox}, nil
}

func (s *service) CreateItem(ctx context.Context, input CreateItemInput) (*ItemDTO, error) {
	code := strings.TrimSpace(input.GemCode)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gem_code is required")
	}
	if strings.TrimSpace(input.StoneType) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stone_type is required")
	}
	if err := validateWeightAndPrice(input.Carat, input.PricePerCarat, input.CostPerCarat); err != nil {
		return nil, err
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}

	now := time.Now().UTC()
	item := &models.InventoryItem{
		GemCode:       code,
		StoneType:     strings.TrimSpace(input.StoneType),
		Grade:         input.Grade,
		Origin:        input.Origin,
		Shape:         input.Shape,
		Color:         input.Color,
		Carat:         input.Carat,
		PricePerCarat: input.PricePerCarat,
		CostPerCarat:  input.CostPerCarat,
		Quantity:      input.Quantity,
		CertificateNo: input.CertificateNo,
		SupplierID:    input.SupplierID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "gem_code already exists").
				WithDetails(map[string]any{"gem_code": code})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert inventory item")
	}
	return NewItemDTO(item), nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*ItemDTO, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return NewItemDTO(item), nil
}

func (s *service) GetItemByCode(ctx context.Context, code string) (*ItemDTO, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gem code is required")
	}
	item, err := s.repo.FindByGemCode(ctx, code)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return NewItemDTO(item), nil
}

func (s *service) ListItems(ctx context.Context, input ListItemsInput) (*ItemList, error) {
	rows, err := s.repo.List(ctx, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory items")
	}
	page, next := pagination.Page(rows, input.Pagination.Limit, func(it models.InventoryItem) pagination.Cursor {
		return pagination.Cursor{At: it.CreatedAt, ID: it.ID}
	})
	out := &ItemList{Items: make([]ItemDTO, 0, len(page)), NextCursor: next}
	for i := range page {
		out.Items = append(out.Items, *NewItemDTO(&page[i]))
	}
	return out, nil
}

func (s *service) UpdateItem(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*ItemDTO, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	applyUpdate(item, input)
	if strings.TrimSpace(item.StoneType) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stone_type is required")
	}
	if err := validateWeightAndPrice(item.Carat, item.PricePerCarat, item.CostPerCarat); err != nil {
		return nil, err
	}
	item.Derive()
	item.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateDescriptive(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update inventory item")
	}
	// Re-read so the response carries the ledger's current quantity.
	fresh, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return NewItemDTO(fresh), nil
}

// AdjustStock applies a manual correction through the ledger and queues an
// inventory.adjusted event in the same transaction.
func (s *service) AdjustStock(ctx context.Context, id uuid.UUID, input AdjustStockInput) (*ItemDTO, error) {
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, mapLookupError(err)
	}

	var adjusted *models.InventoryItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.ledger.ApplyDelta(ctx, tx, ledger.Delta{
			ItemID:   id,
			Quantity: input.Delta,
			Type:     enums.MovementTypeAdjustment,
			Reason:   reason,
		})
		if err != nil {
			return err
		}
		adjusted = res.Item

		event := outbox.DomainEvent{
			EventType:   enums.EventInventoryAdjusted,
			AggregateID: id,
			Data: payloads.InventoryAdjustedEvent{
				InventoryItemID: id,
				GemCode:         res.Item.GemCode,
				Delta:           res.Applied(),
				QuantityAfter:   res.Item.Quantity,
				Reason:          reason,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit inventory adjusted event")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust stock")
	}
	return NewItemDTO(adjusted), nil
}

func (s *service) ListMovements(ctx context.Context, id uuid.UUID, params pagination.Params) (*ledger.MovementList, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, mapLookupError(err)
	}
	return s.ledger.ListMovements(ctx, id, params)
}

func applyUpdate(item *models.InventoryItem, input UpdateItemInput) {
	if input.StoneType != nil {
		item.StoneType = strings.TrimSpace(*input.StoneType)
	}
	if input.Grade != nil {
		item.Grade = *input.Grade
	}
	if input.Origin != nil {
		item.Origin = *input.Origin
	}
	if input.Shape != nil {
		item.Shape = *input.Shape
	}
	if input.Color != nil {
		item.Color = *input.Color
	}
	if input.Carat != nil {
		item.Carat = *input.Carat
	}
	if input.PricePerCarat != nil {
		item.PricePerCarat = *input.PricePerCarat
	}
	if input.CostPerCarat != nil {
		item.CostPerCarat = decimal.NewNullDecimal(*input.CostPerCarat)
	}
	if input.CertificateNo != nil {
		item.CertificateNo = input.CertificateNo
	}
}

func validateWeightAndPrice(carat, price decimal.Decimal, cost decimal.NullDecimal) error {
	if carat.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "carat cannot be negative")
	}
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price_per_carat cannot be negative")
	}
	if cost.Valid && cost.Decimal.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "cost_per_carat cannot be negative")
	}
	return nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
}
