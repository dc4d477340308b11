package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
)

// Store is the read side of the inventory store the resolver needs. Lookups
// return (nil, nil) when nothing matches.
type Store interface {
	WithTx(tx *gorm.DB) Store
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	FindByGemCode(ctx context.Context, code string) (*models.InventoryItem, error)
	FindByTypeAndCarat(ctx context.Context, stoneType string, min, max decimal.Decimal) ([]models.InventoryItem, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Store {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Store {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	return found(&item, err)
}

func (r *repository) FindByGemCode(ctx context.Context, code string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).Where("lower(gem_code) = ?", strings.ToLower(code)).First(&item).Error
	return found(&item, err)
}

func (r *repository) FindByTypeAndCarat(ctx context.Context, stoneType string, min, max decimal.Decimal) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("lower(stone_type) = ?", strings.ToLower(stoneType)).
		Where("carat >= ? AND carat <= ?", min, max).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func found(item *models.InventoryItem, err error) (*models.InventoryItem, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}
