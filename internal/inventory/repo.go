package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

// descriptiveColumns are the only columns UpdateDescriptive writes. Quantity,
// availability and version belong to the ledger.
var descriptiveColumns = []string{
	"stone_type", "grade", "origin", "shape", "color",
	"carat", "price_per_carat", "cost_per_carat", "total_price",
	"certificate_no", "updated_at",
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.InventoryItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	FindByGemCode(ctx context.Context, code string) (*models.InventoryItem, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.InventoryItem, error)
	List(ctx context.Context, input ListItemsInput) ([]models.InventoryItem, error)
	UpdateDescriptive(ctx context.Context, item *models.InventoryItem) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByGemCode(ctx context.Context, code string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).
		Where("lower(gem_code) = ?", strings.ToLower(strings.TrimSpace(code))).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.InventoryItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) List(ctx context.Context, input ListItemsInput) ([]models.InventoryItem, error) {
	q := r.db.WithContext(ctx).Model(&models.InventoryItem{})
	if t := strings.TrimSpace(input.Filters.StoneType); t != "" {
		q = q.Where("lower(stone_type) = ?", strings.ToLower(t))
	}
	if input.Filters.Available != nil {
		q = q.Where("is_available = ?", *input.Filters.Available)
	}
	keyset, err := pagination.Keyset("created_at", input.Pagination)
	if err != nil {
		return nil, err
	}
	var items []models.InventoryItem
	if err := q.Scopes(keyset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateDescriptive saves the descriptive columns of item. The save hook
// recomputes total_price from the new carat and price.
func (r *repository) UpdateDescriptive(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).
		Model(item).
		Select(descriptiveColumns).
		Updates(item).Error
}
