package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

// Repository is the inventory store contract used by the adjuster. It is the
// only code that writes inventory_items.quantity after an item is created.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Atomic(ctx context.Context, fn func(Repository) error) error
	FindItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	CompareAndSwapQuantity(ctx context.Context, id uuid.UUID, expected Snapshot, next int) (bool, error)
	CreateMovement(ctx context.Context, movement *models.InventoryMovement) error
	ListMovements(ctx context.Context, itemID uuid.UUID, params pagination.Params) ([]models.InventoryMovement, error)
	ListMovementsBySale(ctx context.Context, saleID uuid.UUID) ([]models.InventoryMovement, error)
}

// Snapshot is the quantity and version an item was read at.
type Snapshot struct {
	Quantity int
	Version  int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Atomic runs fn against a repository bound to one transaction. On a
// repository already bound to a transaction gorm nests it as a savepoint.
func (r *repository) Atomic(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx})
	})
}

func (r *repository) FindItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// CompareAndSwapQuantity sets quantity to next only if the row is still at
// the expected quantity and version, keeping is_available in step and bumping
// version. It reports whether the row was updated.
func (r *repository) CompareAndSwapQuantity(ctx context.Context, id uuid.UUID, expected Snapshot, next int) (bool, error) {
	res := r.db.WithContext(ctx).
		Session(&gorm.Session{SkipHooks: true}).
		Model(&models.InventoryItem{}).
		Where("id = ? AND quantity = ? AND version = ?", id, expected.Quantity, expected.Version).
		Updates(map[string]any{
			"quantity":     next,
			"is_available": next > 0,
			"version":      gorm.Expr("version + 1"),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListMovements(ctx context.Context, itemID uuid.UUID, params pagination.Params) ([]models.InventoryMovement, error) {
	q := r.db.WithContext(ctx).Where("inventory_item_id = ?", itemID)
	keyset, err := pagination.Keyset("created_at", params)
	if err != nil {
		return nil, err
	}
	var rows []models.InventoryMovement
	if err := q.Scopes(keyset).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListMovementsBySale(ctx context.Context, saleID uuid.UUID) ([]models.InventoryMovement, error) {
	var rows []models.InventoryMovement
	if err := r.db.WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("created_at ASC").
		Order("item_version ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
