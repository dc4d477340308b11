package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/internal/repo"
	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
)

// Drift is an inventory row whose quantity disagrees with the newest movement
// recorded for it.
type Drift struct {
	ItemID         uuid.UUID `gorm:"column:id"`
	GemCode        string    `gorm:"column:gem_code"`
	Quantity       int       `gorm:"column:quantity"`
	LedgerQuantity int       `gorm:"column:ledger_quantity"`
}

// AuditRepository reads the ledger back against inventory_items.
type AuditRepository interface {
	FindQuantityDrift(ctx context.Context, limit int) ([]Drift, error)
	RepairAvailability(ctx context.Context) (int64, error)
}

type auditRepository struct {
	repo.Base
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{Base: repo.NewBase(db)}
}

// FindQuantityDrift lists items whose quantity is not the quantity_after of
// their newest movement. Newest is the highest item_version, with created_at
// only separating rows written before versions were recorded. Items that
// never moved are not checked.
func (r *auditRepository) FindQuantityDrift(ctx context.Context, limit int) ([]Drift, error) {
	latest := r.DB(ctx).Table("inventory_movements AS m2").
		Select("m2.id").
		Where("m2.inventory_item_id = i.id").
		Order("m2.item_version DESC").
		Order("m2.created_at DESC").
		Order("m2.id DESC").
		Limit(1)

	var rows []Drift
	err := r.DB(ctx).
		Table("inventory_items AS i").
		Select("i.id, i.gem_code, i.quantity, m.quantity_after AS ledger_quantity").
		Joins("JOIN inventory_movements AS m ON m.inventory_item_id = i.id").
		Where("m.id = (?)", latest).
		Where("i.quantity <> m.quantity_after").
		Order("i.gem_code ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// RepairAvailability re-derives is_available from quantity wherever the two
// disagree and reports how many rows changed.
func (r *auditRepository) RepairAvailability(ctx context.Context) (int64, error) {
	res := r.Writer(ctx).
		Model(&models.InventoryItem{}).
		Where("is_available <> (quantity > 0)").
		Update("is_available", gorm.Expr("quantity > 0"))
	return res.RowsAffected, res.Error
}
