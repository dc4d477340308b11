package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
)

// InventoryMovement is an append-only record of one applied quantity delta.
type InventoryMovement struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	InventoryItemID uuid.UUID          `gorm:"column:inventory_item_id;type:uuid;not null;index"`
	SaleID          *uuid.UUID         `gorm:"column:sale_id;type:uuid;index"`
	Type            enums.MovementType `gorm:"column:type;type:text;not null"`
	Delta           int                `gorm:"column:delta;not null"`
	QuantityBefore  int                `gorm:"column:quantity_before;not null"`
	QuantityAfter   int                `gorm:"column:quantity_after;not null"`
	// ItemVersion is the item's version after this movement landed.
	ItemVersion int64     `gorm:"column:item_version;not null;default:0"`
	Reason      string    `gorm:"column:reason"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (InventoryMovement) TableName() string { return "inventory_movements" }

func (m *InventoryMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
