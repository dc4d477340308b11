package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryItem is one stocked gemstone lot. Quantity is owned by the ledger
// after creation; IsAvailable and TotalPrice are derived on save.
type InventoryItem struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	GemCode       string              `gorm:"column:gem_code;not null;uniqueIndex"`
	StoneType     string              `gorm:"column:stone_type;not null"`
	Grade         string              `gorm:"column:grade"`
	Origin        string              `gorm:"column:origin"`
	Shape         string              `gorm:"column:shape"`
	Color         string              `gorm:"column:color"`
	Carat         decimal.Decimal     `gorm:"column:carat;type:numeric(10,3);not null"`
	PricePerCarat decimal.Decimal     `gorm:"column:price_per_carat;type:numeric(14,2);not null"`
	CostPerCarat  decimal.NullDecimal `gorm:"column:cost_per_carat;type:numeric(14,2)"`
	Quantity      int                 `gorm:"column:quantity;not null;default:0"`
	IsAvailable   bool                `gorm:"column:is_available;not null;default:false"`
	TotalPrice    decimal.Decimal     `gorm:"column:total_price;type:numeric(16,2);not null"`
	CertificateNo *string             `gorm:"column:certificate_no"`
	SupplierID    *uuid.UUID          `gorm:"column:supplier_id;type:uuid"`
	Version       int64               `gorm:"column:version;not null;default:0"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

// Derive recomputes the fields that must never drift from their inputs.
func (i *InventoryItem) Derive() {
	if i.Quantity < 0 {
		i.Quantity = 0
	}
	i.IsAvailable = i.Quantity > 0
	i.TotalPrice = i.Carat.Mul(i.PricePerCarat).Round(2)
}

func (i *InventoryItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (i *InventoryItem) BeforeSave(tx *gorm.DB) error {
	i.Derive()
	return nil
}
