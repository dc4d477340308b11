package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
)

// SaleLineItem snapshots the stone, weight and price at the time of sale.
type SaleLineItem struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SaleID          uuid.UUID           `gorm:"column:sale_id;type:uuid;not null;index"`
	InventoryItemID uuid.UUID           `gorm:"column:inventory_item_id;type:uuid;not null;index"`
	StoneRef        string              `gorm:"column:stone_ref;not null"`
	MatchKind       enums.MatchKind     `gorm:"column:match_kind;type:text;not null"`
	Quantity        int                 `gorm:"column:quantity;not null"`
	Carat           decimal.Decimal     `gorm:"column:carat;type:numeric(10,3);not null"`
	PricePerCarat   decimal.Decimal     `gorm:"column:price_per_carat;type:numeric(14,2);not null"`
	CostPerCarat    decimal.NullDecimal `gorm:"column:cost_per_carat;type:numeric(14,2)"`
	TotalPrice      decimal.Decimal     `gorm:"column:total_price;type:numeric(16,2);not null"`
	Position        int                 `gorm:"column:position;not null;default:0"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (SaleLineItem) TableName() string { return "sale_line_items" }

func (l *SaleLineItem) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
