package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
)

// Sale is the persisted sale header. Monetary fields are always produced by
// the tax calculator and never accepted from callers.
type Sale struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SaleCode      string              `gorm:"column:sale_code;not null;uniqueIndex"`
	SaleDate      time.Time           `gorm:"column:sale_date;not null"`
	ClientID      uuid.UUID           `gorm:"column:client_id;type:uuid;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	ItemsTotal    decimal.Decimal     `gorm:"column:items_total;type:numeric(16,2);not null"`
	Discount      decimal.Decimal     `gorm:"column:discount;type:numeric(16,2);not null"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(16,2);not null"`
	IsOutOfState  bool                `gorm:"column:is_out_of_state;not null;default:false"`
	CGST          decimal.Decimal     `gorm:"column:cgst;type:numeric(16,2);not null"`
	SGST          decimal.Decimal     `gorm:"column:sgst;type:numeric(16,2);not null"`
	IGST          decimal.Decimal     `gorm:"column:igst;type:numeric(16,2);not null"`
	TotalWithTax  decimal.Decimal     `gorm:"column:total_with_tax;type:numeric(16,2);not null"`
	Profit        decimal.NullDecimal `gorm:"column:profit;type:numeric(16,2)"`
	Notes         *string             `gorm:"column:notes"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items []SaleLineItem `gorm:"foreignKey:SaleID"`
}

func (Sale) TableName() string { return "sales" }

func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
