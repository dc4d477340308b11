package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

// CreateItemInput holds the validated payload to stock a new lot.
type CreateItemInput struct {
	GemCode       string
	StoneType     string
	Grade         string
	Origin        string
	Shape         string
	Color         string
	Carat         decimal.Decimal
	PricePerCarat decimal.Decimal
	CostPerCarat  decimal.NullDecimal
	Quantity      int
	CertificateNo *string
	SupplierID    *uuid.UUID
}

// UpdateItemInput carries optional descriptive changes. Quantity is absent on
// purpose: stock only moves through AdjustStock or a sale.
type UpdateItemInput struct {
	StoneType     *string
	Grade         *string
	Origin        *string
	Shape         *string
	Color         *string
	Carat         *decimal.Decimal
	PricePerCarat *decimal.Decimal
	CostPerCarat  *decimal.Decimal
	CertificateNo *string
}

// AdjustStockInput is a manual stock correction.
type AdjustStockInput struct {
	Delta  int
	Reason string
}

// ListFilters narrows the inventory browse endpoint.
type ListFilters struct {
	StoneType string
	Available *bool
}

type ListItemsInput struct {
	Filters    ListFilters
	Pagination pagination.Params
}

// ItemDTO is the inventory payload returned to clients.
type ItemDTO struct {
	ID            uuid.UUID           `json:"id"`
	GemCode       string              `json:"gem_code"`
	StoneType     string              `json:"stone_type"`
	Grade         string              `json:"grade,omitempty"`
	Origin        string              `json:"origin,omitempty"`
	Shape         string              `json:"shape,omitempty"`
	Color         string              `json:"color,omitempty"`
	Carat         decimal.Decimal     `json:"carat"`
	PricePerCarat decimal.Decimal     `json:"price_per_carat"`
	CostPerCarat  decimal.NullDecimal `json:"cost_per_carat"`
	Quantity      int                 `json:"quantity"`
	IsAvailable   bool                `json:"is_available"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	CertificateNo *string             `json:"certificate_no,omitempty"`
	SupplierID    *uuid.UUID          `json:"supplier_id,omitempty"`
	Version       int64               `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type ItemList struct {
	Items      []ItemDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func NewItemDTO(item *models.InventoryItem) *ItemDTO {
	if item == nil {
		return nil
	}
	return &ItemDTO{
		ID:            item.ID,
		GemCode:       item.GemCode,
		StoneType:     item.StoneType,
		Grade:         item.Grade,
		Origin:        item.Origin,
		Shape:         item.Shape,
		Color:         item.Color,
		Carat:         item.Carat,
		PricePerCarat: item.PricePerCarat,
		CostPerCarat:  item.CostPerCarat,
		Quantity:      item.Quantity,
		IsAvailable:   item.IsAvailable,
		TotalPrice:    item.TotalPrice,
		CertificateNo: item.CertificateNo,
		SupplierID:    item.SupplierID,
		Version:       item.Version,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}
}
