package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
)

// SaleLine is the inventory effect of one sale line.
type SaleLine struct {
	InventoryItemID uuid.UUID       `json:"inventory_item_id"`
	GemCode         string          `json:"gem_code,omitempty"`
	Quantity        int             `json:"quantity"`
	MatchKind       enums.MatchKind `json:"match_kind"`
	TotalPrice      decimal.Decimal `json:"total_price"`
}

// SaleEvent is carried by sale.created and sale.updated. Invoice rendering
// and analytics consume it.
type SaleEvent struct {
	SaleID        uuid.UUID           `json:"sale_id"`
	SaleCode      string              `json:"sale_code"`
	SaleDate      time.Time           `json:"sale_date"`
	ClientID      uuid.UUID           `json:"client_id"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	IsOutOfState  bool                `json:"is_out_of_state"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	TotalWithTax  decimal.Decimal     `json:"total_with_tax"`
	Lines         []SaleLine          `json:"lines"`
}

// SaleDeletedEvent lists the stock that deletion returned to inventory.
type SaleDeletedEvent struct {
	SaleID   uuid.UUID  `json:"sale_id"`
	SaleCode string     `json:"sale_code"`
	Restored []SaleLine `json:"restored"`
}

// InventoryAdjustedEvent reports a manual stock correction.
type InventoryAdjustedEvent struct {
	InventoryItemID uuid.UUID `json:"inventory_item_id"`
	GemCode         string    `json:"gem_code"`
	Delta           int       `json:"delta"`
	QuantityAfter   int       `json:"quantity_after"`
	Reason          string    `json:"reason"`
}
