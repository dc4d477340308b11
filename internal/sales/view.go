package sales

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	"github.com/angelmondragon/gemtrade-backend/pkg/tax"
)

// SaleView is the denormalized sale the presentation layer renders.
type SaleView struct {
	ID            uuid.UUID           `json:"id"`
	SaleCode      string              `json:"sale_code"`
	SaleDate      time.Time           `json:"sale_date"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	IsOutOfState  bool                `json:"is_out_of_state"`
	Notes         *string             `json:"notes,omitempty"`
	Client        ClientView          `json:"client"`
	Lines         []LineView          `json:"lines"`

	// Totals is recomputed from the lines; Stored is what the sale row holds.
	Totals           tax.Breakdown       `json:"totals"`
	Stored           StoredTotals        `json:"stored_totals"`
	Profit           decimal.NullDecimal `json:"profit"`
	TotalsConsistent bool                `json:"totals_consistent"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type ClientView struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Company     string    `json:"company,omitempty"`
	GSTIN       string    `json:"gstin,omitempty"`
	Address     string    `json:"address,omitempty"`
}

type LineView struct {
	Position        int             `json:"position"`
	InventoryItemID uuid.UUID       `json:"inventory_item_id"`
	GemCode         string          `json:"gem_code,omitempty"`
	StoneName       string          `json:"stone_name"`
	StoneRef        string          `json:"stone_ref"`
	MatchKind       enums.MatchKind `json:"match_kind"`
	Quantity        int             `json:"quantity"`
	Carat           decimal.Decimal `json:"carat"`
	PricePerCarat   decimal.Decimal `json:"price_per_carat"`
	TotalPrice      decimal.Decimal `json:"total_price"`
}

type StoredTotals struct {
	ItemsTotal   decimal.Decimal `json:"items_total"`
	Discount     decimal.Decimal `json:"discount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CGST         decimal.Decimal `json:"cgst"`
	SGST         decimal.Decimal `json:"sgst"`
	IGST         decimal.Decimal `json:"igst"`
	TotalWithTax decimal.Decimal `json:"total_with_tax"`
}

// BuildView assembles the read model. It does not modify its inputs; client
// and inventory entries may be missing, in which case the stored snapshot is
// shown on its own.
func BuildView(sale *models.Sale, items []models.SaleLineItem, client *models.Client, inventory map[uuid.UUID]models.InventoryItem) SaleView {
	view := SaleView{
		ID:            sale.ID,
		SaleCode:      sale.SaleCode,
		SaleDate:      sale.SaleDate,
		PaymentStatus: sale.PaymentStatus,
		IsOutOfState:  sale.IsOutOfState,
		Notes:         sale.Notes,
		Client:        ClientView{ID: sale.ClientID},
		Lines:         make([]LineView, 0, len(items)),
		Stored: StoredTotals{
			ItemsTotal:   sale.ItemsTotal,
			Discount:     sale.Discount,
			TotalAmount:  sale.TotalAmount,
			CGST:         sale.CGST,
			SGST:         sale.SGST,
			IGST:         sale.IGST,
			TotalWithTax: sale.TotalWithTax,
		},
		Profit:    sale.Profit,
		CreatedAt: sale.CreatedAt,
		UpdatedAt: sale.UpdatedAt,
	}
	if client != nil {
		view.Client = ClientView{
			ID:          client.ID,
			DisplayName: client.Name,
			Company:     client.Company,
			GSTIN:       client.GSTIN,
			Address:     joinNonEmpty(", ", client.AddressLine1, client.AddressLine2, client.City, client.State, client.PostalCode, client.Country),
		}
	}

	lines := make([]tax.Line, 0, len(items))
	for _, item := range items {
		lv := LineView{
			Position:        item.Position,
			InventoryItemID: item.InventoryItemID,
			StoneName:       item.StoneRef,
			StoneRef:        item.StoneRef,
			MatchKind:       item.MatchKind,
			Quantity:        item.Quantity,
			Carat:           item.Carat,
			PricePerCarat:   item.PricePerCarat,
			TotalPrice:      item.TotalPrice,
		}
		if stone, ok := inventory[item.InventoryItemID]; ok {
			lv.GemCode = stone.GemCode
			lv.StoneName = StoneName(stone.StoneType, item.Carat, stone.Origin, stone.Grade)
		}
		view.Lines = append(view.Lines, lv)
		lines = append(lines, tax.Line{Quantity: item.Quantity, Carat: item.Carat, PricePerCarat: item.PricePerCarat})
	}

	view.Totals = tax.Compute(lines, sale.Discount, sale.IsOutOfState)
	view.TotalsConsistent = view.Totals.ItemsTotal.Equal(sale.ItemsTotal) &&
		view.Totals.Subtotal.Equal(sale.TotalAmount) &&
		view.Totals.CGST.Equal(sale.CGST) &&
		view.Totals.SGST.Equal(sale.SGST) &&
		view.Totals.IGST.Equal(sale.IGST) &&
		view.Totals.TotalWithTax.Equal(sale.TotalWithTax)
	return view
}

// StoneName renders a stone as "Ruby 2.00ct · Burma · AAA", skipping blank
// descriptors.
func StoneName(stoneType string, carat decimal.Decimal, origin, grade string) string {
	head := strings.TrimSpace(stoneType + " " + carat.StringFixed(2) + "ct")
	return joinNonEmpty(" · ", head, origin, grade)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
