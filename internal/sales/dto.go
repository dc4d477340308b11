package sales

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

// SaleDraft is the header plus line set submitted for create and update.
// Monetary totals are never part of the draft.
type SaleDraft struct {
	SaleDate      time.Time
	ClientID      uuid.UUID
	PaymentStatus enums.PaymentStatus
	Discount      decimal.Decimal
	IsOutOfState  bool
	Notes         *string
	Lines         []LineDraft
}

// LineDraft is one requested stone. StoneType and Carat double as the hint
// for fuzzy resolution. Carat and PricePerCarat default to the inventory
// values when left zero.
type LineDraft struct {
	StoneRef      string
	StoneType     string
	Quantity      int
	Carat         decimal.Decimal
	PricePerCarat decimal.Decimal
}

func (d SaleDraft) validate() error {
	if d.ClientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client_id is required")
	}
	if !d.PaymentStatus.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment_status")
	}
	if d.Discount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative")
	}
	if len(d.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "a sale needs at least one line item")
	}
	for i, line := range d.Lines {
		if strings.TrimSpace(line.StoneRef) == "" && strings.TrimSpace(line.StoneType) == "" {
			return lineInvalid(i, "stone_ref or stone_type is required")
		}
		if line.Quantity < 1 {
			return lineInvalid(i, "quantity must be at least 1")
		}
		if line.Carat.IsNegative() {
			return lineInvalid(i, "carat cannot be negative")
		}
		if line.PricePerCarat.IsNegative() {
			return lineInvalid(i, "price_per_carat cannot be negative")
		}
	}
	return nil
}

func lineInvalid(index int, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).
		WithDetails(map[string]any{"line": index})
}

// ListFilters narrows the sales listing.
type ListFilters struct {
	ClientID      *uuid.UUID
	PaymentStatus *enums.PaymentStatus
	From          *time.Time
	To            *time.Time
}

type ListSalesInput struct {
	Filters    ListFilters
	Pagination pagination.Params
}

type SaleList struct {
	Items      []SaleView `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}
