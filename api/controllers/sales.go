package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gemtrade-backend/api/responses"
	"github.com/angelmondragon/gemtrade-backend/api/validators"
	salesvc "github.com/angelmondragon/gemtrade-backend/internal/sales"
	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
)

type saleRequest struct {
	SaleDate      string            `json:"sale_date,omitempty"`
	ClientID      string            `json:"client_id" validate:"required,uuid"`
	PaymentStatus string            `json:"payment_status" validate:"required"`
	Discount      decimal.Decimal   `json:"discount" validate:"gte=0"`
	IsOutOfState  bool              `json:"is_out_of_state"`
	Notes         *string           `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Lines         []saleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type saleLineRequest struct {
	StoneRef      string          `json:"stone_ref" validate:"max=128"`
	StoneType     string          `json:"stone_type,omitempty" validate:"max=64"`
	Quantity      int             `json:"quantity" validate:"required,min=1"`
	Carat         decimal.Decimal `json:"carat" validate:"gte=0"`
	PricePerCarat decimal.Decimal `json:"price_per_carat" validate:"gte=0"`
}

func (r saleRequest) toDraft() (salesvc.SaleDraft, error) {
	clientID, err := uuid.Parse(r.ClientID)
	if err != nil {
		return salesvc.SaleDraft{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client_id")
	}
	status, err := enums.ParsePaymentStatus(strings.TrimSpace(r.PaymentStatus))
	if err != nil {
		return salesvc.SaleDraft{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status")
	}
	saleDate, err := parseSaleDate(r.SaleDate)
	if err != nil {
		return salesvc.SaleDraft{}, err
	}

	draft := salesvc.SaleDraft{
		SaleDate:      saleDate,
		ClientID:      clientID,
		PaymentStatus: status,
		Discount:      r.Discount,
		IsOutOfState:  r.IsOutOfState,
		Notes:         r.Notes,
		Lines:         make([]salesvc.LineDraft, 0, len(r.Lines)),
	}
	for _, line := range r.Lines {
		draft.Lines = append(draft.Lines, salesvc.LineDraft{
			StoneRef:      strings.TrimSpace(line.StoneRef),
			StoneType:     strings.TrimSpace(line.StoneType),
			Quantity:      line.Quantity,
			Carat:         line.Carat,
			PricePerCarat: line.PricePerCarat,
		})
	}
	return draft, nil
}

func parseSaleDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid sale_date").WithDetails(map[string]any{"format": "2006-01-02"})
}

// SaleCreate records a sale and consumes its stock.
func SaleCreate(svc salesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		var payload saleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draft, err := payload.toDraft()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sale, err := svc.CreateSale(r.Context(), draft)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeSaleView(w, r, svc, logg, sale, http.StatusCreated)
	}
}

// SaleUpdate replaces a sale's header and line set.
func SaleUpdate(svc salesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		saleID, err := validators.ParsePathUUID(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload saleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draft, err := payload.toDraft()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sale, err := svc.UpdateSale(r.Context(), saleID, draft)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeSaleView(w, r, svc, logg, sale, http.StatusOK)
	}
}

type restoredLine struct {
	InventoryItemID uuid.UUID `json:"inventory_item_id"`
	Quantity        int       `json:"quantity"`
}

type saleDeletedResponse struct {
	ID       uuid.UUID      `json:"id"`
	SaleCode string         `json:"sale_code"`
	Restored []restoredLine `json:"restored"`
}

// SaleDelete removes a sale after returning its stock.
func SaleDelete(svc salesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		saleID, err := validators.ParsePathUUID(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sale, err := svc.DeleteSale(r.Context(), saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := saleDeletedResponse{ID: sale.ID, SaleCode: sale.SaleCode, Restored: make([]restoredLine, 0, len(sale.Items))}
		for _, item := range sale.Items {
			resp.Restored = append(resp.Restored, restoredLine{InventoryItemID: item.InventoryItemID, Quantity: item.Quantity})
		}
		responses.WriteSuccess(w, resp)
	}
}

// SaleDetail returns the joined read model for one sale.
func SaleDetail(svc salesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		saleID, err := validators.ParsePathUUID(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetSale(r.Context(), saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// SaleList pages through sales, newest sale date first.
func SaleList(svc salesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		input, err := parseSaleListInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListSales(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, list.Items, list.NextCursor)
	}
}

func parseSaleListInput(r *http.Request) (salesvc.ListSalesInput, error) {
	var input salesvc.ListSalesInput
	params, err := validators.ParsePagination(r)
	if err != nil {
		return input, err
	}
	input.Pagination = params

	if input.Filters.ClientID, err = validators.ParseQueryUUID(r, "client_id"); err != nil {
		return input, err
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status")
		}
		input.Filters.PaymentStatus = &status
	}
	if input.Filters.From, err = validators.ParseQueryDate(r, "from"); err != nil {
		return input, err
	}
	if input.Filters.To, err = validators.ParseQueryDate(r, "to"); err != nil {
		return input, err
	}
	if input.Filters.From != nil && input.Filters.To != nil && input.Filters.To.Before(*input.Filters.From) {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	return input, nil
}

// writeSaleView answers a write with the read model. The write already
// succeeded, so a failed read falls back to the header.
func writeSaleView(w http.ResponseWriter, r *http.Request, svc salesvc.Service, logg *logger.Logger, sale *models.Sale, status int) {
	view, err := svc.GetSale(r.Context(), sale.ID)
	if err != nil {
		if logg != nil {
			logg.Warn(logg.WithFields(r.Context(), map[string]any{"sale_id": sale.ID.String(), "error": err.Error()}), "sale written but read model unavailable")
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"id":             sale.ID,
			"sale_code":      sale.SaleCode,
			"total_with_tax": sale.TotalWithTax,
		})
		return
	}
	responses.WriteSuccessStatus(w, status, view)
}
