package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gemtrade-backend/api/responses"
	"github.com/angelmondragon/gemtrade-backend/api/validators"
	inventorysvc "github.com/angelmondragon/gemtrade-backend/internal/inventory"
	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
)

type createItemRequest struct {
	GemCode       string           `json:"gem_code" validate:"required,max=64"`
	StoneType     string           `json:"stone_type" validate:"required,max=64"`
	Grade         string           `json:"grade,omitempty" validate:"max=32"`
	Origin        string           `json:"origin,omitempty" validate:"max=64"`
	Shape         string           `json:"shape,omitempty" validate:"max=32"`
	Color         string           `json:"color,omitempty" validate:"max=32"`
	Carat         decimal.Decimal  `json:"carat" validate:"gt=0"`
	PricePerCarat decimal.Decimal  `json:"price_per_carat" validate:"gte=0"`
	CostPerCarat  *decimal.Decimal `json:"cost_per_carat,omitempty"`
	Quantity      int              `json:"quantity" validate:"min=0"`
	CertificateNo *string          `json:"certificate_no,omitempty"`
	SupplierID    *uuid.UUID       `json:"supplier_id,omitempty"`
}

func (r createItemRequest) toInput() inventorysvc.CreateItemInput {
	input := inventorysvc.CreateItemInput{
		GemCode:       strings.TrimSpace(r.GemCode),
		StoneType:     strings.TrimSpace(r.StoneType),
		Grade:         strings.TrimSpace(r.Grade),
		Origin:        strings.TrimSpace(r.Origin),
		Shape:         strings.TrimSpace(r.Shape),
		Color:         strings.TrimSpace(r.Color),
		Carat:         r.Carat,
		PricePerCarat: r.PricePerCarat,
		Quantity:      r.Quantity,
		CertificateNo: r.CertificateNo,
		SupplierID:    r.SupplierID,
	}
	if r.CostPerCarat != nil {
		input.CostPerCarat = decimal.NewNullDecimal(*r.CostPerCarat)
	}
	return input
}

type updateItemRequest struct {
	StoneType     *string          `json:"stone_type,omitempty" validate:"omitempty,max=64"`
	Grade         *string          `json:"grade,omitempty" validate:"omitempty,max=32"`
	Origin        *string          `json:"origin,omitempty" validate:"omitempty,max=64"`
	Shape         *string          `json:"shape,omitempty" validate:"omitempty,max=32"`
	Color         *string          `json:"color,omitempty" validate:"omitempty,max=32"`
	Carat         *decimal.Decimal `json:"carat,omitempty"`
	PricePerCarat *decimal.Decimal `json:"price_per_carat,omitempty"`
	CostPerCarat  *decimal.Decimal `json:"cost_per_carat,omitempty"`
	CertificateNo *string          `json:"certificate_no,omitempty"`
}

type adjustStockRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=256"`
}

type movementResponse struct {
	ID             uuid.UUID          `json:"id"`
	SaleID         *uuid.UUID         `json:"sale_id,omitempty"`
	Type           enums.MovementType `json:"type"`
	Delta          int                `json:"delta"`
	QuantityBefore int                `json:"quantity_before"`
	QuantityAfter  int                `json:"quantity_after"`
	Reason         string             `json:"reason,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

func newMovementResponse(m models.InventoryMovement) movementResponse {
	return movementResponse{
		ID:             m.ID,
		SaleID:         m.SaleID,
		Type:           m.Type,
		Delta:          m.Delta,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		Reason:         m.Reason,
		CreatedAt:      m.CreatedAt,
	}
}

func InventoryCreate(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var payload createItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.CreateItem(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func InventoryDetail(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		itemID, err := validators.ParsePathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.GetItem(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func InventoryByCode(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		code := strings.TrimSpace(chi.URLParam(r, "gemCode"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gem code is required"))
			return
		}

		item, err := svc.GetItemByCode(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func InventoryList(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available, err := validators.ParseQueryBool(r, "available")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListItems(r.Context(), inventorysvc.ListItemsInput{
			Filters: inventorysvc.ListFilters{
				StoneType: strings.TrimSpace(r.URL.Query().Get("stone_type")),
				Available: available,
			},
			Pagination: params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, list.Items, list.NextCursor)
	}
}

func InventoryUpdate(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		itemID, err := validators.ParsePathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Unknown fields are rejected, so a stray "quantity" is a 400.
		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.UpdateItem(r.Context(), itemID, inventorysvc.UpdateItemInput{
			StoneType:     payload.StoneType,
			Grade:         payload.Grade,
			Origin:        payload.Origin,
			Shape:         payload.Shape,
			Color:         payload.Color,
			Carat:         payload.Carat,
			PricePerCarat: payload.PricePerCarat,
			CostPerCarat:  payload.CostPerCarat,
			CertificateNo: payload.CertificateNo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func InventoryAdjust(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		itemID, err := validators.ParsePathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.AdjustStock(r.Context(), itemID, inventorysvc.AdjustStockInput{
			Delta:  payload.Delta,
			Reason: strings.TrimSpace(payload.Reason),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func InventoryMovements(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		itemID, err := validators.ParsePathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListMovements(r.Context(), itemID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]movementResponse, 0, len(list.Items))
		for _, m := range list.Items {
			out = append(out, newMovementResponse(m))
		}
		responses.WritePage(w, out, list.NextCursor)
	}
}
