package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gemtrade-backend/api/responses"
	"github.com/angelmondragon/gemtrade-backend/api/validators"
	clientsvc "github.com/angelmondragon/gemtrade-backend/internal/clients"
	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
)

type createClientRequest struct {
	Name         string `json:"name" validate:"required,max=128"`
	Company      string `json:"company,omitempty" validate:"max=128"`
	GSTIN        string `json:"gstin,omitempty" validate:"omitempty,len=15"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	Phone        string `json:"phone,omitempty" validate:"max=32"`
	AddressLine1 string `json:"address_line1,omitempty"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country,omitempty"`
}

type clientResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Company      string    `json:"company,omitempty"`
	GSTIN        string    `json:"gstin,omitempty"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	AddressLine1 string    `json:"address_line1,omitempty"`
	AddressLine2 string    `json:"address_line2,omitempty"`
	City         string    `json:"city,omitempty"`
	State        string    `json:"state,omitempty"`
	PostalCode   string    `json:"postal_code,omitempty"`
	Country      string    `json:"country,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newClientResponse(c *models.Client) clientResponse {
	return clientResponse{
		ID:           c.ID,
		Name:         c.Name,
		Company:      c.Company,
		GSTIN:        c.GSTIN,
		Email:        c.Email,
		Phone:        c.Phone,
		AddressLine1: c.AddressLine1,
		AddressLine2: c.AddressLine2,
		City:         c.City,
		State:        c.State,
		PostalCode:   c.PostalCode,
		Country:      c.Country,
		CreatedAt:    c.CreatedAt,
	}
}

func ClientCreate(svc clientsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}

		var p createClientRequest
		if err := validators.DecodeJSONBody(r, &p); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		client, err := svc.CreateClient(r.Context(), clientsvc.CreateClientInput{
			Name:         p.Name,
			Company:      p.Company,
			GSTIN:        p.GSTIN,
			Email:        p.Email,
			Phone:        p.Phone,
			AddressLine1: p.AddressLine1,
			AddressLine2: p.AddressLine2,
			City:         p.City,
			State:        p.State,
			PostalCode:   p.PostalCode,
			Country:      p.Country,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newClientResponse(client))
	}
}

func ClientDetail(svc clientsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}

		clientID, err := validators.ParsePathUUID(r, "clientId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		client, err := svc.GetClient(r.Context(), clientID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newClientResponse(client))
	}
}

func ClientList(svc clientsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListClients(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]clientResponse, 0, len(list.Items))
		for i := range list.Items {
			out = append(out, newClientResponse(&list.Items[i]))
		}
		responses.WritePage(w, out, list.NextCursor)
	}
}
