// Package clients holds the buyer records sales point at.
package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

type Service interface {
	CreateClient(ctx context.Context, input CreateClientInput) (*models.Client, error)
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	ListClients(ctx context.Context, query string, params pagination.Params) (*ClientList, error)
}

type CreateClientInput struct {
	Name         string
	Company      string
	GSTIN        string
	Email        string
	Phone        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string
}

type ClientList struct {
	Items      []models.Client `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

var emailValidator = validator.New()

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("client repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateClient(ctx context.Context, input CreateClientInput) (*models.Client, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	email := strings.TrimSpace(input.Email)
	if email != "" {
		if err := emailValidator.Var(email, "email"); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid email")
		}
	}
	now := time.Now().UTC()
	client := &models.Client{
		Name:         name,
		Company:      strings.TrimSpace(input.Company),
		GSTIN:        strings.ToUpper(strings.TrimSpace(input.GSTIN)),
		Email:        email,
		Phone:        strings.TrimSpace(input.Phone),
		AddressLine1: input.AddressLine1,
		AddressLine2: input.AddressLine2,
		City:         input.City,
		State:        input.State,
		PostalCode:   input.PostalCode,
		Country:      input.Country,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert client")
	}
	return client, nil
}

func (s *service) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load client")
	}
	return client, nil
}

func (s *service) ListClients(ctx context.Context, query string, params pagination.Params) (*ClientList, error) {
	rows, err := s.repo.List(ctx, query, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list clients")
	}
	page, next := pagination.Page(rows, params.Limit, func(c models.Client) pagination.Cursor {
		return pagination.Cursor{At: c.CreatedAt, ID: c.ID}
	})
	if page == nil {
		page = []models.Client{}
	}
	return &ClientList{Items: page, NextCursor: next}, nil
}
