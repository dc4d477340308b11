package clients

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, client *models.Client) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Client, error)
	List(ctx context.Context, query string, params pagination.Params) ([]models.Client, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, client *models.Client) error {
	return r.db.WithContext(ctx).Create(client).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Client, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Client
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, query string, params pagination.Params) ([]models.Client, error) {
	q := r.db.WithContext(ctx).Model(&models.Client{})
	if term := strings.ToLower(strings.TrimSpace(query)); term != "" {
		like := "%" + term + "%"
		q = q.Where("lower(name) LIKE ? OR lower(company) LIKE ?", like, like)
	}
	keyset, err := pagination.Keyset("created_at", params)
	if err != nil {
		return nil, err
	}
	var rows []models.Client
	if err := q.Scopes(keyset).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
