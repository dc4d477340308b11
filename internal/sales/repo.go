package sales

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

// headerColumns are the sale columns an update may rewrite. sale_code and
// created_at are fixed at insert.
var headerColumns = []string{
	"sale_date", "client_id", "payment_status",
	"items_total", "discount", "total_amount", "is_out_of_state",
	"cgst", "sgst", "igst", "total_with_tax", "profit", "notes", "updated_at",
}

// Repository is the sale store contract used by the coordinator.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertSale(ctx context.Context, sale *models.Sale) error
	InsertLineItems(ctx context.Context, items []models.SaleLineItem) error
	UpdateSale(ctx context.Context, sale *models.Sale) error
	DeleteSale(ctx context.Context, saleID uuid.UUID) error
	DeleteSaleLineItems(ctx context.Context, saleID uuid.UUID) error
	FindSale(ctx context.Context, saleID uuid.UUID) (*models.Sale, error)
	ListSales(ctx context.Context, input ListSalesInput) ([]models.Sale, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertSale(ctx context.Context, sale *models.Sale) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(sale).Error
}

func (r *repository) InsertLineItems(ctx context.Context, items []models.SaleLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) UpdateSale(ctx context.Context, sale *models.Sale) error {
	res := r.db.WithContext(ctx).
		Model(&models.Sale{ID: sale.ID}).
		Select(headerColumns).
		Omit(clause.Associations).
		Updates(sale)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeleteSale(ctx context.Context, saleID uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", saleID).Delete(&models.Sale{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeleteSaleLineItems(ctx context.Context, saleID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("sale_id = ?", saleID).Delete(&models.SaleLineItem{}).Error
}

func (r *repository) FindSale(ctx context.Context, saleID uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", saleID).
		First(&sale).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *repository) ListSales(ctx context.Context, input ListSalesInput) ([]models.Sale, error) {
	q := r.db.WithContext(ctx).Model(&models.Sale{})
	f := input.Filters
	if f.ClientID != nil {
		q = q.Where("client_id = ?", *f.ClientID)
	}
	if f.PaymentStatus != nil {
		q = q.Where("payment_status = ?", *f.PaymentStatus)
	}
	if f.From != nil {
		q = q.Where("sale_date >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("sale_date < ?", f.To.UTC())
	}
	keyset, err := pagination.Keyset("sale_date", input.Pagination)
	if err != nil {
		return nil, err
	}
	var rows []models.Sale
	if err := q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Scopes(keyset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
