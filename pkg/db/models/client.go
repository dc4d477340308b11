package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is the buyer on a sale.
type Client struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	Company      string    `gorm:"column:company"`
	GSTIN        string    `gorm:"column:gstin"`
	Email        string    `gorm:"column:email"`
	Phone        string    `gorm:"column:phone"`
	AddressLine1 string    `gorm:"column:address_line1"`
	AddressLine2 string    `gorm:"column:address_line2"`
	City         string    `gorm:"column:city"`
	State        string    `gorm:"column:state"`
	PostalCode   string    `gorm:"column:postal_code"`
	Country      string    `gorm:"column:country"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Client) TableName() string { return "clients" }

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
