package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestInventoryItemDerive(t *testing.T) {
	item := &InventoryItem{
		Carat:         decimal.RequireFromString("2.5"),
		PricePerCarat: decimal.RequireFromString("1200"),
		Quantity:      3,
	}
	item.Derive()
	assert.True(t, item.IsAvailable)
	assert.True(t, item.TotalPrice.Equal(decimal.RequireFromString("3000")))

	item.Quantity = 0
	item.Derive()
	assert.False(t, item.IsAvailable)

	item.Quantity = -2
	item.Derive()
	assert.Equal(t, 0, item.Quantity)
	assert.False(t, item.IsAvailable)
}
