package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
)

func TestFindQuantityDriftComparesNewestMovement(t *testing.T) {
	db := newLedgerDB(t)
	clean := seedItem(t, db, "EMR-001", 4)
	drifted := seedItem(t, db, "RUBY-001", 5)
	seedItem(t, db, "SAPH-001", 2) // never moved, not checked

	adj := newTestAdjuster(t, NewRepository(db), nil)
	for _, item := range []*models.InventoryItem{clean, drifted} {
		_, err := adj.ApplyDelta(context.Background(), nil, Delta{ItemID: item.ID, Quantity: -1, Type: enums.MovementTypeAdjustment, Reason: "count"})
		require.NoError(t, err)
	}
	require.NoError(t, db.Model(&models.InventoryItem{}).Where("id = ?", drifted.ID).UpdateColumn("quantity", 9).Error)

	drift, err := NewAuditRepository(db).FindQuantityDrift(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, drifted.ID, drift[0].ItemID)
	assert.Equal(t, "RUBY-001", drift[0].GemCode)
	assert.Equal(t, 9, drift[0].Quantity)
	assert.Equal(t, 4, drift[0].LedgerQuantity)
}

func TestFindQuantityDriftBreaksTimestampTiesByVersion(t *testing.T) {
	db := newLedgerDB(t)
	item := seedItem(t, db, "RUBY-001", 5)
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	// A consume then a restore inside one unit of work, stamped with the
	// same instant. The older row sorts last by id.
	older := models.InventoryMovement{
		ID:              uuid.MustParse("ffffffff-ffff-4fff-bfff-ffffffffffff"),
		InventoryItemID: item.ID,
		Type:            enums.MovementTypeSale,
		Delta:           -2,
		QuantityBefore:  5,
		QuantityAfter:   3,
		ItemVersion:     1,
		CreatedAt:       at,
	}
	newer := models.InventoryMovement{
		ID:              uuid.MustParse("00000000-0000-4000-8000-000000000001"),
		InventoryItemID: item.ID,
		Type:            enums.MovementTypeRestore,
		Delta:           2,
		QuantityBefore:  3,
		QuantityAfter:   5,
		ItemVersion:     2,
		CreatedAt:       at,
	}
	require.NoError(t, db.Create(&older).Error)
	require.NoError(t, db.Create(&newer).Error)

	drift, err := NewAuditRepository(db).FindQuantityDrift(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestRepairAvailabilityRederivesFlag(t *testing.T) {
	db := newLedgerDB(t)
	stocked := seedItem(t, db, "RUBY-001", 3)
	empty := seedItem(t, db, "EMR-001", 0)
	require.NoError(t, db.Model(&models.InventoryItem{}).Where("id = ?", stocked.ID).UpdateColumn("is_available", false).Error)
	require.NoError(t, db.Model(&models.InventoryItem{}).Where("id = ?", empty.ID).UpdateColumn("is_available", true).Error)

	changed, err := NewAuditRepository(db).RepairAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	var got models.InventoryItem
	require.NoError(t, db.First(&got, "id = ?", stocked.ID).Error)
	assert.True(t, got.IsAvailable)
	require.NoError(t, db.First(&got, "id = ?", empty.ID).Error)
	assert.False(t, got.IsAvailable)
}
