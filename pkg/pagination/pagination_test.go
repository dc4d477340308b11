package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 30, 0, 123, time.UTC)
	id := uuid.New()

	parsed, err := ParseCursor(EncodeCursor(Cursor{At: at, ID: id}))
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.True(t, parsed.At.Equal(at))
	assert.Equal(t, id, parsed.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	c, err := ParseCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = ParseCursor("not-base64!")
	assert.Error(t, err)
}

func TestEncodeCursorIsQuerySafe(t *testing.T) {
	for i := 0; i < 50; i++ {
		token := EncodeCursor(Cursor{At: time.Now().Add(time.Duration(i) * time.Nanosecond), ID: uuid.New()})
		assert.NotContains(t, token, "+")
		assert.NotContains(t, token, "/")
		assert.NotContains(t, token, "=")
	}
}

func TestPageReturnsNextCursorOnlyWhenMoreRows(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	type row struct {
		at time.Time
		id uuid.UUID
	}
	key := func(r row) Cursor { return Cursor{At: r.at, ID: r.id} }
	rows := []row{{at, uuid.New()}, {at.Add(-time.Hour), uuid.New()}, {at.Add(-2 * time.Hour), uuid.New()}}

	page, next := Page(rows, 2, key)
	require.Len(t, page, 2)
	cursor, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, cursor.ID)

	page, next = Page(rows[:1], 2, key)
	assert.Len(t, page, 1)
	assert.Empty(t, next)
}

type movementRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
}

func TestKeysetWalksPagesWithoutGapsOrRepeats(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:pagination_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&movementRow{}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		// two rows share each timestamp so the id tiebreak is exercised
		require.NoError(t, db.Create(&movementRow{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Minute)}).Error)
	}

	seen := map[uuid.UUID]bool{}
	params := Params{Limit: 2}
	for pages := 0; pages < 5; pages++ {
		keyset, err := Keyset("created_at", params)
		require.NoError(t, err)
		var rows []movementRow
		require.NoError(t, db.Scopes(keyset).Find(&rows).Error)
		page, next := Page(rows, params.Limit, func(r movementRow) Cursor { return Cursor{At: r.CreatedAt, ID: r.ID} })
		for _, r := range page {
			assert.False(t, seen[r.ID], "row returned twice")
			seen[r.ID] = true
		}
		if next == "" {
			break
		}
		params.Cursor = next
	}
	assert.Len(t, seen, 5)

	_, err = Keyset("created_at", Params{Cursor: "%%%"})
	assert.Error(t, err)
}
