package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by read-side repositories that share one connection and
// may be rebound to a caller's transaction.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bind returns a copy running on tx; a nil tx keeps the current connection.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Writer returns a session that skips model hooks, for bulk column fixes
// where the hook-derived fields are the thing being written.
func (b Base) Writer(ctx context.Context) *gorm.DB {
	return b.DB(ctx).Session(&gorm.Session{SkipHooks: true})
}
