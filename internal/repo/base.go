// Package repo holds the gorm plumbing shared by the domain repositories.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base binds a repository to one model table. A Base built from a transaction
// handle scopes every query to that transaction.
type Base[T any] struct {
	db *gorm.DB
}

func NewBase[T any](db *gorm.DB) Base[T] {
	return Base[T]{db: db}
}

// DB returns the handle bound to ctx.
func (b Base[T]) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Tx returns a copy of b running on tx; a nil tx returns b unchanged.
func (b Base[T]) Tx(tx *gorm.DB) Base[T] {
	if tx == nil {
		return b
	}
	return Base[T]{db: tx}
}

// FindByID loads one row by primary key. Missing rows surface as
// gorm.ErrRecordNotFound.
func (b Base[T]) FindByID(ctx context.Context, id uuid.UUID) (*T, error) {
	var row T
	if err := b.DB(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateWhere applies updates to the rows matching query and reports how
// many changed, which callers use for compare-and-set transitions.
func (b Base[T]) UpdateWhere(ctx context.Context, updates map[string]any, query string, args ...any) (int64, error) {
	var model T
	res := b.DB(ctx).Model(&model).Where(query, args...).Updates(updates)
	return res.RowsAffected, res.Error
}
