package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// conn picks the caller's transaction when one is given, so the same
// repository method serves both standalone and composed writes.
func conn(ctx context.Context, db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// notFound maps gorm's missing-row error to the domain sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
