package repository

import (
	"context"
	"strings"

	"go-inventory-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ItemFilter struct {
	Search       string
	CategoryID   *uuid.UUID
	LowStockOnly bool
}

type ItemRepository interface {
	Create(ctx context.Context, tx *gorm.DB, item *model.Item) error
	FindAll(ctx context.Context, filter ItemFilter) ([]model.Item, error)
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Item, error)
	FindByCode(ctx context.Context, tx *gorm.DB, code string) (*model.Item, error)
	UpdateBalance(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion, newStock int64, updatedBy string) error
}

type itemRepo struct {
	db *gorm.DB
}

func NewItemRepo(db *gorm.DB) ItemRepository {
	return &itemRepo{db}
}

func (r *itemRepo) Create(ctx context.Context, tx *gorm.DB, item *model.Item) error {
	return conn(ctx, r.db, tx).Create(item).Error
}

func (r *itemRepo) FindAll(ctx context.Context, filter ItemFilter) ([]model.Item, error) {
	var items []model.Item
	q := r.db.WithContext(ctx).Preload("Category")
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ?", like, like)
	}
	if filter.CategoryID != nil {
		q = q.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.LowStockOnly {
		q = q.Where("current_stock < minimum_stock")
	}
	err := q.Order("code ASC").Find(&items).Error
	return items, err
}

func (r *itemRepo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Item, error) {
	var item model.Item
	if err := conn(ctx, r.db, tx).First(&item, "id = ?", id).Error; err != nil {
		return nil, notFound(err, model.ErrItemNotFound)
	}
	return &item, nil
}

func (r *itemRepo) FindByCode(ctx context.Context, tx *gorm.DB, code string) (*model.Item, error) {
	var item model.Item
	if err := conn(ctx, r.db, tx).First(&item, "code = ?", strings.TrimSpace(code)).Error; err != nil {
		return nil, notFound(err, model.ErrItemNotFound)
	}
	return &item, nil
}

// UpdateBalance writes the new balance only if the row still carries
// expectedVersion, bumping the version. A stale version matches no row and
// yields model.ErrPersistenceConflict.
func (r *itemRepo) UpdateBalance(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion, newStock int64, updatedBy string) error {
	res := conn(ctx, r.db, tx).Model(&model.Item{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"current_stock": newStock,
			"version":       gorm.Expr("version + 1"),
			"updated_by":    updatedBy,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrPersistenceConflict
	}
	return nil
}
