package repository

import (
	"context"
	"strings"

	"go-inventory-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LocationRepository interface {
	Create(ctx context.Context, location *model.Location) error
	FindAll(ctx context.Context) ([]model.Location, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Location, error)
	FindByCode(ctx context.Context, code string) (*model.Location, error)
	FindByName(ctx context.Context, name string) (*model.Location, error)
}

type locationRepo struct {
	db *gorm.DB
}

func NewLocationRepo(db *gorm.DB) LocationRepository {
	return &locationRepo{db}
}

func (r *locationRepo) Create(ctx context.Context, location *model.Location) error {
	return r.db.WithContext(ctx).Create(location).Error
}

func (r *locationRepo) FindAll(ctx context.Context) ([]model.Location, error) {
	var locations []model.Location
	err := r.db.WithContext(ctx).Order("code ASC").Find(&locations).Error
	return locations, err
}

func (r *locationRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Location, error) {
	var location model.Location
	if err := r.db.WithContext(ctx).First(&location, "id = ?", id).Error; err != nil {
		return nil, notFound(err, model.ErrLocationNotFound)
	}
	return &location, nil
}

func (r *locationRepo) FindByCode(ctx context.Context, code string) (*model.Location, error) {
	var location model.Location
	if err := r.db.WithContext(ctx).First(&location, "code = ?", strings.TrimSpace(code)).Error; err != nil {
		return nil, notFound(err, model.ErrLocationNotFound)
	}
	return &location, nil
}

// FindByName returns the oldest location with that name, case-insensitively.
// Names are not unique; imports use this to resolve parent references.
func (r *locationRepo) FindByName(ctx context.Context, name string) (*model.Location, error) {
	var location model.Location
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Order("created_at ASC").
		First(&location).Error
	if err != nil {
		return nil, notFound(err, model.ErrLocationNotFound)
	}
	return &location, nil
}
