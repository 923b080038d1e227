package repository

import (
	"context"

	"go-inventory-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApprovalFilter struct {
	Status      model.ApprovalStatus
	RequesterID string
	ItemID      *uuid.UUID
	Limit       int
}

type ApprovalRepository interface {
	Create(ctx context.Context, tx *gorm.DB, req *model.ApprovalRequest) error
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.ApprovalRequest, error)
	FindPending(ctx context.Context, tx *gorm.DB, requestType model.ApprovalRequestType, itemID uuid.UUID) (*model.ApprovalRequest, error)
	FindAll(ctx context.Context, filter ApprovalFilter) ([]model.ApprovalRequest, error)
	Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, to model.ApprovalStatus, fields map[string]interface{}) (bool, error)
}

type approvalRepo struct {
	db *gorm.DB
}

func NewApprovalRepo(db *gorm.DB) ApprovalRepository {
	return &approvalRepo{db}
}

// Create inserts a pending request. A second pending row for the same
// (type, item) violates idx_approval_one_pending and surfaces as
// gorm.ErrDuplicatedKey.
func (r *approvalRepo) Create(ctx context.Context, tx *gorm.DB, req *model.ApprovalRequest) error {
	return conn(ctx, r.db, tx).Create(req).Error
}

func (r *approvalRepo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := conn(ctx, r.db, tx).Preload("Item").First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err, model.ErrRequestNotFound)
	}
	return &req, nil
}

// FindPending returns the pending request for the target, expired or not.
func (r *approvalRepo) FindPending(ctx context.Context, tx *gorm.DB, requestType model.ApprovalRequestType, itemID uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := conn(ctx, r.db, tx).
		Where("request_type = ? AND item_id = ? AND status = ?", requestType, itemID, model.ApprovalPending).
		First(&req).Error
	if err != nil {
		return nil, notFound(err, model.ErrRequestNotFound)
	}
	return &req, nil
}

func (r *approvalRepo) FindAll(ctx context.Context, filter ApprovalFilter) ([]model.ApprovalRequest, error) {
	var reqs []model.ApprovalRequest
	q := r.db.WithContext(ctx).Preload("Item")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.RequesterID != "" {
		q = q.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.ItemID != nil {
		q = q.Where("item_id = ?", *filter.ItemID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	err := q.Order("created_at DESC").Find(&reqs).Error
	return reqs, err
}

// Transition moves a pending request to status to, setting fields alongside.
// It reports false when the request was no longer pending, which is how
// concurrent reviewers and expiry sweeps lose the race.
func (r *approvalRepo) Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, to model.ApprovalStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := conn(ctx, r.db, tx).Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ?", id, model.ApprovalPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
