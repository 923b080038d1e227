package repository

import (
	"context"

	"go-inventory-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	FindByRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]model.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, recipientID string) (bool, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
}

type notificationRepo struct {
	db *gorm.DB
}

func NewNotificationRepo(db *gorm.DB) NotificationRepository {
	return &notificationRepo{db}
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepo) FindByRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]model.Notification, error) {
	var notifications []model.Notification
	q := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	err := q.Order("created_at DESC").Find(&notifications).Error
	return notifications, err
}

// MarkRead only touches the recipient's own notification.
func (r *notificationRepo) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("is_read", true)
	return res.RowsAffected == 1, res.Error
}

func (r *notificationRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}
