package service

import (
	"context"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"

	"github.com/google/uuid"
)

// NotificationService is the reader side of the notifier: a user's inbox
// plus the audit trail for privileged viewers.
type NotificationService interface {
	List(ctx context.Context, recipientID string, unreadOnly bool) ([]model.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	AuditTrail(ctx context.Context, eventType string, limit int) ([]model.AuditEvent, error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	auditRepo repository.AuditRepository
}

func NewNotificationService(repo repository.NotificationRepository, auditRepo repository.AuditRepository) NotificationService {
	return &notificationService{repo: repo, auditRepo: auditRepo}
}

func (s *notificationService) List(ctx context.Context, recipientID string, unreadOnly bool) ([]model.Notification, error) {
	return s.repo.FindByRecipient(ctx, recipientID, unreadOnly)
}

func (s *notificationService) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error {
	ok, err := s.repo.MarkRead(ctx, id, recipientID)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrNotificationNotFound
	}
	return nil
}

func (s *notificationService) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

func (s *notificationService) AuditTrail(ctx context.Context, eventType string, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.auditRepo.FindAll(ctx, eventType, limit)
}
