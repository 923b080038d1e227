package service

import (
	"context"
	"encoding/json"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"

	"go.uber.org/zap"
)

// Publisher pushes realtime messages to connected clients. *ws.Hub
// implements it; an empty recipient broadcasts.
type Publisher interface {
	Publish(recipient, eventType string, data interface{})
}

// Notifier delivers a message to one user. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, recipientID, title, message, related string)
}

// AuditSink records domain events. Recording is best effort.
type AuditSink interface {
	RecordEvent(ctx context.Context, eventType, description string, metadata map[string]interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, interface{}) {}

type storedNotifier struct {
	repo repository.NotificationRepository
	pub  Publisher
	log  *zap.Logger
}

// NewNotifier persists notifications and pushes them to the recipient's
// websocket connections. pub may be nil.
func NewNotifier(repo repository.NotificationRepository, pub Publisher, log *zap.Logger) Notifier {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &storedNotifier{repo: repo, pub: pub, log: log}
}

func (n *storedNotifier) Notify(ctx context.Context, recipientID, title, message, related string) {
	notification := &model.Notification{
		RecipientID:     recipientID,
		Title:           title,
		Message:         message,
		RelatedResource: related,
	}
	if err := n.repo.Create(ctx, notification); err != nil {
		n.log.Warn("notify: store notification",
			zap.String("recipient", recipientID),
			zap.String("title", title),
			zap.Error(err))
		return
	}
	n.pub.Publish(recipientID, "notification", notification)
}

type storedAuditSink struct {
	repo repository.AuditRepository
	log  *zap.Logger
}

func NewAuditSink(repo repository.AuditRepository, log *zap.Logger) AuditSink {
	return &storedAuditSink{repo: repo, log: log}
}

func (a *storedAuditSink) RecordEvent(ctx context.Context, eventType, description string, metadata map[string]interface{}) {
	var meta string
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			a.log.Warn("audit: marshal metadata", zap.String("event", eventType), zap.Error(err))
		} else {
			meta = string(b)
		}
	}
	event := &model.AuditEvent{EventType: eventType, Description: description, Metadata: meta}
	if err := a.repo.Create(ctx, event); err != nil {
		a.log.Warn("audit: store event", zap.String("event", eventType), zap.Error(err))
	}
}
