package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventStockApplied      = "STOCK_APPLIED"
	EventApprovalCreated   = "APPROVAL_CREATED"
	EventApprovalApproved  = "APPROVAL_APPROVED"
	EventApprovalRejected  = "APPROVAL_REJECTED"
	EventApprovalCancelled = "APPROVAL_CANCELLED"
	EventApprovalExpired   = "APPROVAL_EXPIRED"
	EventImportCompleted   = "IMPORT_COMPLETED"
	EventItemCreated       = "ITEM_CREATED"
	EventLocationCreated   = "LOCATION_CREATED"
)

// AuditEvent is the stored form of everything handed to the audit sink.
type AuditEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	EventType   string    `gorm:"type:varchar(50);not null;index" json:"event_type"`
	Description string    `gorm:"type:text" json:"description"`
	Metadata    string    `gorm:"type:text" json:"metadata"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// Notification is a message addressed to one user.
type Notification struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	RecipientID     string    `gorm:"type:varchar(255);not null;index" json:"recipient_id"`
	Title           string    `gorm:"type:varchar(255);not null" json:"title"`
	Message         string    `gorm:"type:text" json:"message"`
	RelatedResource string    `gorm:"type:varchar(255)" json:"related_resource,omitempty"`
	IsRead          bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
}
