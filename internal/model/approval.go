package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ApprovalRequestType string

const (
	RequestLargeStockOut   ApprovalRequestType = "large_stock_out"
	RequestLargeStockIn    ApprovalRequestType = "large_stock_in"
	RequestLargeAdjustment ApprovalRequestType = "large_adjustment"
)

// RequestTypeFor maps a ledger action to the approval request type guarding it.
func RequestTypeFor(action ActionClass) ApprovalRequestType {
	switch action {
	case ActionStockIn:
		return RequestLargeStockIn
	case ActionAdjustment:
		return RequestLargeAdjustment
	}
	return RequestLargeStockOut
}

type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalExpired   ApprovalStatus = "expired"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

func (s ApprovalStatus) IsTerminal() bool {
	return s != ApprovalPending
}

// ApprovalMetadata is the replay context captured when the request is filed.
type ApprovalMetadata struct {
	Action     ActionClass `json:"action"`
	Purpose    string      `json:"purpose,omitempty"`
	LocationID *uuid.UUID  `json:"location_id,omitempty"`
	Recipient  string      `json:"recipient,omitempty"`
	Notes      string      `json:"notes,omitempty"`
}

// ApprovalRequest holds a ledger action that exceeded a policy threshold.
// At most one pending row may exist per (RequestType, ItemID); the partial
// unique index created by the repository migration enforces it.
type ApprovalRequest struct {
	BaseModel
	RequestType   ApprovalRequestType `gorm:"type:varchar(30);not null;index" json:"request_type"`
	RequesterID   string              `gorm:"type:varchar(255);not null;index" json:"requester_id"`
	ItemID        uuid.UUID           `gorm:"type:uuid;not null;index" json:"item_id"`
	Item          *Item               `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	Quantity      int64               `gorm:"not null" json:"quantity"`
	Threshold     int64               `gorm:"not null" json:"threshold"`
	Reason        string              `gorm:"type:text" json:"reason"`
	Status        ApprovalStatus      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Metadata      string              `gorm:"type:text;not null" json:"metadata"`
	ReviewedBy    *string             `gorm:"type:varchar(255)" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time          `json:"reviewed_at,omitempty"`
	ReviewNote    string              `gorm:"type:text" json:"review_note,omitempty"`
	TransactionID *uuid.UUID          `gorm:"type:uuid" json:"transaction_id,omitempty"`
}

// SetMetadata serializes the replay context into the Metadata column.
func (r *ApprovalRequest) SetMetadata(m ApprovalMetadata) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	r.Metadata = string(b)
	return nil
}

// ReplayMetadata decodes the replay context.
func (r *ApprovalRequest) ReplayMetadata() (ApprovalMetadata, error) {
	var m ApprovalMetadata
	if r.Metadata == "" {
		return m, nil
	}
	err := json.Unmarshal([]byte(r.Metadata), &m)
	return m, err
}

// ExpiredAt reports whether the request has outlived ttl at now.
func (r *ApprovalRequest) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return r.Status == ApprovalPending && now.Sub(r.CreatedAt) > ttl
}
