package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ActionClass string

const (
	ActionStockIn    ActionClass = "stock_in"
	ActionStockOut   ActionClass = "stock_out"
	ActionAdjustment ActionClass = "adjustment"
)

// ParseActionClass accepts the canonical names plus the short forms used in
// spreadsheets ("in", "out", "adjust").
func ParseActionClass(s string) (ActionClass, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stock_in", "in", "stock in", "receive":
		return ActionStockIn, true
	case "stock_out", "out", "stock out", "issue":
		return ActionStockOut, true
	case "adjustment", "adjust", "set":
		return ActionAdjustment, true
	}
	return "", false
}

func (a ActionClass) Valid() bool {
	switch a {
	case ActionStockIn, ActionStockOut, ActionAdjustment:
		return true
	}
	return false
}

// IsOutbound reports whether the action removes stock.
func (a ActionClass) IsOutbound() bool {
	return a == ActionStockOut
}

// StockTransaction is one immutable ledger row. For adjustments Quantity holds
// the new absolute balance; Delta always holds the signed change. ItemVersion
// is the item's version after this row was applied and orders the chain.
type StockTransaction struct {
	ID            uuid.UUID   `gorm:"type:uuid;primary_key;" json:"id"`
	ItemID        uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_stock_tx_item_version" json:"item_id"`
	ItemVersion   int64       `gorm:"not null;uniqueIndex:idx_stock_tx_item_version" json:"item_version"`
	Item          *Item       `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	Action        ActionClass `gorm:"type:varchar(20);not null" json:"action"`
	Quantity      int64       `gorm:"not null" json:"quantity"`
	Delta         int64       `gorm:"not null" json:"delta"`
	BalanceBefore int64       `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64       `gorm:"not null" json:"balance_after"`
	LocationID    *uuid.UUID  `gorm:"type:uuid" json:"location_id,omitempty"`
	Reason        string      `gorm:"type:text" json:"reason,omitempty"`
	Notes         string      `gorm:"type:text" json:"notes,omitempty"`
	Recipient     string      `gorm:"type:varchar(255)" json:"recipient,omitempty"`
	ApprovalID    *uuid.UUID  `gorm:"type:uuid" json:"approval_id,omitempty"`
	ActorID       string      `gorm:"type:varchar(255);not null" json:"actor_id"`
	CreatedAt     time.Time   `gorm:"index" json:"created_at"`
}

func (StockTransaction) TableName() string {
	return "stock_transactions"
}

// EffectiveDelta is the signed balance change implied by action and quantity
// against balanceBefore.
func EffectiveDelta(action ActionClass, quantity, balanceBefore int64) int64 {
	switch action {
	case ActionStockIn:
		return quantity
	case ActionStockOut:
		return -quantity
	case ActionAdjustment:
		return quantity - balanceBefore
	}
	return 0
}

// Consistent checks the row against its own arithmetic.
func (t *StockTransaction) Consistent() bool {
	return t.BalanceAfter == t.BalanceBefore+t.Delta &&
		t.Delta == EffectiveDelta(t.Action, t.Quantity, t.BalanceBefore)
}

// ApplyAction computes the signed delta and resulting balance for action.
// ok is false when either value would overflow int64.
func ApplyAction(action ActionClass, quantity, before int64) (delta, after int64, ok bool) {
	if action == ActionAdjustment {
		delta = quantity - before
		if (before < 0 && delta < quantity) || (before > 0 && delta > quantity) {
			return 0, 0, false
		}
		return delta, quantity, true
	}
	delta = EffectiveDelta(action, quantity, before)
	after = before + delta
	if (delta > 0 && after < before) || (delta < 0 && after > before) {
		return 0, 0, false
	}
	return delta, after, true
}
