// Package policy classifies proposed ledger actions against the configured
// business rules. Nothing here touches storage; callers decide what to do
// with a Decision.
package policy

import (
	"fmt"
	"math"

	"go-inventory-ledger/internal/model"
)

// Purpose refines an action class for reason rules.
type Purpose string

const (
	PurposeIssue   Purpose = "issue"
	PurposeReturn  Purpose = "return"
	PurposeAdjust  Purpose = "adjust"
	PurposeConsume Purpose = "consume"
	PurposeReceive Purpose = "receive"
)

// DefaultPurpose is used when a caller does not say why stock moves.
func DefaultPurpose(action model.ActionClass) Purpose {
	switch action {
	case model.ActionStockOut:
		return PurposeIssue
	case model.ActionAdjustment:
		return PurposeAdjust
	}
	return PurposeReceive
}

// allowedPurposes lists what each action class may declare. Reason rules are
// keyed by purpose, so a purpose from another class must never be accepted.
var allowedPurposes = map[model.ActionClass][]Purpose{
	model.ActionStockIn:    {PurposeReceive, PurposeReturn},
	model.ActionStockOut:   {PurposeIssue, PurposeConsume},
	model.ActionAdjustment: {PurposeAdjust},
}

// Fits reports whether purpose may be declared for action.
func Fits(action model.ActionClass, purpose Purpose) bool {
	for _, p := range allowedPurposes[action] {
		if p == purpose {
			return true
		}
	}
	return false
}

type NegativeStock struct {
	Allowed bool
	// MaxThreshold bounds how far below zero stock may go when Allowed.
	// Sign is ignored: 10 and -10 both mean "not below -10".
	MaxThreshold *int64
}

// Set is the process-wide policy. Treat it as immutable once built.
type Set struct {
	NegativeStock      NegativeStock
	ReasonRequired     map[Purpose]bool
	ApprovalThresholds map[model.ActionClass]int64
}

// Default allows no negative stock, requires no reasons or approvals.
func Default() Set {
	return Set{
		ReasonRequired:     map[Purpose]bool{},
		ApprovalThresholds: map[model.ActionClass]int64{},
	}
}

// Provider hands out the current Set. Implementations may swap the Set
// between calls but never mutate one already returned.
type Provider interface {
	Current() Set
}

// Static is a Provider that always returns the same Set.
type Static Set

func (s Static) Current() Set { return Set(s) }

// Proposal is a ledger action being considered.
type Proposal struct {
	Action   model.ActionClass
	Quantity int64
	Purpose  Purpose
}

// Decision is the classification of a Proposal. Blocked and Overflows are
// hard stops; the rest tell the caller what else it must collect.
type Decision struct {
	Action           model.ActionClass
	Purpose          Purpose
	Quantity         int64
	RequiresReason   bool
	RequiresApproval bool
	Threshold        int64
	WouldGoNegative  bool
	Blocked          bool
	Overflows        bool
	// PurposeMismatch is set when the declared purpose does not belong to
	// the action. Nothing else in the Decision is meaningful then.
	PurposeMismatch bool
	BalanceBefore    int64
	BalanceAfter     int64
	// Limit is the lowest balance the policy accepts.
	Limit *int64
}

// Evaluate classifies p against item's current balance.
func (s Set) Evaluate(p Proposal, item model.Item) Decision {
	purpose := p.Purpose
	if purpose == "" {
		purpose = DefaultPurpose(p.Action)
	}

	d := Decision{
		Action:        p.Action,
		Purpose:       purpose,
		Quantity:      p.Quantity,
		BalanceBefore: item.CurrentStock,
		BalanceAfter:  item.CurrentStock,
	}
	if !Fits(p.Action, purpose) {
		d.PurposeMismatch = true
		return d
	}

	d.RequiresReason = s.ReasonRequired[purpose]

	if p.Action.IsOutbound() {
		if t, ok := s.ApprovalThresholds[p.Action]; ok && t > 0 && p.Quantity > t {
			d.RequiresApproval = true
			d.Threshold = t
		}
	}

	delta, after, ok := model.ApplyAction(p.Action, p.Quantity, item.CurrentStock)
	if !ok {
		d.Overflows = true
		d.BalanceAfter = item.CurrentStock
		return d
	}
	d.BalanceAfter = after

	// The new value of an adjustment is authoritative.
	if p.Action == model.ActionAdjustment {
		return d
	}

	if delta < 0 && after < 0 {
		d.WouldGoNegative = true
		limit := s.lowestBalance()
		d.Limit = &limit
		d.Blocked = after < limit
	}
	return d
}

func (s Set) lowestBalance() int64 {
	if !s.NegativeStock.Allowed {
		return 0
	}
	if s.NegativeStock.MaxThreshold == nil {
		return math.MinInt64
	}
	t := *s.NegativeStock.MaxThreshold
	if t > 0 {
		t = -t
	}
	return t
}

// Check returns the first hard policy violation given the reason the caller
// collected, or nil. Approval routing is left to the caller.
func (d Decision) Check(itemCode, reason string) error {
	if d.PurposeMismatch {
		return &model.ValidationError{
			Field:   "purpose",
			Message: fmt.Sprintf("purpose %q is not valid for %s", d.Purpose, d.Action),
		}
	}
	if d.Overflows {
		return &model.ValidationError{Field: "quantity", Message: "resulting balance is out of range"}
	}
	if d.Blocked {
		e := &model.NegativeStockError{
			ItemCode:      itemCode,
			BalanceBefore: d.BalanceBefore,
			BalanceAfter:  d.BalanceAfter,
			Allowed:       d.Limit != nil && *d.Limit < 0,
		}
		if e.Allowed {
			e.Limit = d.Limit
		}
		return e
	}
	if d.RequiresReason && reason == "" {
		return &model.ReasonRequiredError{Purpose: string(d.Purpose)}
	}
	return nil
}

// ApprovalError describes why the proposal must go through approval.
func (d Decision) ApprovalError() error {
	if !d.RequiresApproval {
		return nil
	}
	return &model.ApprovalRequiredError{Action: d.Action, Quantity: d.Quantity, Threshold: d.Threshold}
}
