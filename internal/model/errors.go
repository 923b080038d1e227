/*
errors.go - error taxonomy for the stock ledger

  Structural:   ErrItemNotFound, ErrInvalidQuantity, ErrValidation
  Policy:       ErrReasonRequired, ErrApprovalRequired, ErrNegativeStockBlocked,
                ErrNegativeStockUnconfirmed
  Concurrency:  ErrPersistenceConflict, ErrDuplicatePendingRequest
  Exhaustion:   ErrCodeGenerationExhausted

Structured errors unwrap to their sentinel so callers can use errors.Is.
*/
package model

import (
	"errors"
	"fmt"
)

var (
	ErrItemNotFound             = errors.New("item not found")
	ErrLocationNotFound         = errors.New("location not found")
	ErrCategoryNotFound         = errors.New("category not found")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInvalidAction            = errors.New("invalid action class")
	ErrValidation               = errors.New("validation failed")
	ErrPersistenceConflict      = errors.New("item balance changed concurrently, reload and retry")
	ErrDuplicatePendingRequest  = errors.New("a pending approval request already exists for this item")
	ErrCodeGenerationExhausted  = errors.New("could not generate a unique code")
	ErrRequestNotFound          = errors.New("approval request not found")
	ErrRequestNotPending        = errors.New("approval request is no longer pending")
	ErrNotPrimaryApprover       = errors.New("only the primary approver can review requests")
	ErrNotRequester             = errors.New("only the requester can cancel this request")
	ErrNotificationNotFound     = errors.New("notification not found")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrReasonRequired           = errors.New("a reason is required for this action")
	ErrApprovalRequired         = errors.New("approval required")
	ErrNegativeStockBlocked     = errors.New("negative stock not permitted")
	ErrNegativeStockUnconfirmed = errors.New("operation leaves stock negative and was not confirmed")
)

// NegativeStockError reports a balance the negative-stock policy refuses.
type NegativeStockError struct {
	ItemCode      string
	BalanceBefore int64
	BalanceAfter  int64
	Allowed       bool
	Limit         *int64
}

func (e *NegativeStockError) Error() string {
	if !e.Allowed {
		return fmt.Sprintf("stock for %s would become %d (currently %d); negative stock is not allowed",
			e.ItemCode, e.BalanceAfter, e.BalanceBefore)
	}
	return fmt.Sprintf("stock for %s would become %d (currently %d); policy limit is %d",
		e.ItemCode, e.BalanceAfter, e.BalanceBefore, *e.Limit)
}

func (e *NegativeStockError) Unwrap() error {
	return ErrNegativeStockBlocked
}

// ApprovalRequiredError reports a quantity above the configured threshold.
type ApprovalRequiredError struct {
	Action    ActionClass
	Quantity  int64
	Threshold int64
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("%s of %d exceeds the approval threshold of %d",
		e.Action, e.Quantity, e.Threshold)
}

func (e *ApprovalRequiredError) Unwrap() error {
	return ErrApprovalRequired
}

// ReasonRequiredError names the purpose whose reason rule was violated.
type ReasonRequiredError struct {
	Purpose string
}

func (e *ReasonRequiredError) Error() string {
	return fmt.Sprintf("a reason is required for %s", e.Purpose)
}

func (e *ReasonRequiredError) Unwrap() error {
	return ErrReasonRequired
}

// ValidationError is a structural problem with one input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IsRetryable reports errors that may succeed when retried with fresh state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceConflict) || errors.Is(err, ErrDuplicatePendingRequest)
}

// IsPolicyError reports errors the caller can fix by resubmitting or routing
// through approval.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrApprovalRequired) ||
		errors.Is(err, ErrNegativeStockBlocked) ||
		errors.Is(err, ErrNegativeStockUnconfirmed)
}

// IsStructural reports input errors caught before any mutation.
func IsStructural(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrLocationNotFound) ||
		errors.Is(err, ErrCategoryNotFound)
}

// IsNotFound reports missing resources.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrLocationNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrNotificationNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}
