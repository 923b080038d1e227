package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/policy"
	"go-inventory-ledger/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultApprovalTTL is how long a request may stay pending.
const DefaultApprovalTTL = 24 * time.Hour

// CreateApprovalInput captures an action that exceeded its threshold, with
// everything needed to replay it later.
type CreateApprovalInput struct {
	ItemID     uuid.UUID
	Action     model.ActionClass
	Quantity   int64
	Threshold  int64
	Reason     string
	Purpose    policy.Purpose
	LocationID *uuid.UUID
	Recipient  string
	Notes      string
	Requester  Actor
}

// ApprovalOutcome is a request plus the ledger row written when it was
// approved.
type ApprovalOutcome struct {
	Request     *model.ApprovalRequest  `json:"request"`
	Transaction *model.StockTransaction `json:"transaction,omitempty"`
}

// ApproverDirectory lists who may review approval requests.
type ApproverDirectory interface {
	PrimaryApproverIDs(ctx context.Context) ([]string, error)
}

type ApprovalService interface {
	Create(ctx context.Context, in CreateApprovalInput) (*model.ApprovalRequest, error)
	Submit(ctx context.Context, in CreateApprovalInput) (*ApprovalOutcome, error)
	Get(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	List(ctx context.Context, filter repository.ApprovalFilter) ([]model.ApprovalRequest, error)
	Approve(ctx context.Context, id uuid.UUID, reviewer Actor, note string) (*ApprovalOutcome, error)
	Reject(ctx context.Context, id uuid.UUID, reviewer Actor, note string) (*model.ApprovalRequest, error)
	Cancel(ctx context.Context, id uuid.UUID, requester Actor) (*model.ApprovalRequest, error)
}

type approvalService struct {
	db        *gorm.DB
	repo      repository.ApprovalRepository
	itemRepo  repository.ItemRepository
	ledger    LedgerService
	policies  policy.Provider
	approvers ApproverDirectory
	notifier  Notifier
	audit     AuditSink
	log       *zap.Logger
	ttl       time.Duration
	now       func() time.Time
}

type ApprovalDeps struct {
	DB        *gorm.DB
	Repo      repository.ApprovalRepository
	ItemRepo  repository.ItemRepository
	Ledger    LedgerService
	Policies  policy.Provider
	Approvers ApproverDirectory
	Notifier  Notifier
	Audit     AuditSink
	Log       *zap.Logger
	TTL       time.Duration
}

func NewApprovalService(d ApprovalDeps) ApprovalService {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = DefaultApprovalTTL
	}
	return &approvalService{
		db:        d.DB,
		repo:      d.Repo,
		itemRepo:  d.ItemRepo,
		ledger:    d.Ledger,
		policies:  d.Policies,
		approvers: d.Approvers,
		notifier:  d.Notifier,
		audit:     d.Audit,
		log:       d.Log,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create files a pending request. An unexpired pending request for the same
// (type, item) refuses it; a stale one is expired first. Two racing creates
// are settled by idx_approval_one_pending.
func (s *approvalService) Create(ctx context.Context, in CreateApprovalInput) (*model.ApprovalRequest, error) {
	if !in.Action.Valid() {
		return nil, fmt.Errorf("%q: %w", in.Action, model.ErrInvalidAction)
	}
	if in.Action != model.ActionAdjustment && in.Quantity < 0 {
		return nil, fmt.Errorf("quantity %d: %w", in.Quantity, model.ErrInvalidQuantity)
	}
	if in.Requester.ID == "" {
		return nil, &model.ValidationError{Field: "requester", Message: "requester is required"}
	}
	purpose := in.Purpose
	if purpose == "" {
		purpose = policy.DefaultPurpose(in.Action)
	}
	if !policy.Fits(in.Action, purpose) {
		return nil, &model.ValidationError{
			Field:   "purpose",
			Message: fmt.Sprintf("purpose %q is not valid for %s", purpose, in.Action),
		}
	}

	item, err := s.itemRepo.FindByID(ctx, nil, in.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, fmt.Errorf("%s is inactive: %w", item.Code, model.ErrItemNotFound)
	}

	requestType := model.RequestTypeFor(in.Action)
	existing, err := s.repo.FindPending(ctx, nil, requestType, item.ID)
	switch {
	case err == nil:
		if !existing.ExpiredAt(s.now(), s.ttl) {
			return nil, model.ErrDuplicatePendingRequest
		}
		s.expire(ctx, existing)
	case !errors.Is(err, model.ErrRequestNotFound):
		return nil, err
	}

	req := &model.ApprovalRequest{
		RequestType: requestType,
		RequesterID: in.Requester.ID,
		ItemID:      item.ID,
		Quantity:    in.Quantity,
		Threshold:   in.Threshold,
		Reason:      in.Reason,
		Status:      model.ApprovalPending,
	}
	req.ID = uuid.New()
	req.CreatedAt = s.now()
	req.Stamp(in.Requester.ID)
	if err := req.SetMetadata(model.ApprovalMetadata{
		Action:     in.Action,
		Purpose:    string(purpose),
		LocationID: in.LocationID,
		Recipient:  in.Recipient,
		Notes:      in.Notes,
	}); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, nil, req); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, model.ErrDuplicatePendingRequest
		}
		return nil, fmt.Errorf("create approval request: %w", err)
	}
	req.Item = item

	s.audit.RecordEvent(ctx, model.EventApprovalCreated,
		fmt.Sprintf("%s of %d for %s requested by %s", in.Action, in.Quantity, item.Code, in.Requester.ID),
		map[string]interface{}{
			"request_id":   req.ID,
			"request_type": req.RequestType,
			"item_id":      item.ID,
			"quantity":     in.Quantity,
			"threshold":    in.Threshold,
			"requester_id": in.Requester.ID,
		})
	s.notifyApprovers(ctx, req, item, in.Requester)

	return req, nil
}

// Submit creates the request and, when the requester is the only primary
// approver, approves it straight away through the normal approve path.
func (s *approvalService) Submit(ctx context.Context, in CreateApprovalInput) (*ApprovalOutcome, error) {
	req, err := s.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	if !in.Requester.IsPrimaryApprover {
		return &ApprovalOutcome{Request: req}, nil
	}
	ids, err := s.approvers.PrimaryApproverIDs(ctx)
	if err != nil {
		s.log.Warn("approval: list primary approvers", zap.Error(err))
		return &ApprovalOutcome{Request: req}, nil
	}
	if len(ids) != 1 || ids[0] != in.Requester.ID {
		return &ApprovalOutcome{Request: req}, nil
	}
	return s.Approve(ctx, req.ID, in.Requester, "self-approved")
}

// Get loads a request, expiring it first if its TTL has passed.
func (s *approvalService) Get(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	req, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if req.ExpiredAt(s.now(), s.ttl) {
		s.expire(ctx, req)
		return s.repo.FindByID(ctx, nil, id)
	}
	return req, nil
}

func (s *approvalService) List(ctx context.Context, filter repository.ApprovalFilter) ([]model.ApprovalRequest, error) {
	reqs, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := reqs[:0]
	for i := range reqs {
		req := reqs[i]
		if req.ExpiredAt(now, s.ttl) {
			s.expire(ctx, &req)
			fresh, err := s.repo.FindByID(ctx, nil, req.ID)
			if err != nil {
				return nil, err
			}
			req = *fresh
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

// Approve flips the request and replays its action in one database
// transaction. If the replay fails nothing commits and the request stays
// pending.
func (s *approvalService) Approve(ctx context.Context, id uuid.UUID, reviewer Actor, note string) (*ApprovalOutcome, error) {
	if !reviewer.IsPrimaryApprover {
		return nil, model.ErrNotPrimaryApprover
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != model.ApprovalPending {
		return nil, notPending(req)
	}
	meta, err := req.ReplayMetadata()
	if err != nil {
		return nil, fmt.Errorf("decode approval metadata: %w", err)
	}

	var entry *model.StockTransaction
	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.Transition(ctx, tx, req.ID, model.ApprovalApproved, map[string]interface{}{
			"reviewed_by": reviewer.ID,
			"reviewed_at": now,
			"review_note": note,
			"updated_by":  reviewer.ID,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("request %s: %w", req.ID, model.ErrRequestNotPending)
		}

		// Stock may have moved since the request was filed.
		item, err := s.itemRepo.FindByID(ctx, tx, req.ItemID)
		if err != nil {
			return err
		}
		decision := s.policies.Current().Evaluate(policy.Proposal{
			Action:   meta.Action,
			Quantity: req.Quantity,
			Purpose:  policy.Purpose(meta.Purpose),
		}, *item)
		if decision.PurposeMismatch || decision.Overflows || decision.Blocked {
			return decision.Check(item.Code, req.Reason)
		}

		entry, err = s.ledger.ApplyTx(ctx, tx, ApplyInput{
			ItemID:          req.ItemID,
			Action:          meta.Action,
			Quantity:        req.Quantity,
			LocationID:      meta.LocationID,
			Reason:          req.Reason,
			Notes:           meta.Notes,
			Recipient:       meta.Recipient,
			ApprovalID:      &req.ID,
			ExpectedVersion: &item.Version,
			Actor:           Actor{ID: req.RequesterID},
		})
		if err != nil {
			return err
		}
		return tx.Model(&model.ApprovalRequest{}).Where("id = ?", req.ID).Update("transaction_id", entry.ID).Error
	})
	if err != nil {
		s.log.Info("approval replay failed, request left pending",
			zap.String("request_id", req.ID.String()), zap.Error(err))
		return nil, err
	}

	s.ledger.Announce(ctx, entry)
	s.audit.RecordEvent(ctx, model.EventApprovalApproved,
		fmt.Sprintf("request %s approved by %s", req.ID, reviewer.ID),
		map[string]interface{}{
			"request_id":     req.ID,
			"reviewer_id":    reviewer.ID,
			"transaction_id": entry.ID,
		})
	if req.RequesterID != reviewer.ID {
		s.notifier.Notify(ctx, req.RequesterID, "Request approved",
			fmt.Sprintf("Your %s request for %d units was approved.", meta.Action, req.Quantity),
			approvalResource(req.ID))
	}

	fresh, err := s.repo.FindByID(ctx, nil, req.ID)
	if err != nil {
		return nil, err
	}
	return &ApprovalOutcome{Request: fresh, Transaction: entry}, nil
}

func (s *approvalService) Reject(ctx context.Context, id uuid.UUID, reviewer Actor, note string) (*model.ApprovalRequest, error) {
	if !reviewer.IsPrimaryApprover {
		return nil, model.ErrNotPrimaryApprover
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != model.ApprovalPending {
		return nil, notPending(req)
	}

	ok, err := s.repo.Transition(ctx, nil, req.ID, model.ApprovalRejected, map[string]interface{}{
		"reviewed_by": reviewer.ID,
		"reviewed_at": s.now(),
		"review_note": note,
		"updated_by":  reviewer.ID,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("request %s: %w", req.ID, model.ErrRequestNotPending)
	}

	s.audit.RecordEvent(ctx, model.EventApprovalRejected,
		fmt.Sprintf("request %s rejected by %s", req.ID, reviewer.ID),
		map[string]interface{}{"request_id": req.ID, "reviewer_id": reviewer.ID, "note": note})

	msg := fmt.Sprintf("Your request for %d units was rejected.", req.Quantity)
	if note != "" {
		msg += " Note: " + note
	}
	s.notifier.Notify(ctx, req.RequesterID, "Request rejected", msg, approvalResource(req.ID))

	return s.repo.FindByID(ctx, nil, req.ID)
}

func (s *approvalService) Cancel(ctx context.Context, id uuid.UUID, requester Actor) (*model.ApprovalRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requester.ID {
		return nil, model.ErrNotRequester
	}
	if req.Status != model.ApprovalPending {
		return nil, notPending(req)
	}

	ok, err := s.repo.Transition(ctx, nil, req.ID, model.ApprovalCancelled, map[string]interface{}{
		"reviewed_by": requester.ID,
		"reviewed_at": s.now(),
		"review_note": "cancelled by requester",
		"updated_by":  requester.ID,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("request %s: %w", req.ID, model.ErrRequestNotPending)
	}

	s.audit.RecordEvent(ctx, model.EventApprovalCancelled,
		fmt.Sprintf("request %s cancelled by %s", req.ID, requester.ID),
		map[string]interface{}{"request_id": req.ID, "requester_id": requester.ID})

	return s.repo.FindByID(ctx, nil, req.ID)
}

// expire moves a stale request to expired. Only the caller whose update
// matched the pending row records the event, so concurrent readers expire
// it exactly once.
func (s *approvalService) expire(ctx context.Context, req *model.ApprovalRequest) {
	now := s.now()
	ok, err := s.repo.Transition(ctx, nil, req.ID, model.ApprovalExpired, map[string]interface{}{
		"reviewed_by": System.ID,
		"reviewed_at": now,
		"review_note": fmt.Sprintf("expired automatically after %s without review", s.ttl),
		"updated_by":  System.ID,
	})
	if err != nil {
		s.log.Warn("approval: expire request", zap.String("request_id", req.ID.String()), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	req.Status = model.ApprovalExpired
	s.audit.RecordEvent(ctx, model.EventApprovalExpired,
		fmt.Sprintf("request %s expired", req.ID),
		map[string]interface{}{"request_id": req.ID, "created_at": req.CreatedAt, "expired_at": now})
	s.notifier.Notify(ctx, req.RequesterID, "Request expired",
		fmt.Sprintf("Your request for %d units expired before it was reviewed.", req.Quantity),
		approvalResource(req.ID))
}

func (s *approvalService) notifyApprovers(ctx context.Context, req *model.ApprovalRequest, item *model.Item, requester Actor) {
	ids, err := s.approvers.PrimaryApproverIDs(ctx)
	if err != nil {
		s.log.Warn("approval: list primary approvers", zap.Error(err))
		return
	}
	who := requester.Name
	if who == "" {
		who = requester.ID
	}
	msg := fmt.Sprintf("%s requests %s of %d %s (threshold %d).",
		who, strings.ReplaceAll(string(req.RequestType), "_", " "), req.Quantity, item.Code, req.Threshold)
	for _, id := range ids {
		if id == requester.ID {
			continue
		}
		s.notifier.Notify(ctx, id, "Approval requested", msg, approvalResource(req.ID))
	}
}

func notPending(req *model.ApprovalRequest) error {
	return fmt.Errorf("request %s is %s: %w", req.ID, req.Status, model.ErrRequestNotPending)
}

func approvalResource(id uuid.UUID) string {
	return "approval:" + id.String()
}

type userApprovers struct {
	repo repository.UserRepository
}

// NewUserApprovers reads primary approvers from the user table.
func NewUserApprovers(repo repository.UserRepository) ApproverDirectory {
	return &userApprovers{repo: repo}
}

func (u *userApprovers) PrimaryApproverIDs(ctx context.Context) ([]string, error) {
	users, err := u.repo.FindPrimaryApprovers()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(users))
	for i, user := range users {
		ids[i] = user.ID.String()
	}
	return ids, nil
}
