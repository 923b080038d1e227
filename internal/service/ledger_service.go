package service

import (
	"context"
	"fmt"
	"time"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApplyInput is one ledger action. Quantity is a delta magnitude for
// stock_in/stock_out and the new absolute balance for adjustment.
type ApplyInput struct {
	ItemID     uuid.UUID
	Action     model.ActionClass
	Quantity   int64
	LocationID *uuid.UUID
	Reason     string
	Notes      string
	Recipient  string
	ApprovalID *uuid.UUID
	// ExpectedVersion pins the item version the caller decided on. Nil means
	// whatever version is read at apply time.
	ExpectedVersion *int64
	Actor           Actor
}

// VerifyResult compares an item's stored balance with its ledger.
type VerifyResult struct {
	ItemID        uuid.UUID `json:"item_id"`
	Transactions  int       `json:"transactions"`
	LedgerBalance int64     `json:"ledger_balance"`
	StoredBalance int64     `json:"stored_balance"`
	// BrokenAt is the first row whose balance_before does not continue the
	// previous row, or whose own arithmetic is off.
	BrokenAt   *uuid.UUID `json:"broken_at,omitempty"`
	Consistent bool       `json:"consistent"`
}

type LedgerService interface {
	Apply(ctx context.Context, in ApplyInput) (*model.StockTransaction, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, in ApplyInput) (*model.StockTransaction, error)
	Announce(ctx context.Context, t *model.StockTransaction)
	History(ctx context.Context, filter repository.TransactionFilter) ([]model.StockTransaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*model.StockTransaction, error)
	VerifyItem(ctx context.Context, itemID uuid.UUID) (*VerifyResult, error)
}

type ledgerService struct {
	db       *gorm.DB
	itemRepo repository.ItemRepository
	txRepo   repository.TransactionRepository
	audit    AuditSink
	pub      Publisher
	log      *zap.Logger
	now      func() time.Time
}

func NewLedgerService(db *gorm.DB, itemRepo repository.ItemRepository, txRepo repository.TransactionRepository, audit AuditSink, pub Publisher, log *zap.Logger) LedgerService {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &ledgerService{
		db:       db,
		itemRepo: itemRepo,
		txRepo:   txRepo,
		audit:    audit,
		pub:      pub,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Apply writes the balance and its ledger row atomically, then records the
// audit event and broadcasts the new balance. It does not retry: a
// model.ErrPersistenceConflict goes back to the caller.
func (s *ledgerService) Apply(ctx context.Context, in ApplyInput) (*model.StockTransaction, error) {
	var entry *model.StockTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.ApplyTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, entry)
	return entry, nil
}

// ApplyTx performs the writes on tx without committing or announcing, for
// callers that fold the apply into a larger unit.
func (s *ledgerService) ApplyTx(ctx context.Context, tx *gorm.DB, in ApplyInput) (*model.StockTransaction, error) {
	if !in.Action.Valid() {
		return nil, fmt.Errorf("%q: %w", in.Action, model.ErrInvalidAction)
	}
	if in.Action != model.ActionAdjustment && in.Quantity < 0 {
		return nil, fmt.Errorf("%s quantity %d: %w", in.Action, in.Quantity, model.ErrInvalidQuantity)
	}
	if in.Actor.ID == "" {
		return nil, &model.ValidationError{Field: "actor", Message: "actor is required"}
	}

	item, err := s.itemRepo.FindByID(ctx, tx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, fmt.Errorf("%s is inactive: %w", item.Code, model.ErrItemNotFound)
	}
	if in.ExpectedVersion != nil && *in.ExpectedVersion != item.Version {
		return nil, model.ErrPersistenceConflict
	}

	delta, after, ok := model.ApplyAction(in.Action, in.Quantity, item.CurrentStock)
	if !ok {
		return nil, fmt.Errorf("%s of %d on balance %d overflows: %w",
			in.Action, in.Quantity, item.CurrentStock, model.ErrInvalidQuantity)
	}

	if err := s.itemRepo.UpdateBalance(ctx, tx, item.ID, item.Version, after, in.Actor.ID); err != nil {
		return nil, err
	}

	entry := &model.StockTransaction{
		ID:            uuid.New(),
		ItemID:        item.ID,
		ItemVersion:   item.Version + 1,
		Action:        in.Action,
		Quantity:      in.Quantity,
		Delta:         delta,
		BalanceBefore: item.CurrentStock,
		BalanceAfter:  after,
		LocationID:    in.LocationID,
		Reason:        in.Reason,
		Notes:         in.Notes,
		Recipient:     in.Recipient,
		ApprovalID:    in.ApprovalID,
		ActorID:       in.Actor.ID,
		CreatedAt:     s.now(),
	}
	if err := s.txRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append ledger row: %w", err)
	}

	item.CurrentStock = after
	item.Version++
	entry.Item = item
	return entry, nil
}

// Announce emits the post-commit side effects of an apply. Failures are
// logged by the sinks and never returned.
func (s *ledgerService) Announce(ctx context.Context, t *model.StockTransaction) {
	code := ""
	if t.Item != nil {
		code = t.Item.Code
	}
	s.audit.RecordEvent(ctx, model.EventStockApplied,
		fmt.Sprintf("%s %s: %d -> %d", t.Action, code, t.BalanceBefore, t.BalanceAfter),
		map[string]interface{}{
			"transaction_id": t.ID,
			"item_id":        t.ItemID,
			"item_code":      code,
			"action":         t.Action,
			"quantity":       t.Quantity,
			"delta":          t.Delta,
			"balance_before": t.BalanceBefore,
			"balance_after":  t.BalanceAfter,
			"approval_id":    t.ApprovalID,
			"actor_id":       t.ActorID,
		})

	s.pub.Publish("", "stock_update", map[string]interface{}{
		"transaction_id": t.ID,
		"item_id":        t.ItemID,
		"item_code":      code,
		"action":         t.Action,
		"delta":          t.Delta,
		"new_stock":      t.BalanceAfter,
		"actor_id":       t.ActorID,
	})

	s.log.Info("stock applied",
		zap.String("item", code),
		zap.String("action", string(t.Action)),
		zap.Int64("delta", t.Delta),
		zap.Int64("balance_after", t.BalanceAfter),
		zap.String("actor", t.ActorID))
}

func (s *ledgerService) History(ctx context.Context, filter repository.TransactionFilter) ([]model.StockTransaction, error) {
	return s.txRepo.FindAll(ctx, filter)
}

func (s *ledgerService) GetTransaction(ctx context.Context, id uuid.UUID) (*model.StockTransaction, error) {
	return s.txRepo.FindByID(ctx, id)
}

// VerifyItem replays the item's ledger and checks both invariants: every
// row's arithmetic, and the stored balance against the last row.
func (s *ledgerService) VerifyItem(ctx context.Context, itemID uuid.UUID) (*VerifyResult, error) {
	item, err := s.itemRepo.FindByID(ctx, nil, itemID)
	if err != nil {
		return nil, err
	}
	chain, err := s.txRepo.FindChain(ctx, itemID)
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{ItemID: itemID, Transactions: len(chain), StoredBalance: item.CurrentStock}
	var balance int64
	for i := range chain {
		row := &chain[i]
		if row.BalanceBefore != balance || !row.Consistent() {
			if res.BrokenAt == nil {
				id := row.ID
				res.BrokenAt = &id
			}
		}
		balance = row.BalanceAfter
	}
	res.LedgerBalance = balance
	res.Consistent = res.BrokenAt == nil && res.LedgerBalance == res.StoredBalance
	return res, nil
}
