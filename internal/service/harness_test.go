package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/policy"
	"go-inventory-ledger/internal/repository"
	"go-inventory-ledger/internal/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedEvent struct {
	Type     string
	Metadata map[string]interface{}
}

type recordingAudit struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (a *recordingAudit) RecordEvent(_ context.Context, eventType, _ string, metadata map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, recordedEvent{Type: eventType, Metadata: metadata})
}

func (a *recordingAudit) count(eventType string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type sentNotification struct {
	Recipient string
	Title     string
	Message   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, recipientID, title, message, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Recipient: recipientID, Title: title, Message: message})
}

func (n *recordingNotifier) to(recipient string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.Recipient == recipient {
			out = append(out, s)
		}
	}
	return out
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []string
}

func (p *recordingPublisher) Publish(_, eventType string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, eventType)
}

type staticApprovers []string

func (s staticApprovers) PrimaryApproverIDs(context.Context) ([]string, error) {
	return s, nil
}

// mutablePolicy lets a test change the rules between calls.
type mutablePolicy struct {
	mu  sync.Mutex
	set policy.Set
}

func (m *mutablePolicy) Current() policy.Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set
}

func (m *mutablePolicy) Update(fn func(*policy.Set)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.set)
}

var (
	clerk    = Actor{ID: "clerk-1", Name: "Clerk"}
	clerk2   = Actor{ID: "clerk-2", Name: "Second Clerk"}
	approver = Actor{ID: "boss-1", Name: "Boss", IsPrimaryApprover: true}
)

type harness struct {
	db        *gorm.DB
	items     repository.ItemRepository
	txs       repository.TransactionRepository
	requests  repository.ApprovalRepository
	ledger    LedgerService
	approvals ApprovalService
	inventory InventoryService
	imports   ImportService
	policy    *mutablePolicy
	audit     *recordingAudit
	notes     *recordingNotifier
	pub       *recordingPublisher
	clock     *fakeClock
}

func newHarness(t *testing.T, approvers ...string) *harness {
	t.Helper()
	if len(approvers) == 0 {
		approvers = []string{approver.ID}
	}

	db := testutil.NewDB(t)
	log := zap.NewNop()
	h := &harness{
		db:       db,
		items:    repository.NewItemRepo(db),
		txs:      repository.NewTransactionRepo(db),
		requests: repository.NewApprovalRepo(db),
		policy:   &mutablePolicy{set: policy.Default()},
		audit:    &recordingAudit{},
		notes:    &recordingNotifier{},
		pub:      &recordingPublisher{},
		clock:    &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
	}

	ledger := NewLedgerService(db, h.items, h.txs, h.audit, h.pub, log).(*ledgerService)
	ledger.now = h.clock.Now
	h.ledger = ledger

	approvals := NewApprovalService(ApprovalDeps{
		DB:        db,
		Repo:      h.requests,
		ItemRepo:  h.items,
		Ledger:    ledger,
		Policies:  h.policy,
		Approvers: staticApprovers(approvers),
		Notifier:  h.notes,
		Audit:     h.audit,
		Log:       log,
	}).(*approvalService)
	approvals.now = h.clock.Now
	h.approvals = approvals

	issuer := NewCodeIssuer(log)
	issuer.now = h.clock.Now
	locations := repository.NewLocationRepo(db)
	h.inventory = NewInventoryService(InventoryDeps{
		ItemRepo:     h.items,
		LocationRepo: locations,
		CategoryRepo: repository.NewCategoryRepo(db),
		Ledger:       ledger,
		Approvals:    approvals,
		Policies:     h.policy,
		Issuer:       issuer,
		Audit:        h.audit,
		Publisher:    h.pub,
		Log:          log,
	})
	h.imports = NewImportService(h.inventory, h.items, locations, h.audit, log, DefaultImportMaxErrors, 1)
	return h
}

// seedItem creates an item whose opening balance is backed by a ledger row.
func (h *harness) seedItem(t *testing.T, stock, minimum int64) *model.Item {
	t.Helper()
	item, err := h.inventory.CreateItem(context.Background(), &CreateItemRequest{
		Name:         "Widget",
		Unit:         "pcs",
		MinimumStock: minimum,
	}, clerk)
	require.NoError(t, err)
	if stock != 0 {
		_, err = h.ledger.Apply(context.Background(), ApplyInput{
			ItemID:   item.ID,
			Action:   model.ActionAdjustment,
			Quantity: stock,
			Actor:    clerk,
		})
		require.NoError(t, err)
	}
	return h.reload(t, item)
}

func (h *harness) reload(t *testing.T, item *model.Item) *model.Item {
	t.Helper()
	fresh, err := h.items.FindByID(context.Background(), nil, item.ID)
	require.NoError(t, err)
	return fresh
}

func (h *harness) ledgerRows(t *testing.T, item *model.Item) []model.StockTransaction {
	t.Helper()
	rows, err := h.txs.FindChain(context.Background(), item.ID)
	require.NoError(t, err)
	return rows
}

func (h *harness) requireConsistent(t *testing.T, item *model.Item) {
	t.Helper()
	res, err := h.ledger.VerifyItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.True(t, res.Consistent, "ledger drift: %+v", res)
}

func int64p(v int64) *int64 { return &v }
