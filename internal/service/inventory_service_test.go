package service

import (
	"context"
	"testing"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/policy"
	"go-inventory-ledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func stockOut(item *model.Item, qty int64) *StockRequest {
	return &StockRequest{ItemID: item.ID, Action: string(model.ActionStockOut), Quantity: qty}
}

func TestRecordStock_BlockedNegativeLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 10, 0)
	rows := len(h.ledgerRows(t, item))

	req := stockOut(item, 15)
	req.ConfirmNegative = true
	_, err := h.inventory.RecordStock(context.Background(), req, clerk)

	require.ErrorIs(t, err, model.ErrNegativeStockBlocked)
	var neg *model.NegativeStockError
	require.ErrorAs(t, err, &neg)
	assert.Equal(t, int64(10), neg.BalanceBefore)
	assert.Equal(t, int64(-5), neg.BalanceAfter)
	assert.False(t, neg.Allowed)

	assert.Equal(t, int64(10), h.reload(t, item).CurrentStock)
	assert.Len(t, h.ledgerRows(t, item), rows)
}

func TestRecordStock_NegativeNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.policy.Update(func(s *policy.Set) { s.NegativeStock.Allowed = true })
	item := h.seedItem(t, 10, 0)

	_, err := h.inventory.RecordStock(context.Background(), stockOut(item, 15), clerk)
	require.ErrorIs(t, err, model.ErrNegativeStockUnconfirmed)
	assert.True(t, model.IsPolicyError(err))
	assert.Equal(t, int64(10), h.reload(t, item).CurrentStock)

	req := stockOut(item, 15)
	req.ConfirmNegative = true
	res, err := h.inventory.RecordStock(context.Background(), req, clerk)
	require.NoError(t, err)
	assert.Equal(t, StockApplied, res.Status)
	assert.Equal(t, int64(-5), res.Transaction.BalanceAfter)
	assert.Equal(t, int64(-5), h.reload(t, item).CurrentStock)
	h.requireConsistent(t, item)
}

func TestRecordStock_NegativeLimit(t *testing.T) {
	h := newHarness(t)
	h.policy.Update(func(s *policy.Set) {
		s.NegativeStock.Allowed = true
		s.NegativeStock.MaxThreshold = int64p(3)
	})
	item := h.seedItem(t, 10, 0)

	req := stockOut(item, 15)
	req.ConfirmNegative = true
	_, err := h.inventory.RecordStock(context.Background(), req, clerk)
	var neg *model.NegativeStockError
	require.ErrorAs(t, err, &neg)
	assert.True(t, neg.Allowed)
	require.NotNil(t, neg.Limit)
	assert.Equal(t, int64(-3), *neg.Limit)

	req = stockOut(item, 13)
	req.ConfirmNegative = true
	_, err = h.inventory.RecordStock(context.Background(), req, clerk)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), h.reload(t, item).CurrentStock)
}

func TestRecordStock_ReasonRequired(t *testing.T) {
	h := newHarness(t)
	h.policy.Update(func(s *policy.Set) { s.ReasonRequired[policy.PurposeIssue] = true })
	item := h.seedItem(t, 10, 0)

	req := stockOut(item, 2)
	req.Reason = "   "
	_, err := h.inventory.RecordStock(context.Background(), req, clerk)
	require.ErrorIs(t, err, model.ErrReasonRequired)

	// Other purposes are unaffected.
	_, err = h.inventory.RecordStock(context.Background(), &StockRequest{
		ItemID: item.ID, Action: string(model.ActionStockIn), Quantity: 2,
	}, clerk)
	require.NoError(t, err)

	req.Reason = "line 3 maintenance"
	res, err := h.inventory.RecordStock(context.Background(), req, clerk)
	require.NoError(t, err)
	assert.Equal(t, "line 3 maintenance", res.Transaction.Reason)
}

func TestRecordStock_LargeOutRoutedToApproval(t *testing.T) {
	h := newHarness(t)
	h.policy.Update(func(s *policy.Set) { s.ApprovalThresholds[model.ActionStockOut] = 10 })
	item := h.seedItem(t, 100, 0)
	rows := len(h.ledgerRows(t, item))

	res, err := h.inventory.RecordStock(context.Background(), stockOut(item, 12), clerk)
	require.NoError(t, err)
	assert.Equal(t, StockPendingApproval, res.Status)
	assert.Nil(t, res.Transaction)
	require.NotNil(t, res.Approval)
	assert.Equal(t, int64(10), res.Approval.Threshold)
	assert.Contains(t, res.Message, "threshold of 10")
	assert.Equal(t, int64(100), h.reload(t, item).CurrentStock)
	assert.Len(t, h.ledgerRows(t, item), rows)

	_, err = h.inventory.RecordStock(context.Background(), stockOut(item, 20), clerk2)
	require.ErrorIs(t, err, model.ErrDuplicatePendingRequest)

	// At the threshold there is nothing to approve.
	res, err = h.inventory.RecordStock(context.Background(), stockOut(item, 10), clerk2)
	require.NoError(t, err)
	assert.Equal(t, StockApplied, res.Status)

	assert.Nil(t, res.Approval)

	pending, err := h.approvals.List(context.Background(), repository.ApprovalFilter{Status: model.ApprovalPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	out, err := h.approvals.Approve(context.Background(), pending[0].ID, approver, "")
	require.NoError(t, err)
	assert.Equal(t, int64(12), out.Transaction.Quantity)
	assert.Equal(t, int64(78), h.reload(t, item).CurrentStock)

	var outbound int
	for _, row := range h.ledgerRows(t, item) {
		if row.Action == model.ActionStockOut && row.Quantity == 12 {
			outbound++
		}
	}
	assert.Equal(t, 1, outbound)
	h.requireConsistent(t, item)
}

func TestRecordStock_InboundIgnoresOutboundThreshold(t *testing.T) {
	h := newHarness(t)
	h.policy.Update(func(s *policy.Set) { s.ApprovalThresholds[model.ActionStockOut] = 10 })
	item := h.seedItem(t, 0, 0)

	res, err := h.inventory.RecordStock(context.Background(), &StockRequest{
		ItemID: item.ID, Action: string(model.ActionStockIn), Quantity: 500,
	}, clerk)
	require.NoError(t, err)
	assert.Equal(t, StockApplied, res.Status)
	assert.Equal(t, int64(500), h.reload(t, item).CurrentStock)
}

func TestRecordStock_PrimaryApproverSelfApproves(t *testing.T) {
	h := newHarness(t)
	h.policy.Update(func(s *policy.Set) { s.ApprovalThresholds[model.ActionStockOut] = 10 })
	item := h.seedItem(t, 100, 0)

	res, err := h.inventory.RecordStock(context.Background(), stockOut(item, 40), approver)
	require.NoError(t, err)
	assert.Equal(t, StockApplied, res.Status)
	require.NotNil(t, res.Approval)
	assert.Equal(t, model.ApprovalApproved, res.Approval.Status)
	assert.Equal(t, int64(60), h.reload(t, item).CurrentStock)
}

func TestRecordStock_StaleExpectedVersion(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 10, 0)

	req := stockOut(item, 1)
	req.ExpectedVersion = int64p(item.Version - 1)
	_, err := h.inventory.RecordStock(context.Background(), req, clerk)
	require.ErrorIs(t, err, model.ErrPersistenceConflict)
	assert.True(t, model.IsRetryable(err))

	req.ExpectedVersion = int64p(item.Version)
	_, err = h.inventory.RecordStock(context.Background(), req, clerk)
	require.NoError(t, err)
}

func TestRecordStock_StructuralErrors(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 10, 0)

	tests := []struct {
		name string
		req  *StockRequest
		want error
	}{
		{"unknown action", &StockRequest{ItemID: item.ID, Action: "transfer", Quantity: 1}, model.ErrInvalidAction},
		{"negative quantity", &StockRequest{ItemID: item.ID, Action: "stock_in", Quantity: -1}, model.ErrInvalidQuantity},
		{"missing item id", &StockRequest{Action: "stock_in", Quantity: 1}, model.ErrValidation},
		{"missing action", &StockRequest{ItemID: item.ID, Quantity: 1}, model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.inventory.RecordStock(context.Background(), tt.req, clerk)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, model.IsStructural(err))
		})
	}
	assert.Equal(t, int64(10), h.reload(t, item).CurrentStock)
}

func TestPreviewStock_DoesNotMutate(t *testing.T) {
	h := newHarness(t)
	h.policy.Update(func(s *policy.Set) {
		s.NegativeStock.Allowed = true
		s.ApprovalThresholds[model.ActionStockOut] = 5
	})
	item := h.seedItem(t, 4, 0)
	rows := len(h.ledgerRows(t, item))

	d, err := h.inventory.PreviewStock(context.Background(), stockOut(item, 6))
	require.NoError(t, err)
	assert.True(t, d.WouldGoNegative)
	assert.True(t, d.RequiresApproval)
	assert.False(t, d.Blocked)
	assert.Equal(t, int64(-2), d.BalanceAfter)

	assert.Len(t, h.ledgerRows(t, item), rows)
	assert.Equal(t, int64(4), h.reload(t, item).CurrentStock)
}

func TestCreateItem_IssuesCodeAndReceivesInitialStock(t *testing.T) {
	h := newHarness(t)
	category, err := h.inventory.CreateCategory(context.Background(), &CreateCategoryRequest{Name: "Fasteners"}, clerk)
	require.NoError(t, err)

	item, err := h.inventory.CreateItem(context.Background(), &CreateItemRequest{
		Name:         " Hex bolt M8 ",
		Unit:         "pcs",
		MinimumStock: 50,
		CategoryName: "fasteners",
		InitialStock: 25,
	}, clerk)
	require.NoError(t, err)

	assert.Regexp(t, codePattern, item.Code)
	assert.Contains(t, item.Code, "-260501-")
	assert.Equal(t, "Hex bolt M8", item.Name)
	require.NotNil(t, item.CategoryID)
	assert.Equal(t, category.ID, *item.CategoryID)
	assert.Equal(t, int64(25), item.CurrentStock)
	assert.True(t, item.IsLowStock())

	rows := h.ledgerRows(t, item)
	require.Len(t, rows, 1)
	assert.Equal(t, model.ActionStockIn, rows[0].Action)
	assert.Equal(t, int64(25), rows[0].BalanceAfter)
	assert.Equal(t, 1, h.audit.count(model.EventItemCreated))
	h.requireConsistent(t, item)
}

func TestCreateItem_Rejections(t *testing.T) {
	h := newHarness(t)

	_, err := h.inventory.CreateItem(context.Background(), &CreateItemRequest{Name: "  "}, clerk)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = h.inventory.CreateItem(context.Background(), &CreateItemRequest{Name: "Nut", MinimumStock: -1}, clerk)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = h.inventory.CreateItem(context.Background(), &CreateItemRequest{Name: "Nut", CategoryName: "nope"}, clerk)
	assert.ErrorIs(t, err, model.ErrCategoryNotFound)

	items, err := h.inventory.GetItems(context.Background(), repository.ItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateLocation_Hierarchy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wh, err := h.inventory.CreateLocation(ctx, &CreateLocationRequest{Name: "Main", Type: "Warehouse"}, clerk)
	require.NoError(t, err)
	assert.Equal(t, model.LocationWarehouse, wh.Type)
	assert.Regexp(t, `^LOC-\d{6}-`, wh.Code)

	zone, err := h.inventory.CreateLocation(ctx, &CreateLocationRequest{Name: "Cold", Type: "zone", ParentRef: "Main"}, clerk)
	require.NoError(t, err)
	require.NotNil(t, zone.ParentID)
	assert.Equal(t, wh.ID, *zone.ParentID)

	// Skipping levels is fine as long as depth increases.
	_, err = h.inventory.CreateLocation(ctx, &CreateLocationRequest{Name: "B1", Type: "bin", ParentRef: zone.Code}, clerk)
	require.NoError(t, err)

	_, err = h.inventory.CreateLocation(ctx, &CreateLocationRequest{Name: "Annex", Type: "warehouse", ParentID: &zone.ID}, clerk)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = h.inventory.CreateLocation(ctx, &CreateLocationRequest{Name: "X", Type: "room"}, clerk)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = h.inventory.CreateLocation(ctx, &CreateLocationRequest{Name: "Y", Type: "zone", ParentRef: "Nowhere"}, clerk)
	assert.ErrorIs(t, err, model.ErrLocationNotFound)

	all, err := h.inventory.GetLocations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCreateCategory_DuplicateName(t *testing.T) {
	h := newHarness(t)
	_, err := h.inventory.CreateCategory(context.Background(), &CreateCategoryRequest{Name: "Paint"}, clerk)
	require.NoError(t, err)

	_, err = h.inventory.CreateCategory(context.Background(), &CreateCategoryRequest{Name: "PAINT"}, clerk)
	assert.ErrorIs(t, err, model.ErrValidation)

	all, err := h.inventory.GetCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordStock_PurposeMustFitAction(t *testing.T) {
	h := newHarness(t)
	h.policy.Update(func(s *policy.Set) {
		s.ReasonRequired[policy.PurposeIssue] = true
		s.ReasonRequired[policy.PurposeAdjust] = true
	})
	item := h.seedItem(t, 10, 0)
	rows := len(h.ledgerRows(t, item))

	cases := []struct {
		action  model.ActionClass
		purpose string
	}{
		{model.ActionStockOut, "receive"},
		{model.ActionStockOut, "return"},
		{model.ActionStockOut, "bogus"},
		{model.ActionAdjustment, "issue"},
		{model.ActionAdjustment, "bogus"},
		{model.ActionStockIn, "consume"},
	}
	for _, tc := range cases {
		req := &StockRequest{ItemID: item.ID, Action: string(tc.action), Quantity: 2, Purpose: tc.purpose}
		_, err := h.inventory.RecordStock(context.Background(), req, clerk)
		assert.ErrorIs(t, err, model.ErrValidation, "%s/%s", tc.action, tc.purpose)

		_, err = h.inventory.PreviewStock(context.Background(), req)
		assert.ErrorIs(t, err, model.ErrValidation, "%s/%s preview", tc.action, tc.purpose)
	}
	assert.Equal(t, int64(10), h.reload(t, item).CurrentStock)
	assert.Len(t, h.ledgerRows(t, item), rows)

	// The rule for the action's own purpose still applies.
	_, err := h.inventory.RecordStock(context.Background(), &StockRequest{
		ItemID: item.ID, Action: string(model.ActionAdjustment), Quantity: 0, Purpose: "Adjust",
	}, clerk)
	require.ErrorIs(t, err, model.ErrReasonRequired)

	res, err := h.inventory.RecordStock(context.Background(), &StockRequest{
		ItemID: item.ID, Action: string(model.ActionStockIn), Quantity: 3, Purpose: "return",
	}, clerk)
	require.NoError(t, err)
	assert.Equal(t, int64(13), res.Transaction.BalanceAfter)
}

// lateNameRepo misses the first name lookup, as it would when another
// request creates the same category in between.
type lateNameRepo struct {
	repository.CategoryRepository
	lookups int
}

func (r *lateNameRepo) FindByName(ctx context.Context, name string) (*model.Category, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, model.ErrCategoryNotFound
	}
	return r.CategoryRepository.FindByName(ctx, name)
}

func TestCreateCategory_NameRaceIsNotACodeCollision(t *testing.T) {
	h := newHarness(t)
	_, err := h.inventory.CreateCategory(context.Background(), &CreateCategoryRequest{Name: "Paint"}, clerk)
	require.NoError(t, err)

	categories := &lateNameRepo{CategoryRepository: repository.NewCategoryRepo(h.db)}
	inventory := NewInventoryService(InventoryDeps{
		ItemRepo:     h.items,
		LocationRepo: repository.NewLocationRepo(h.db),
		CategoryRepo: categories,
		Ledger:       h.ledger,
		Approvals:    h.approvals,
		Policies:     h.policy,
		Issuer:       NewCodeIssuer(zap.NewNop()),
		Audit:        h.audit,
		Log:          zap.NewNop(),
	})

	_, err = inventory.CreateCategory(context.Background(), &CreateCategoryRequest{Name: "Paint"}, clerk)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
	assert.NotErrorIs(t, err, model.ErrCodeGenerationExhausted)
	assert.Equal(t, 2, categories.lookups)
}
