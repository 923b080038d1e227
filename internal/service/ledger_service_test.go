package service

import (
	"context"
	"math"
	"testing"

	"go-inventory-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_StockOutScenario(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 10, 5)

	entry, err := h.ledger.Apply(context.Background(), ApplyInput{
		ItemID:   item.ID,
		Action:   model.ActionStockOut,
		Quantity: 3,
		Actor:    clerk,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(10), entry.BalanceBefore)
	assert.Equal(t, int64(7), entry.BalanceAfter)
	assert.Equal(t, int64(-3), entry.Delta)
	assert.Equal(t, model.ActionStockOut, entry.Action)
	assert.Equal(t, int64(7), h.reload(t, item).CurrentStock)
	assert.False(t, h.reload(t, item).IsLowStock())
	h.requireConsistent(t, item)
}

func TestLedger_AdjustmentRecordsSignedDelta(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 7, 0)

	entry, err := h.ledger.Apply(context.Background(), ApplyInput{
		ItemID:   item.ID,
		Action:   model.ActionAdjustment,
		Quantity: 0,
		Reason:   "cycle count",
		Actor:    clerk,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7), entry.BalanceBefore)
	assert.Equal(t, int64(0), entry.BalanceAfter)
	assert.Equal(t, int64(-7), entry.Delta)
	assert.Equal(t, int64(0), entry.Quantity)
	assert.True(t, entry.Consistent())
	h.requireConsistent(t, item)
}

func TestLedger_StructuralFailuresWriteNothing(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 5, 0)
	before := len(h.ledgerRows(t, item))

	tests := []struct {
		name string
		in   ApplyInput
		want error
	}{
		{"negative stock in", ApplyInput{ItemID: item.ID, Action: model.ActionStockIn, Quantity: -1, Actor: clerk}, model.ErrInvalidQuantity},
		{"negative stock out", ApplyInput{ItemID: item.ID, Action: model.ActionStockOut, Quantity: -1, Actor: clerk}, model.ErrInvalidQuantity},
		{"overflow", ApplyInput{ItemID: item.ID, Action: model.ActionStockIn, Quantity: math.MaxInt64, Actor: clerk}, model.ErrInvalidQuantity},
		{"unknown action", ApplyInput{ItemID: item.ID, Action: "teleport", Quantity: 1, Actor: clerk}, model.ErrInvalidAction},
		{"missing item", ApplyInput{ItemID: uuid.New(), Action: model.ActionStockIn, Quantity: 1, Actor: clerk}, model.ErrItemNotFound},
		{"missing actor", ApplyInput{ItemID: item.ID, Action: model.ActionStockIn, Quantity: 1}, model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.ledger.Apply(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, model.IsStructural(err))
		})
	}

	assert.Len(t, h.ledgerRows(t, item), before)
	assert.Equal(t, int64(5), h.reload(t, item).CurrentStock)
}

func TestLedger_StaleVersionConflicts(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 10, 0)
	seen := item.Version

	_, err := h.ledger.Apply(context.Background(), ApplyInput{
		ItemID: item.ID, Action: model.ActionStockOut, Quantity: 2, ExpectedVersion: int64p(seen), Actor: clerk,
	})
	require.NoError(t, err)

	// A second writer still holding the old version must not clobber the
	// balance computed by the first.
	_, err = h.ledger.Apply(context.Background(), ApplyInput{
		ItemID: item.ID, Action: model.ActionStockOut, Quantity: 5, ExpectedVersion: int64p(seen), Actor: clerk2,
	})
	assert.ErrorIs(t, err, model.ErrPersistenceConflict)
	assert.True(t, model.IsRetryable(err))

	fresh := h.reload(t, item)
	assert.Equal(t, int64(8), fresh.CurrentStock)
	assert.Equal(t, seen+1, fresh.Version)
	h.requireConsistent(t, item)
}

func TestLedger_InactiveItemRejected(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 3, 0)
	require.NoError(t, h.db.Model(&model.Item{}).Where("id = ?", item.ID).Update("is_active", false).Error)

	_, err := h.ledger.Apply(context.Background(), ApplyInput{
		ItemID: item.ID, Action: model.ActionStockIn, Quantity: 1, Actor: clerk,
	})
	assert.ErrorIs(t, err, model.ErrItemNotFound)
}

func TestLedger_InvariantsHoldOverSequence(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 0, 0)

	steps := []ApplyInput{
		{Action: model.ActionStockIn, Quantity: 40},
		{Action: model.ActionStockOut, Quantity: 15},
		{Action: model.ActionAdjustment, Quantity: 30},
		{Action: model.ActionStockOut, Quantity: 35},
		{Action: model.ActionStockIn, Quantity: 5},
		{Action: model.ActionAdjustment, Quantity: -2},
	}
	for _, step := range steps {
		step.ItemID = item.ID
		step.Actor = clerk
		_, err := h.ledger.Apply(context.Background(), step)
		require.NoError(t, err)
	}

	rows := h.ledgerRows(t, item)
	require.Len(t, rows, len(steps))
	var prev int64
	for i, row := range rows {
		assert.True(t, row.Consistent(), "row %d", i)
		assert.Equal(t, prev, row.BalanceBefore, "row %d continues the chain", i)
		assert.Equal(t, int64(i+1), row.ItemVersion)
		prev = row.BalanceAfter
	}
	assert.Equal(t, prev, h.reload(t, item).CurrentStock)
	assert.Equal(t, int64(-2), prev)
	h.requireConsistent(t, item)
}

func TestLedger_ApplyAnnounces(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 0, 0)
	audits := h.audit.count(model.EventStockApplied)

	_, err := h.ledger.Apply(context.Background(), ApplyInput{
		ItemID: item.ID, Action: model.ActionStockIn, Quantity: 4, Actor: clerk,
	})
	require.NoError(t, err)

	assert.Equal(t, audits+1, h.audit.count(model.EventStockApplied))
	assert.Contains(t, h.pub.messages, "stock_update")
}

func TestLedger_VerifyDetectsDrift(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 9, 0)

	require.NoError(t, h.db.Model(&model.Item{}).Where("id = ?", item.ID).Update("current_stock", 11).Error)

	res, err := h.ledger.VerifyItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.False(t, res.Consistent)
	assert.Equal(t, int64(9), res.LedgerBalance)
	assert.Equal(t, int64(11), res.StoredBalance)
}

func TestLedger_NewItemHasEmptyLedger(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 0, 0)

	res, err := h.ledger.VerifyItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, res.Consistent)
	assert.Zero(t, res.Transactions)
	assert.Zero(t, res.StoredBalance)
}
