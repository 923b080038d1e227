package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/policy"
	"go-inventory-ledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func TestImport_ItemsPartialFailure(t *testing.T) {
	h := newHarness(t)
	rows := []Row{
		{"Name": "Bolt", "Unit": "pcs", "Minimum Stock": "10", "Initial Stock": "100"},
		{"Name": "Nut", "Unit": "pcs", "Minimum Stock": "abc"},
		{"Name": "Washer", "Unit": "pcs", "Initial Stock": "12.0"},
		{"Name": "", "Unit": ""},
		{"Name": "   ", "Unit": "pcs"},
	}

	res, err := h.imports.Import(context.Background(), ImportInput{Kind: ImportItems, Rows: rows, Actor: clerk})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 2)
	// Row numbers count the header line.
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Message, "minimum_stock")
	assert.Equal(t, 6, res.Errors[1].Row)

	items, err := h.inventory.GetItems(context.Background(), repository.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	byName := map[string]model.Item{}
	for _, it := range items {
		byName[it.Name] = it
	}
	assert.Equal(t, int64(100), byName["Bolt"].CurrentStock)
	assert.Equal(t, int64(12), byName["Washer"].CurrentStock)
	assert.Equal(t, 1, h.audit.count(model.EventImportCompleted))
}

func TestImport_HeaderOffsetOverride(t *testing.T) {
	h := newHarness(t)
	zero := 0
	res, err := h.imports.Import(context.Background(), ImportInput{
		Kind:       ImportItems,
		Rows:       []Row{{"name": "Ok"}, {"name": "Bad", "minimum_stock": "-4"}},
		HeaderRows: &zero,
		Actor:      clerk,
	})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
}

func TestImport_LocationsParentsFirst(t *testing.T) {
	h := newHarness(t)
	rows := []Row{
		{"name": "Bin 7", "type": "bin", "parent": "Cold"},
		{"name": "Cold", "type": "zone", "parent": "Main"},
		{"name": "Broken", "type": "basement"},
		{"name": "Main", "type": "warehouse"},
	}

	res, err := h.imports.Import(context.Background(), ImportInput{Kind: ImportLocations, Rows: rows, Actor: clerk})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].Row)

	locations, err := h.inventory.GetLocations(context.Background())
	require.NoError(t, err)
	ids := map[string]model.Location{}
	for _, l := range locations {
		ids[l.Name] = l
	}
	require.NotNil(t, ids["Bin 7"].ParentID)
	assert.Equal(t, ids["Cold"].ID, *ids["Bin 7"].ParentID)
	require.NotNil(t, ids["Cold"].ParentID)
	assert.Equal(t, ids["Main"].ID, *ids["Cold"].ParentID)
}

func TestImport_StockRowsFollowPolicy(t *testing.T) {
	h := newHarness(t)
	h.policy.Update(func(s *policy.Set) {
		s.NegativeStock.Allowed = true
		s.ApprovalThresholds[model.ActionStockOut] = 10
	})
	a := h.seedItem(t, 50, 0)
	b := h.seedItem(t, 50, 0)

	rows := []Row{
		{"item_code": a.Code, "action": "in", "qty": "5"},
		{"item_code": a.Code, "action": "out", "qty": "8"},
		{"item_code": b.Code, "action": "out", "qty": "30", "recipient": "site C"},
		{"item_code": "ITM-000000-ZZZZZ", "action": "in", "qty": "1"},
		{"item_code": a.Code, "action": "teleport", "qty": "1"},
		{"item_code": a.Code, "action": "out", "qty": "9"},
	}
	res, err := h.imports.Import(context.Background(), ImportInput{Kind: ImportStock, Rows: rows, Actor: clerk})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Success)
	assert.Equal(t, 1, res.Pending)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 5, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Message, "ITM-000000-ZZZZZ")
	assert.Equal(t, 6, res.Errors[1].Row)

	assert.Equal(t, int64(38), h.reload(t, a).CurrentStock)
	assert.Equal(t, int64(50), h.reload(t, b).CurrentStock)

	pending, err := h.approvals.List(context.Background(), repository.ApprovalFilter{ItemID: &b.ID})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(30), pending[0].Quantity)
}

func TestImport_StockBlockedRowFails(t *testing.T) {
	h := newHarness(t)
	item := h.seedItem(t, 3, 0)

	res, err := h.imports.Import(context.Background(), ImportInput{
		Kind:  ImportStock,
		Rows:  []Row{{"item_code": item.Code, "action": "out", "quantity": "5"}},
		Actor: clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Errors[0].Message, "negative stock is not allowed")
	assert.Equal(t, int64(3), h.reload(t, item).CurrentStock)
}

func TestImport_ErrorListIsCapped(t *testing.T) {
	h := newHarness(t)
	log := zap.NewNop()
	imports := NewImportService(h.inventory, h.items, repository.NewLocationRepo(h.db), h.audit, log, 3, 1)

	rows := make([]Row, 6)
	for i := range rows {
		rows[i] = Row{"name": fmt.Sprintf("Item %d", i), "minimum_stock": "x"}
	}
	res, err := imports.Import(context.Background(), ImportInput{Kind: ImportItems, Rows: rows, Actor: clerk})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Failed)
	assert.Len(t, res.Errors, 3)
	assert.True(t, res.Truncated)
}

func TestImport_BatchLevelErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.imports.Import(context.Background(), ImportInput{Kind: "suppliers", Rows: []Row{{"name": "x"}}, Actor: clerk})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = h.imports.Import(context.Background(), ImportInput{Kind: ImportItems, Actor: clerk})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = h.imports.Import(context.Background(), ImportInput{Kind: ImportItems, Rows: []Row{{"name": "x"}}})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestReadRows_CSV(t *testing.T) {
	input := "\ufeffItem Code,Action, Qty\nITM-1,in,5\n\nITM-2,out,3,extra\n"
	rows, err := ReadRows("stock.CSV", strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, Row{"item_code": "ITM-1", "action": "in", "qty": "5"}, rows[0])
	assert.Equal(t, "out", rows[1]["action"])
	assert.Len(t, rows[1], 3)
}

func TestReadRows_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Name", "Unit", "Minimum Stock"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Bolt", "pcs", 10}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Nut", "pcs", 4}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, err := ReadRows("items.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Bolt", rows[0]["name"])
	assert.Equal(t, "4", rows[1]["minimum_stock"])
}

func TestReadRows_Unsupported(t *testing.T) {
	_, err := ReadRows("items.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnreadableInput)

	_, err = ReadRows("items.xlsx", strings.NewReader("not a workbook"))
	assert.ErrorIs(t, err, ErrUnreadableInput)

	_, err = ReadRowsCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrUnreadableInput)
}

func TestImport_CappedErrorsKeepEarliestRows(t *testing.T) {
	h := newHarness(t)
	imports := NewImportService(h.inventory, h.items, repository.NewLocationRepo(h.db), h.audit, zap.NewNop(), 1, 1)

	// The warehouse is processed first even though it comes second.
	rows := []Row{
		{"name": "Bin 9", "type": "bin", "parent": "Nowhere"},
		{"name": "", "type": "warehouse"},
	}
	res, err := imports.Import(context.Background(), ImportInput{Kind: ImportLocations, Rows: rows, Actor: clerk})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failed)
	assert.True(t, res.Truncated)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
}

func TestImport_BlankRowIsSkippedNotFailed(t *testing.T) {
	h := newHarness(t)
	rows := []Row{
		{"name": "Bolt"},
		{"name": "", "unit": "", "minimum_stock": ""},
		{"name": "Nut", "minimum_stock": "many"},
		{"name": "Washer"},
	}

	res, err := h.imports.Import(context.Background(), ImportInput{Kind: ImportItems, Rows: rows, Actor: clerk})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].Row)
	assert.Equal(t, res.Total, res.Success+res.Failed+res.Pending+res.Skipped)
}
