package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"

	"go.uber.org/zap"
)

type ImportKind string

const (
	ImportItems     ImportKind = "items"
	ImportLocations ImportKind = "locations"
	ImportStock     ImportKind = "stock"
)

const DefaultImportMaxErrors = 50

// ImportInput is one batch. HeaderRows overrides the configured header
// offset used to number rows; nil keeps the default.
type ImportInput struct {
	Kind       ImportKind
	Rows       []Row
	HeaderRows *int
	Actor      Actor
}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportBatchResult always carries success and failure counts together.
// Pending counts stock rows routed to approval.
type ImportBatchResult struct {
	Kind      ImportKind `json:"kind"`
	Total     int        `json:"total"`
	Success   int        `json:"success"`
	Failed    int        `json:"failed"`
	Pending   int        `json:"pending"`
	Skipped   int        `json:"skipped"`
	Errors    []RowError `json:"errors"`
	Truncated bool       `json:"truncated"`
}

func (r *ImportBatchResult) fail(row int, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RowError{Row: row, Message: err.Error()})
}

// capErrors orders errors by input row and keeps the first max of them.
// Rows may have been processed out of input order.
func (r *ImportBatchResult) capErrors(max int) {
	sort.SliceStable(r.Errors, func(a, b int) bool { return r.Errors[a].Row < r.Errors[b].Row })
	if len(r.Errors) > max {
		r.Errors = r.Errors[:max]
		r.Truncated = true
	}
}

type ImportService interface {
	Import(ctx context.Context, in ImportInput) (*ImportBatchResult, error)
}

type importService struct {
	inventory    InventoryService
	itemRepo     repository.ItemRepository
	locationRepo repository.LocationRepository
	audit        AuditSink
	log          *zap.Logger
	maxErrors    int
	headerRows   int
}

func NewImportService(inventory InventoryService, itemRepo repository.ItemRepository, locationRepo repository.LocationRepository, audit AuditSink, log *zap.Logger, maxErrors, headerRows int) ImportService {
	if maxErrors <= 0 {
		maxErrors = DefaultImportMaxErrors
	}
	if headerRows < 0 {
		headerRows = 1
	}
	return &importService{
		inventory:    inventory,
		itemRepo:     itemRepo,
		locationRepo: locationRepo,
		audit:        audit,
		log:          log,
		maxErrors:    maxErrors,
		headerRows:   headerRows,
	}
}

// indexedRow remembers where a row sat in the input.
type indexedRow struct {
	index int
	row   Row
}

// Import runs the batch one row at a time in input order, so later rows
// can refer to entities created by earlier ones. A failing row is recorded
// and the batch moves on; only batch-level problems are returned as errors.
func (s *importService) Import(ctx context.Context, in ImportInput) (*ImportBatchResult, error) {
	var apply func(context.Context, Row, Actor) (bool, error)
	switch ImportKind(strings.ToLower(string(in.Kind))) {
	case ImportItems:
		apply = s.importItem
	case ImportLocations:
		apply = s.importLocation
	case ImportStock:
		apply = s.importStock
	default:
		return nil, &model.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown import kind %q", in.Kind)}
	}
	if len(in.Rows) == 0 {
		return nil, &model.ValidationError{Field: "rows", Message: "import has no rows"}
	}
	if in.Actor.ID == "" {
		return nil, &model.ValidationError{Field: "actor", Message: "actor is required"}
	}

	offset := s.headerRows
	if in.HeaderRows != nil && *in.HeaderRows >= 0 {
		offset = *in.HeaderRows
	}

	rows := make([]indexedRow, len(in.Rows))
	for i, r := range in.Rows {
		rows[i] = indexedRow{index: i, row: normalizeRow(r)}
	}
	kind := ImportKind(strings.ToLower(string(in.Kind)))
	if kind == ImportLocations {
		// Parents first; ties keep input order.
		sort.SliceStable(rows, func(a, b int) bool {
			return locationDepth(rows[a].row) < locationDepth(rows[b].row)
		})
	}

	res := &ImportBatchResult{Kind: kind, Total: len(rows), Errors: []RowError{}}
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rowNo := r.index + 1 + offset
		if blank(r.row) {
			res.Skipped++
			continue
		}
		pending, err := apply(ctx, r.row, in.Actor)
		switch {
		case err != nil:
			res.fail(rowNo, err)
			s.log.Debug("import row failed", zap.String("kind", string(kind)), zap.Int("row", rowNo), zap.Error(err))
		case pending:
			res.Pending++
		default:
			res.Success++
		}
	}
	res.capErrors(s.maxErrors)

	s.audit.RecordEvent(ctx, model.EventImportCompleted,
		fmt.Sprintf("%s import: %d succeeded, %d failed, %d pending approval", kind, res.Success, res.Failed, res.Pending),
		map[string]interface{}{
			"kind":      kind,
			"total":     res.Total,
			"success":   res.Success,
			"failed":    res.Failed,
			"pending":   res.Pending,
			"skipped":   res.Skipped,
			"truncated": res.Truncated,
			"actor_id":  in.Actor.ID,
		})
	s.log.Info("import completed",
		zap.String("kind", string(kind)),
		zap.Int("success", res.Success),
		zap.Int("failed", res.Failed),
		zap.Int("pending", res.Pending))

	return res, nil
}

func normalizeRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		key := NormalizeHeader(k)
		if _, seen := out[key]; !seen {
			out[key] = strings.TrimSpace(v)
		}
	}
	return out
}

func blank(r Row) bool {
	for _, v := range r {
		if v != "" {
			return false
		}
	}
	return true
}

// locationDepth sorts unknown types first; they fail validation anyway.
func locationDepth(r Row) int {
	t, ok := model.ParseLocationType(r["type"])
	if !ok {
		return -1
	}
	return t.Depth()
}

// first returns the first non-empty value among the header aliases.
func (r Row) first(keys ...string) string {
	for _, k := range keys {
		if v := r[k]; v != "" {
			return v
		}
	}
	return ""
}

func parseInt(field, value string, def int64) (int64, error) {
	if value == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(value, ",", ""), 10, 64)
	if err != nil {
		// Spreadsheets often hand integers back as "12.0".
		f, ferr := strconv.ParseFloat(value, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, &model.ValidationError{Field: field, Message: fmt.Sprintf("%q is not a whole number", value)}
		}
		n = int64(f)
	}
	return n, nil
}

func (s *importService) importItem(ctx context.Context, r Row, actor Actor) (bool, error) {
	minimum, err := parseInt("minimum_stock", r.first("minimum_stock", "min_stock", "minimum"), 0)
	if err != nil {
		return false, err
	}
	initial, err := parseInt("initial_stock", r.first("initial_stock", "stock", "quantity"), 0)
	if err != nil {
		return false, err
	}
	req := &CreateItemRequest{
		Name:         r["name"],
		Unit:         r["unit"],
		MinimumStock: minimum,
		CategoryName: r.first("category", "category_name"),
		InitialStock: initial,
	}
	_, err = s.inventory.CreateItem(ctx, req, actor)
	return false, err
}

func (s *importService) importLocation(ctx context.Context, r Row, actor Actor) (bool, error) {
	req := &CreateLocationRequest{
		Name:      r["name"],
		Type:      r["type"],
		ParentRef: r.first("parent", "parent_code", "parent_name"),
	}
	_, err := s.inventory.CreateLocation(ctx, req, actor)
	return false, err
}

// importStock treats every row as confirmed for negative stock: the file
// itself is the confirmation. Policy blocks and approvals still apply.
func (s *importService) importStock(ctx context.Context, r Row, actor Actor) (bool, error) {
	code := r.first("item_code", "code", "item")
	if code == "" {
		return false, &model.ValidationError{Field: "item_code", Message: "item code is required"}
	}
	actionText := r.first("action", "action_type", "type")
	if actionText == "" {
		return false, &model.ValidationError{Field: "action", Message: "action is required"}
	}
	quantityText := r.first("quantity", "qty")
	if quantityText == "" {
		return false, &model.ValidationError{Field: "quantity", Message: "quantity is required"}
	}
	quantity, err := parseInt("quantity", quantityText, 0)
	if err != nil {
		return false, err
	}

	item, err := s.itemRepo.FindByCode(ctx, nil, code)
	if err != nil {
		if errors.Is(err, model.ErrItemNotFound) {
			return false, fmt.Errorf("item %q: %w", code, err)
		}
		return false, err
	}

	req := &StockRequest{
		ItemID:          item.ID,
		Action:          actionText,
		Quantity:        quantity,
		Purpose:         r["purpose"],
		Reason:          r["reason"],
		Notes:           r["notes"],
		Recipient:       r["recipient"],
		ConfirmNegative: true,
	}
	if ref := r.first("location", "location_code"); ref != "" {
		location, err := s.resolveLocation(ctx, ref)
		if err != nil {
			return false, fmt.Errorf("location %q: %w", ref, err)
		}
		req.LocationID = &location.ID
	}

	res, err := s.inventory.RecordStock(ctx, req, actor)
	if err != nil {
		return false, err
	}
	return res.Status == StockPendingApproval, nil
}

func (s *importService) resolveLocation(ctx context.Context, ref string) (*model.Location, error) {
	location, err := s.locationRepo.FindByCode(ctx, ref)
	if err == nil || !errors.Is(err, model.ErrLocationNotFound) {
		return location, err
	}
	return s.locationRepo.FindByName(ctx, ref)
}
