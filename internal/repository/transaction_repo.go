package repository

import (
	"context"
	"time"

	"go-inventory-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionRepository is append-only: ledger rows are never updated or
// deleted once written.
type TransactionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, t *model.StockTransaction) error
	FindAll(ctx context.Context, filter TransactionFilter) ([]model.StockTransaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.StockTransaction, error)
	FindChain(ctx context.Context, itemID uuid.UUID) ([]model.StockTransaction, error)
	GetStockMovement(ctx context.Context, startDate, endDate time.Time) ([]StockMovementData, error)
	GetDashboardStats(ctx context.Context) (*DashboardStats, error)
}

type TransactionFilter struct {
	ItemID *uuid.UUID
	Action model.ActionClass
	From   *time.Time
	To     *time.Time
	Limit  int
}

// StockMovementData is one day of the movement chart.
type StockMovementData struct {
	Date     string `json:"date"`
	Inbound  int64  `json:"inbound"`
	Outbound int64  `json:"outbound"`
}

// DashboardStats is the overview card data.
type DashboardStats struct {
	TotalItems         int64 `json:"total_items"`
	LowStockCount      int64 `json:"low_stock_count"`
	NegativeStockCount int64 `json:"negative_stock_count"`
	PendingApprovals   int64 `json:"pending_approvals"`
}

type transactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepo(db *gorm.DB) TransactionRepository {
	return &transactionRepo{db}
}

func (r *transactionRepo) Create(ctx context.Context, tx *gorm.DB, t *model.StockTransaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return conn(ctx, r.db, tx).Create(t).Error
}

func (r *transactionRepo) FindAll(ctx context.Context, filter TransactionFilter) ([]model.StockTransaction, error) {
	var transactions []model.StockTransaction
	q := r.db.WithContext(ctx).Preload("Item")
	if filter.ItemID != nil {
		q = q.Where("item_id = ?", *filter.ItemID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	err := q.Order("created_at DESC").Order("item_version DESC").Find(&transactions).Error
	return transactions, err
}

func (r *transactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.StockTransaction, error) {
	var transaction model.StockTransaction
	if err := r.db.WithContext(ctx).Preload("Item").First(&transaction, "id = ?", id).Error; err != nil {
		return nil, notFound(err, model.ErrTransactionNotFound)
	}
	return &transaction, nil
}

// FindChain returns an item's ledger in application order.
func (r *transactionRepo) FindChain(ctx context.Context, itemID uuid.UUID) ([]model.StockTransaction, error) {
	var transactions []model.StockTransaction
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("item_version ASC").
		Find(&transactions).Error
	return transactions, err
}

// GetStockMovement aggregates signed deltas per day. Adjustments count on
// whichever side their delta falls.
func (r *transactionRepo) GetStockMovement(ctx context.Context, startDate, endDate time.Time) ([]StockMovementData, error) {
	var results []StockMovementData

	rows, err := r.db.WithContext(ctx).Model(&model.StockTransaction{}).
		Select(`
			DATE(created_at) as date,
			COALESCE(SUM(CASE WHEN delta > 0 THEN delta ELSE 0 END), 0) as inbound,
			COALESCE(SUM(CASE WHEN delta < 0 THEN -delta ELSE 0 END), 0) as outbound
		`).
		Where("created_at BETWEEN ? AND ?", startDate, endDate).
		Group("DATE(created_at)").
		Order("date ASC").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var data StockMovementData
		if err := rows.Scan(&data.Date, &data.Inbound, &data.Outbound); err != nil {
			return nil, err
		}
		results = append(results, data)
	}

	return results, rows.Err()
}

func (r *transactionRepo) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	db := r.db.WithContext(ctx)

	if err := db.Model(&model.Item{}).Count(&stats.TotalItems).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Item{}).Where("current_stock < minimum_stock").Count(&stats.LowStockCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Item{}).Where("current_stock < 0").Count(&stats.NegativeStockCount).Error; err != nil {
		return nil, err
	}
	// Rows past their TTL still count until something reads them.
	if err := db.Model(&model.ApprovalRequest{}).Where("status = ?", model.ApprovalPending).Count(&stats.PendingApprovals).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}
