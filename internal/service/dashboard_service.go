package service

import (
	"context"
	"time"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"
)

type DashboardService interface {
	GetStockMovement(ctx context.Context, days int) ([]repository.StockMovementData, error)
	GetDashboardStats(ctx context.Context) (*repository.DashboardStats, error)
	GetLowStockItems(ctx context.Context) ([]model.Item, error)
}

type dashboardService struct {
	txRepo   repository.TransactionRepository
	itemRepo repository.ItemRepository
}

func NewDashboardService(txRepo repository.TransactionRepository, itemRepo repository.ItemRepository) DashboardService {
	return &dashboardService{txRepo: txRepo, itemRepo: itemRepo}
}

func (s *dashboardService) GetStockMovement(ctx context.Context, days int) ([]repository.StockMovementData, error) {
	if days <= 0 {
		days = 7
	}
	endDate := time.Now().UTC()
	startDate := endDate.AddDate(0, 0, -days)

	return s.txRepo.GetStockMovement(ctx, startDate, endDate)
}

func (s *dashboardService) GetDashboardStats(ctx context.Context) (*repository.DashboardStats, error) {
	return s.txRepo.GetDashboardStats(ctx)
}

// GetLowStockItems lists items whose balance is below their minimum.
func (s *dashboardService) GetLowStockItems(ctx context.Context) ([]model.Item, error) {
	return s.itemRepo.FindAll(ctx, repository.ItemFilter{LowStockOnly: true})
}
