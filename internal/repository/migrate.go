package repository

import (
	"fmt"

	"go-inventory-ledger/internal/model"

	"gorm.io/gorm"
)

// pendingApprovalIndex keeps at most one pending request per target. Both
// Postgres and SQLite support partial unique indexes.
const pendingApprovalIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_approval_one_pending
	ON approval_requests (request_type, item_id) WHERE status = 'pending'`

// Migrate creates or updates every table and the indexes gorm tags cannot
// express.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Privilege{},
		&model.Role{},
		&model.User{},
		&model.Category{},
		&model.Item{},
		&model.Location{},
		&model.StockTransaction{},
		&model.ApprovalRequest{},
		&model.AuditEvent{},
		&model.Notification{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(pendingApprovalIndex).Error; err != nil {
		return fmt.Errorf("create pending approval index: %w", err)
	}
	return nil
}
