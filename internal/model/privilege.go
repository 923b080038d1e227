package model

// Privilege is a permission code checked by the HTTP middleware.
type Privilege struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name string `gorm:"type:varchar(100)" json:"name"`
}

const (
	PrivItemView       = "item:view"
	PrivItemCreate     = "item:create"
	PrivLocationCreate = "location:create"
	PrivStockView      = "stock:view"
	PrivStockCreate    = "stock:create"
	PrivApprovalView   = "approval:view"
	PrivApprovalReview = "approval:review"
	PrivImportRun      = "import:run"
	PrivAuditView      = "audit:view"
	PrivDashboardView  = "dashboard:view"
	PrivUserManage     = "user:manage"
)

var DefaultPrivileges = []Privilege{
	{Code: PrivItemView, Name: "View Items"},
	{Code: PrivItemCreate, Name: "Create Items"},
	{Code: PrivLocationCreate, Name: "Create Locations"},
	{Code: PrivStockView, Name: "View Stock Ledger"},
	{Code: PrivStockCreate, Name: "Record Stock Movements"},
	{Code: PrivApprovalView, Name: "View Approval Requests"},
	{Code: PrivApprovalReview, Name: "Review Approval Requests"},
	{Code: PrivImportRun, Name: "Run Bulk Imports"},
	{Code: PrivAuditView, Name: "View Audit Trail"},
	{Code: PrivDashboardView, Name: "View Dashboard"},
	{Code: PrivUserManage, Name: "Manage Users"},
}

// staffExcluded lists privileges withheld from the ADMIN role.
var staffExcluded = map[string]bool{
	PrivApprovalReview: true,
	PrivAuditView:      true,
	PrivUserManage:     true,
}

// AdminPrivileges filters all down to what the ADMIN role receives.
func AdminPrivileges(all []Privilege) []Privilege {
	out := make([]Privilege, 0, len(all))
	for _, p := range all {
		if !staffExcluded[p.Code] {
			out = append(out, p)
		}
	}
	return out
}
