package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExpenseStatus string

const (
	ExpenseStatusDraft    ExpenseStatus = "DRAFT"
	ExpenseStatusApproved ExpenseStatus = "APPROVED"
	ExpenseStatusPaid     ExpenseStatus = "PAID"
	ExpenseStatusVoid     ExpenseStatus = "VOID"
)

// Expense is the slim sync view of a local expense.
type Expense struct {
	ID              int             `gorm:"primary_key" json:"id"`
	TenantId        string          `gorm:"index;not null" json:"tenant_id"`
	VendorName      string          `gorm:"size:255" json:"vendor_name"`
	ReferenceNumber string          `gorm:"size:100" json:"reference_number"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount"`
	ExpenseDate     time.Time       `json:"expense_date"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CurrentStatus   ExpenseStatus   `gorm:"size:20" json:"current_status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ExpenseStatusesForPush: only approved or paid expenses become remote
// purchase documents.
var ExpenseStatusesForPush = []ExpenseStatus{
	ExpenseStatusApproved,
	ExpenseStatusPaid,
}
