package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SalesInvoiceStatus string

const (
	SalesInvoiceStatusDraft   SalesInvoiceStatus = "DRAFT"
	SalesInvoiceStatusSent    SalesInvoiceStatus = "SENT"
	SalesInvoiceStatusViewed  SalesInvoiceStatus = "VIEWED"
	SalesInvoiceStatusPartial SalesInvoiceStatus = "PARTIAL"
	SalesInvoiceStatusPaid    SalesInvoiceStatus = "PAID"
	SalesInvoiceStatusVoid    SalesInvoiceStatus = "VOID"
)

type InvoiceLine struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitRate    decimal.Decimal `json:"unit_rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// SalesInvoice is the slim sync view of a local invoice. Subtotal/tax/discount
// math happens in the books backend; sync only reads the resulting lines and
// totals.
type SalesInvoice struct {
	ID            int                `gorm:"primary_key" json:"id"`
	TenantId      string             `gorm:"index;not null" json:"tenant_id"`
	CustomerId    int                `gorm:"index;not null" json:"customer_id"`
	InvoiceNumber string             `gorm:"size:100" json:"invoice_number"`
	InvoiceDate   time.Time          `json:"invoice_date"`
	DueDate       *time.Time         `json:"due_date"`
	Notes         string             `gorm:"type:text" json:"notes"`
	Lines         []InvoiceLine      `gorm:"serializer:json" json:"lines"`
	Total         decimal.Decimal    `gorm:"type:decimal(20,6)" json:"total"`
	AmountPaid    decimal.Decimal    `gorm:"type:decimal(20,6)" json:"amount_paid"`
	AmountDue     decimal.Decimal    `gorm:"type:decimal(20,6)" json:"amount_due"`
	CurrentStatus SalesInvoiceStatus `gorm:"size:20" json:"current_status"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoiceRemoteFields is the narrow patch a pull may apply to a local invoice:
// paid/due amounts and the payment-derived status. Lines, dates, numbers and
// notes are locally owned.
type InvoiceRemoteFields struct {
	AmountPaid    *decimal.Decimal
	AmountDue     *decimal.Decimal
	CurrentStatus *SalesInvoiceStatus
}

func (f InvoiceRemoteFields) IsEmpty() bool {
	return f.AmountPaid == nil && f.AmountDue == nil && f.CurrentStatus == nil
}

// InvoiceStatusesForPush are the local states worth pushing: a draft invoice
// is not yet a financial document on the remote side.
var InvoiceStatusesForPush = []SalesInvoiceStatus{
	SalesInvoiceStatusSent,
	SalesInvoiceStatusViewed,
	SalesInvoiceStatusPartial,
}
