package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentAllocation applies part of a payment to one invoice. A payment may
// span several invoices and an invoice may be paid by several payments; no
// 1:1 relationship is assumed anywhere in sync.
type PaymentAllocation struct {
	InvoiceId int             `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// CustomerPayment is the slim sync view of a local customer payment.
type CustomerPayment struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	TenantId        string              `gorm:"index;not null" json:"tenant_id"`
	CustomerId      int                 `gorm:"index;not null" json:"customer_id"`
	ReferenceNumber string              `gorm:"size:100" json:"reference_number"`
	Amount          decimal.Decimal     `gorm:"type:decimal(20,6)" json:"amount"`
	PaymentDate     time.Time           `json:"payment_date"`
	Notes           string              `gorm:"type:text" json:"notes"`
	Allocations     []PaymentAllocation `gorm:"serializer:json" json:"allocations"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}
