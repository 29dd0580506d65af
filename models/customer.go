package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "ACTIVE"
	CustomerStatusArchived CustomerStatus = "ARCHIVED"
)

// Customer is the slim sync view of a local customer: only the fields the
// transcoders read plus the fields the remote system is authoritative for.
type Customer struct {
	ID            int             `gorm:"primary_key" json:"id"`
	TenantId      string          `gorm:"index;not null" json:"tenant_id"`
	DisplayName   string          `gorm:"size:255;not null" json:"display_name"`
	Email         string          `gorm:"size:255" json:"email"`
	Phone         string          `gorm:"size:64" json:"phone"`
	Notes         string          `gorm:"type:text" json:"notes"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,6)" json:"balance"`
	CurrentStatus CustomerStatus  `gorm:"size:20" json:"current_status"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CustomerRemoteFields is the narrow patch a pull may apply to a local
// customer. Only fields the remote platform owns appear here; names, emails
// and notes are locally owned and must never round-trip.
type CustomerRemoteFields struct {
	Balance *decimal.Decimal
}

func (f CustomerRemoteFields) IsEmpty() bool {
	return f.Balance == nil
}
