package models

import (
	"encoding/json"
	"time"
)

const (
	IntegrationProviderQuickBooks = "quickbooks"
)

const (
	ConnectionStatusConnected    = "connected"
	ConnectionStatusDisconnected = "disconnected"
	ConnectionStatusError        = "error"
)

// Connection is the per-tenant link to the remote accounting platform. The
// OAuth handshake and token refresh happen in an external auth service; this
// table only surfaces what sync needs: a realm id, a currently valid access
// token reference, and its expiry.
type Connection struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	TenantId          string     `gorm:"uniqueIndex:idx_connection_tenant,priority:1;not null" json:"tenant_id"`
	Provider          string     `gorm:"uniqueIndex:idx_connection_tenant,priority:2;size:50;not null" json:"provider"`
	Status            string     `gorm:"size:20;not null" json:"status"`
	RealmId           string     `gorm:"size:100" json:"realm_id"`
	AccessTokenRef    string     `gorm:"type:text" json:"access_token_ref"`
	TokenExpiresAt    *time.Time `json:"token_expires_at"`
	SettingsJSON      []byte     `gorm:"type:json" json:"settings"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastSuccessSyncAt *time.Time `json:"last_success_sync_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ConnectionSettings carries tenant-level defaults the remote platform
// requires on documents but the local model does not track.
type ConnectionSettings struct {
	// Account the remote platform debits expenses against.
	ExpenseAccountRemoteId string `json:"expense_account_remote_id"`
	// Account remote payments are deposited to.
	DepositAccountRemoteId string `json:"deposit_account_remote_id"`
}

func DecodeConnectionSettings(raw []byte) ConnectionSettings {
	if len(raw) == 0 {
		return ConnectionSettings{}
	}
	var s ConnectionSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return ConnectionSettings{}
	}
	return s
}

func EncodeConnectionSettings(s ConnectionSettings) []byte {
	b, _ := json.Marshal(s)
	return b
}
