package models

import "time"

// EntityMapping is the durable bidirectional link between one local object and
// one remote object. At most one row may exist per (tenant, entity_type,
// local_id) and per (tenant, entity_type, remote_id); both directions are
// indexed. Rows are never deleted except by an explicit unlink.
type EntityMapping struct {
	ID                 uint       `gorm:"primary_key" json:"id"`
	TenantId           string     `gorm:"uniqueIndex:idx_mapping_local,priority:1;uniqueIndex:idx_mapping_remote,priority:1;not null" json:"tenant_id"`
	EntityType         EntityType `gorm:"uniqueIndex:idx_mapping_local,priority:2;uniqueIndex:idx_mapping_remote,priority:2;size:50;not null" json:"entity_type"`
	LocalId            string     `gorm:"uniqueIndex:idx_mapping_local,priority:3;size:128;not null" json:"local_id"`
	RemoteId           string     `gorm:"uniqueIndex:idx_mapping_remote,priority:3;size:128;not null" json:"remote_id"`
	RemoteVersionToken string     `gorm:"size:64" json:"remote_version_token"`
	SyncStatus         SyncStatus `gorm:"size:20;not null" json:"sync_status"`
	SyncError          string     `gorm:"type:text" json:"sync_error"`
	LastSyncedAt       *time.Time `json:"last_synced_at"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
