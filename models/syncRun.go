package models

import (
	"encoding/json"
	"time"
)

// SyncRun is one orchestrated batch operation in the audit log. The terminal
// update (completed or failed) is the only mutation after creation;
// CompletedAt/DurationMs are set exactly once by whichever of complete/fail
// lands first. A run left "started" indefinitely indicates a crashed worker.
type SyncRun struct {
	ID            uint          `gorm:"primary_key" json:"id"`
	TenantId      string        `gorm:"index:idx_sync_run_tenant,priority:1;not null" json:"tenant_id"`
	Action        SyncAction    `gorm:"index:idx_sync_run_tenant,priority:2;size:30;not null" json:"action"`
	Status        SyncRunStatus `gorm:"size:20;not null" json:"status"`
	TriggeredBy   SyncTrigger   `gorm:"size:20" json:"triggered_by"`
	ItemsSynced   int           `json:"items_synced"`
	ItemsFailed   int           `json:"items_failed"`
	ItemsSkipped  int           `json:"items_skipped"`
	ErrorsJSON    []byte        `gorm:"type:json" json:"errors"`
	CorrelationId string        `gorm:"size:64" json:"correlation_id"`
	StartedAt     time.Time     `gorm:"index" json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at"`
	DurationMs    int64         `json:"duration_ms"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *SyncRun) Errors() []string {
	if len(r.ErrorsJSON) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(r.ErrorsJSON, &out); err != nil {
		return nil
	}
	return out
}

func EncodeRunErrors(errs []string) []byte {
	if len(errs) == 0 {
		return nil
	}
	b, _ := json.Marshal(errs)
	return b
}
