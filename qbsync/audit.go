package qbsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"bitbucket.org/mmdatafocus/qbo_sync/utils"
	"gorm.io/gorm"
)

// MaxRunErrors bounds the per-run error list to keep audit rows small.
const MaxRunErrors = 100

// RunTotals aggregates one orchestrated run.
type RunTotals struct {
	Synced  int
	Failed  int
	Skipped int
	Errors  []string
}

// AuditLog records the lifecycle of every orchestrated run. A run reaches a
// terminal state exactly once; completed_at and duration are written by
// whichever of Complete/Fail lands first.
type AuditLog interface {
	Start(ctx context.Context, tenantId string, action models.SyncAction, trigger models.SyncTrigger) (uint, error)
	Complete(ctx context.Context, runId uint, totals RunTotals) error
	Fail(ctx context.Context, runId uint, message string) error
	List(ctx context.Context, tenantId string, limit int, action models.SyncAction) ([]models.SyncRun, error)
	LastRun(ctx context.Context, tenantId string, action models.SyncAction) (*models.SyncRun, error)
	InProgress(ctx context.Context, tenantId string, action models.SyncAction) (bool, error)
	Prune(ctx context.Context, tenantId string, keepCount int) error
}

type gormAuditLog struct {
	db       func() *gorm.DB
	archiver RunArchiver
}

func NewAuditLog(db func() *gorm.DB, archiver RunArchiver) AuditLog {
	return &gormAuditLog{db: db, archiver: archiver}
}

func (l *gormAuditLog) conn() (*gorm.DB, error) {
	db := l.db()
	if db == nil {
		return nil, wrapStorage("audit log", errors.New("database not ready"))
	}
	return db, nil
}

func (l *gormAuditLog) Start(ctx context.Context, tenantId string, action models.SyncAction, trigger models.SyncTrigger) (uint, error) {
	db, err := l.conn()
	if err != nil {
		return 0, err
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	run := models.SyncRun{
		TenantId:      tenantId,
		Action:        action,
		Status:        models.SyncRunStatusStarted,
		TriggeredBy:   trigger,
		CorrelationId: correlationId,
		StartedAt:     time.Now(),
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return 0, wrapStorage("audit start", err)
	}
	return run.ID, nil
}

func (l *gormAuditLog) Complete(ctx context.Context, runId uint, totals RunTotals) error {
	return l.finalize(ctx, runId, models.SyncRunStatusCompleted, map[string]interface{}{
		"items_synced":  totals.Synced,
		"items_failed":  totals.Failed,
		"items_skipped": totals.Skipped,
		"errors_json":   models.EncodeRunErrors(capRunErrors(totals.Errors)),
	})
}

func (l *gormAuditLog) Fail(ctx context.Context, runId uint, message string) error {
	return l.finalize(ctx, runId, models.SyncRunStatusFailed, map[string]interface{}{
		"errors_json": models.EncodeRunErrors([]string{message}),
	})
}

func (l *gormAuditLog) finalize(ctx context.Context, runId uint, status models.SyncRunStatus, extra map[string]interface{}) error {
	db, err := l.conn()
	if err != nil {
		return err
	}

	var run models.SyncRun
	if err := db.WithContext(ctx).Where("id = ?", runId).Take(&run).Error; err != nil {
		return wrapStorage("audit finalize load", err)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": now,
		"duration_ms":  now.Sub(run.StartedAt).Milliseconds(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	// Guarded update: only a run still in "started" may be finalized, so the
	// first of Complete/Fail wins and the terminal state is written once.
	res := db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", runId, models.SyncRunStatusStarted).
		Updates(updates)
	if res.Error != nil {
		return wrapStorage("audit finalize", res.Error)
	}
	return nil
}

func (l *gormAuditLog) List(ctx context.Context, tenantId string, limit int, action models.SyncAction) ([]models.SyncRun, error) {
	db, err := l.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	q := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	var runs []models.SyncRun
	if err := q.Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, wrapStorage("audit list", err)
	}
	return runs, nil
}

func (l *gormAuditLog) LastRun(ctx context.Context, tenantId string, action models.SyncAction) (*models.SyncRun, error) {
	runs, err := l.List(ctx, tenantId, 1, action)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (l *gormAuditLog) InProgress(ctx context.Context, tenantId string, action models.SyncAction) (bool, error) {
	db, err := l.conn()
	if err != nil {
		return false, err
	}
	q := db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("tenant_id = ? AND status = ?", tenantId, models.SyncRunStatusStarted)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, wrapStorage("audit in-progress", err)
	}
	return count > 0, nil
}

// Prune keeps the newest keepCount runs per tenant. When an archiver is
// configured, evicted rows are written out before deletion.
func (l *gormAuditLog) Prune(ctx context.Context, tenantId string, keepCount int) error {
	db, err := l.conn()
	if err != nil {
		return err
	}
	if keepCount < 0 {
		keepCount = 0
	}

	var evicted []models.SyncRun
	err = db.WithContext(ctx).
		Where("tenant_id = ?", tenantId).
		Order("started_at DESC, id DESC").
		Offset(keepCount).
		Limit(-1).
		Find(&evicted).Error
	if err != nil {
		return wrapStorage("audit prune select", err)
	}
	if len(evicted) == 0 {
		return nil
	}

	if l.archiver != nil {
		if err := l.archiver.Archive(ctx, tenantId, evicted); err != nil {
			return err
		}
	}

	ids := make([]uint, 0, len(evicted))
	for _, run := range evicted {
		ids = append(ids, run.ID)
	}
	return wrapStorage("audit prune delete", db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantId, ids).
		Delete(&models.SyncRun{}).Error)
}

func capRunErrors(errs []string) []string {
	if len(errs) > MaxRunErrors {
		return errs[:MaxRunErrors]
	}
	return errs
}
