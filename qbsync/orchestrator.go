package qbsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/config"
	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultSyncWorkers = 4

// Orchestrator drives batch pushes, pulls and full syncs. One orchestrator
// serves all tenants; per-run state lives on the stack of each run.
type Orchestrator struct {
	logger   *logrus.Logger
	gateway  RemoteGateway
	mappings MappingStore
	local    LocalStore
	audit    AuditLog
	locker   RunLocker
	db       func() *gorm.DB
	settings func(ctx context.Context, tenantId string) (models.ConnectionSettings, error)
	workers  int
}

func NewOrchestrator(gateway RemoteGateway, mappings MappingStore, local LocalStore, audit AuditLog, locker RunLocker, db func() *gorm.DB) *Orchestrator {
	workers := defaultSyncWorkers
	if raw := os.Getenv("QBO_SYNC_WORKERS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			workers = n
		}
	}
	o := &Orchestrator{
		logger:   config.GetLogger(),
		gateway:  gateway,
		mappings: mappings,
		local:    local,
		audit:    audit,
		locker:   locker,
		db:       db,
		workers:  workers,
	}
	o.settings = o.dbConnectionSettings
	return o
}

// RunResult is what a finished (or aborted) run reports back to its trigger.
type RunResult struct {
	RunId  uint
	Status models.SyncRunStatus
	Totals RunTotals
}

// runStats accumulates per-item outcomes across the worker pool.
type runStats struct {
	mu      sync.Mutex
	synced  int
	failed  int
	skipped int
	errs    []string
}

func (s *runStats) succeed() {
	s.mu.Lock()
	s.synced++
	s.mu.Unlock()
}

func (s *runStats) fail(msg string) {
	s.mu.Lock()
	s.failed++
	if len(s.errs) < MaxRunErrors {
		s.errs = append(s.errs, msg)
	}
	s.mu.Unlock()
}

// skipQuiet counts a skip that is routine at pull scale (unmapped or
// unchanged remote objects) and would flood the error list.
func (s *runStats) skipQuiet() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

func (s *runStats) skip(msg string) {
	s.mu.Lock()
	s.skipped++
	if len(s.errs) < MaxRunErrors {
		s.errs = append(s.errs, msg)
	}
	s.mu.Unlock()
}

func (s *runStats) totals() RunTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RunTotals{Synced: s.synced, Failed: s.failed, Skipped: s.skipped, Errors: s.errs}
}

// Push runs one entity-scoped batch push. localIds narrows the batch to
// specific records; nil means every sync-eligible record of that entity.
func (o *Orchestrator) Push(ctx context.Context, tenantId string, action models.SyncAction, trigger models.SyncTrigger, localIds []int) (*RunResult, error) {
	if !action.Valid() || action == models.SyncActionFull {
		return nil, &ValidationError{Detail: fmt.Sprintf("unknown sync action %q", action)}
	}
	return o.runGuarded(ctx, tenantId, action, trigger, func(ctx context.Context, stats *runStats) error {
		return o.pushEntity(ctx, tenantId, models.EntityForAction(action), localIds, stats)
	})
}

// Pull fetches remote changes for one entity type and applies the
// remote-owned fields locally. Audited under the entity's action.
func (o *Orchestrator) Pull(ctx context.Context, tenantId string, entityType models.EntityType, trigger models.SyncTrigger) (*RunResult, error) {
	if !entityType.Valid() {
		return nil, &ValidationError{Detail: fmt.Sprintf("unknown entity type %q", entityType)}
	}
	return o.runGuarded(ctx, tenantId, models.ActionForEntity(entityType), trigger, func(ctx context.Context, stats *runStats) error {
		return o.pullEntity(ctx, tenantId, entityType, stats)
	})
}

// FullSync runs a single audited run that pushes every entity group in
// dependency order, then pulls remote changes back. A fatal error in any
// group fails the whole run.
func (o *Orchestrator) FullSync(ctx context.Context, tenantId string, trigger models.SyncTrigger) (*RunResult, error) {
	return o.runGuarded(ctx, tenantId, models.SyncActionFull, trigger, func(ctx context.Context, stats *runStats) error {
		pushOrder := []models.EntityType{
			models.EntityTypeCustomer,
			models.EntityTypeInvoice,
			models.EntityTypeExpense,
			models.EntityTypePayment,
		}
		for _, entityType := range pushOrder {
			if err := o.pushEntity(ctx, tenantId, entityType, nil, stats); err != nil {
				return err
			}
		}
		pullOrder := []models.EntityType{
			models.EntityTypeCustomer,
			models.EntityTypeInvoice,
			models.EntityTypePayment,
		}
		for _, entityType := range pullOrder {
			if err := o.pullEntity(ctx, tenantId, entityType, stats); err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *Orchestrator) pushEntity(ctx context.Context, tenantId string, entityType models.EntityType, localIds []int, stats *runStats) error {
	switch entityType {
	case models.EntityTypeCustomer:
		return o.pushCustomers(ctx, tenantId, localIds, stats)
	case models.EntityTypeInvoice:
		return o.pushInvoices(ctx, tenantId, localIds, stats)
	case models.EntityTypeExpense:
		return o.pushExpenses(ctx, tenantId, localIds, stats)
	case models.EntityTypePayment:
		return o.pushPayments(ctx, tenantId, localIds, stats)
	}
	return &ValidationError{Detail: fmt.Sprintf("unknown entity type %q", entityType)}
}

// runGuarded wraps one run with the concurrency guard, the audit lifecycle
// and the connection's last-sync bookkeeping. The body's per-item failures
// land in stats; only fatal errors (auth, storage, cancellation) fail the run.
func (o *Orchestrator) runGuarded(ctx context.Context, tenantId string, action models.SyncAction, trigger models.SyncTrigger, body func(context.Context, *runStats) error) (*RunResult, error) {
	inProgress, err := o.audit.InProgress(ctx, tenantId, action)
	if err != nil {
		return nil, err
	}
	if inProgress {
		return nil, ErrRunInProgress
	}

	release, err := o.locker.Acquire(ctx, tenantId, action)
	if err != nil {
		return nil, err
	}
	defer release()

	runId, err := o.audit.Start(ctx, tenantId, action, trigger)
	if err != nil {
		return nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"tenant":  tenantId,
		"action":  action,
		"trigger": trigger,
		"run_id":  runId,
	}).Info("sync run started")

	stats := &runStats{}
	runErr := body(ctx, stats)

	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	if runErr != nil {
		message := runErr.Error()
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			message = "cancelled"
		}
		// Finalize with a background context: the run context may already be
		// dead and the failure must still be recorded.
		if failErr := o.audit.Fail(context.Background(), runId, message); failErr != nil {
			config.LogError(o.logger, "qbsync", "runGuarded", "record run failure", nil, failErr)
		}
		o.markSyncTimes(tenantId, false)
		return &RunResult{RunId: runId, Status: models.SyncRunStatusFailed, Totals: stats.totals()}, runErr
	}

	totals := stats.totals()
	if err := o.audit.Complete(ctx, runId, totals); err != nil {
		return nil, err
	}
	o.markSyncTimes(tenantId, true)

	o.logger.WithFields(logrus.Fields{
		"tenant":  tenantId,
		"action":  action,
		"run_id":  runId,
		"synced":  totals.Synced,
		"failed":  totals.Failed,
		"skipped": totals.Skipped,
	}).Info("sync run completed")
	return &RunResult{RunId: runId, Status: models.SyncRunStatusCompleted, Totals: totals}, nil
}

// recordItemError classifies one item's outcome. Fatal errors propagate to
// abort the batch; prerequisite gaps count as skipped; everything else counts
// as failed and marks the mapping when one exists.
func (o *Orchestrator) recordItemError(ctx context.Context, tenantId string, entityType models.EntityType, localId string, err error, stats *runStats) error {
	if err == nil {
		stats.succeed()
		return nil
	}
	if isRunFatal(err) {
		return err
	}
	var prereq *PrerequisiteError
	if errors.As(err, &prereq) {
		stats.skip(fmt.Sprintf("%s %s skipped: %s not yet synced", entityType, localId, prereq.Missing))
		return nil
	}

	stats.fail(fmt.Sprintf("%s %s: %s", entityType, localId, err.Error()))
	if mapping, findErr := o.mappings.Find(ctx, tenantId, entityType, localId); findErr == nil && mapping != nil {
		if markErr := o.mappings.MarkError(ctx, mapping.ID, err.Error()); markErr != nil {
			config.LogError(o.logger, "qbsync", "recordItemError", "mark mapping error", nil, markErr)
		}
	}
	return nil
}

func (o *Orchestrator) dbConnectionSettings(ctx context.Context, tenantId string) (models.ConnectionSettings, error) {
	db := o.db()
	if db == nil {
		return models.ConnectionSettings{}, wrapStorage("connection settings", errors.New("database not ready"))
	}
	var conn models.Connection
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ?", tenantId, models.IntegrationProviderQuickBooks).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ConnectionSettings{}, nil
		}
		return models.ConnectionSettings{}, wrapStorage("connection settings", err)
	}
	return models.DecodeConnectionSettings(conn.SettingsJSON), nil
}

func (o *Orchestrator) markSyncTimes(tenantId string, success bool) {
	db := o.db()
	if db == nil {
		return
	}
	now := time.Now()
	updates := map[string]interface{}{"last_sync_at": now}
	if success {
		updates["last_success_sync_at"] = now
	}
	err := db.Model(&models.Connection{}).
		Where("tenant_id = ? AND provider = ?", tenantId, models.IntegrationProviderQuickBooks).
		Updates(updates).Error
	if err != nil {
		config.LogError(o.logger, "qbsync", "markSyncTimes", tenantId, nil, err)
	}
}
