package qbsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/config"
	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/bsm/redislock"
)

// runLockTTL caps how long a crashed instance can hold a run lock. Live runs
// refresh the lock well inside this window.
const runLockTTL = 10 * time.Minute

const runLockRefreshInterval = 2 * time.Minute

// RunLocker serializes runs per (tenant, action) across service instances.
// Acquire returns ErrRunInProgress when another run holds the slot.
type RunLocker interface {
	Acquire(ctx context.Context, tenantId string, action models.SyncAction) (release func(), err error)
}

type redisRunLocker struct{}

func NewRunLocker() RunLocker {
	return &redisRunLocker{}
}

func runLockKey(tenantId string, action models.SyncAction) string {
	return fmt.Sprintf("QBOSyncRun:%s:%s", tenantId, action)
}

// Acquire takes the distributed lock for one (tenant, action) slot. A
// background refresher keeps the lock alive for long runs; release stops it
// and frees the lock. When redis is not configured the lock degenerates to a
// no-op and the audit log's in-progress check is the only guard.
func (l *redisRunLocker) Acquire(ctx context.Context, tenantId string, action models.SyncAction) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}

	lock, err := locker.Obtain(ctx, runLockKey(tenantId, action), runLockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, wrapStorage("run lock", err)
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(runLockRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := lock.Refresh(ctx, runLockTTL, nil); err != nil {
					return
				}
			}
		}
	}()

	release := func() {
		close(done)
		_ = lock.Release(context.Background())
	}
	return release, nil
}
