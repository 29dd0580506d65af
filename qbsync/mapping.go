package qbsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// mappingChunkSize is the list-query ceiling of the backing store. Callers of
// the FindMany operations never see it; chunking happens here.
const mappingChunkSize = 30

// MappingStore is the durable bidirectional link between local and remote
// object ids. It performs no retries; the orchestrator owns retry policy
// because only it knows the semantic cost of re-calling the remote API.
type MappingStore interface {
	Find(ctx context.Context, tenantId string, entityType models.EntityType, localId string) (*models.EntityMapping, error)
	FindByRemoteId(ctx context.Context, tenantId string, entityType models.EntityType, remoteId string) (*models.EntityMapping, error)
	FindManyByLocalIds(ctx context.Context, tenantId string, entityType models.EntityType, localIds []string) (map[string]*models.EntityMapping, error)
	FindManyByRemoteIds(ctx context.Context, tenantId string, entityType models.EntityType, remoteIds []string) (map[string]*models.EntityMapping, error)
	Upsert(ctx context.Context, tenantId string, entityType models.EntityType, localId string, remoteId string, versionToken string) (uint, error)
	MarkError(ctx context.Context, mappingId uint, message string) error
	Unlink(ctx context.Context, tenantId string, entityType models.EntityType, localId string) error
}

type gormMappingStore struct {
	db func() *gorm.DB
}

func NewMappingStore(db func() *gorm.DB) MappingStore {
	return &gormMappingStore{db: db}
}

func (s *gormMappingStore) conn() (*gorm.DB, error) {
	db := s.db()
	if db == nil {
		return nil, wrapStorage("mapping store", errors.New("database not ready"))
	}
	return db, nil
}

func (s *gormMappingStore) Find(ctx context.Context, tenantId string, entityType models.EntityType, localId string) (*models.EntityMapping, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var mapping models.EntityMapping
	err = db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND local_id = ?", tenantId, entityType, localId).
		Take(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapStorage("mapping find", err)
	}
	return &mapping, nil
}

func (s *gormMappingStore) FindByRemoteId(ctx context.Context, tenantId string, entityType models.EntityType, remoteId string) (*models.EntityMapping, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var mapping models.EntityMapping
	err = db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND remote_id = ?", tenantId, entityType, remoteId).
		Take(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapStorage("mapping find by remote id", err)
	}
	return &mapping, nil
}

func (s *gormMappingStore) FindManyByLocalIds(ctx context.Context, tenantId string, entityType models.EntityType, localIds []string) (map[string]*models.EntityMapping, error) {
	return s.findMany(ctx, tenantId, entityType, "local_id", localIds, func(m *models.EntityMapping) string { return m.LocalId })
}

func (s *gormMappingStore) FindManyByRemoteIds(ctx context.Context, tenantId string, entityType models.EntityType, remoteIds []string) (map[string]*models.EntityMapping, error) {
	return s.findMany(ctx, tenantId, entityType, "remote_id", remoteIds, func(m *models.EntityMapping) string { return m.RemoteId })
}

func (s *gormMappingStore) findMany(ctx context.Context, tenantId string, entityType models.EntityType, column string, ids []string, keyOf func(*models.EntityMapping) string) (map[string]*models.EntityMapping, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.EntityMapping, len(ids))
	for _, chunk := range chunkStrings(ids, mappingChunkSize) {
		var mappings []models.EntityMapping
		err := db.WithContext(ctx).
			Where("tenant_id = ? AND entity_type = ?", tenantId, entityType).
			Where(column+" IN ?", chunk).
			Find(&mappings).Error
		if err != nil {
			return nil, wrapStorage("mapping batch find", err)
		}
		for i := range mappings {
			out[keyOf(&mappings[i])] = &mappings[i]
		}
	}
	return out, nil
}

// Upsert is the single mutation path after every successful remote call. It
// never produces a second row for the same local id: an existing mapping is
// refreshed in place, and a concurrent insert race resolves to an update via
// the unique index.
func (s *gormMappingStore) Upsert(ctx context.Context, tenantId string, entityType models.EntityType, localId string, remoteId string, versionToken string) (uint, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var existing models.EntityMapping
	findErr := db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND local_id = ?", tenantId, entityType, localId).
		Take(&existing).Error

	if findErr == nil {
		return existing.ID, s.refresh(ctx, db, existing.ID, remoteId, versionToken)
	}
	if !errors.Is(findErr, gorm.ErrRecordNotFound) {
		return 0, wrapStorage("mapping upsert find", findErr)
	}

	now := time.Now()
	mapping := models.EntityMapping{
		TenantId:           tenantId,
		EntityType:         entityType,
		LocalId:            localId,
		RemoteId:           remoteId,
		RemoteVersionToken: versionToken,
		SyncStatus:         models.SyncStatusSynced,
		LastSyncedAt:       &now,
	}
	createErr := db.WithContext(ctx).Create(&mapping).Error
	if createErr == nil {
		return mapping.ID, nil
	}

	// Lost a create race: another worker inserted the row first.
	if isDuplicateEntry(createErr) {
		retryErr := db.WithContext(ctx).
			Where("tenant_id = ? AND entity_type = ? AND local_id = ?", tenantId, entityType, localId).
			Take(&existing).Error
		if retryErr != nil {
			return 0, wrapStorage("mapping upsert race", retryErr)
		}
		return existing.ID, s.refresh(ctx, db, existing.ID, remoteId, versionToken)
	}
	return 0, wrapStorage("mapping upsert create", createErr)
}

func (s *gormMappingStore) refresh(ctx context.Context, db *gorm.DB, mappingId uint, remoteId string, versionToken string) error {
	err := db.WithContext(ctx).
		Model(&models.EntityMapping{}).
		Where("id = ?", mappingId).
		Updates(map[string]interface{}{
			"remote_id":            remoteId,
			"remote_version_token": versionToken,
			"sync_status":          models.SyncStatusSynced,
			"sync_error":           "",
			"last_synced_at":       time.Now(),
		}).Error
	return wrapStorage("mapping upsert update", err)
}

// MarkError flags a mapping after a failed sync. The remote id and version
// token are preserved: a transient failure must not sever a valid link.
func (s *gormMappingStore) MarkError(ctx context.Context, mappingId uint, message string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return wrapStorage("mapping mark error", db.WithContext(ctx).
		Model(&models.EntityMapping{}).
		Where("id = ?", mappingId).
		Updates(map[string]interface{}{
			"sync_status": models.SyncStatusError,
			"sync_error":  message,
		}).Error)
}

func (s *gormMappingStore) Unlink(ctx context.Context, tenantId string, entityType models.EntityType, localId string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return wrapStorage("mapping unlink", db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND local_id = ?", tenantId, entityType, localId).
		Delete(&models.EntityMapping{}).Error)
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func chunkStrings(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
