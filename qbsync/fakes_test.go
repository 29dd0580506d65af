package qbsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bitbucket.org/mmdatafocus/qbo_sync/config"
	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory collaborators used across the package tests. No database, no
// redis, no network.

type fakeGateway struct {
	mu        sync.Mutex
	createFn  func(kind string, payload any) (json.RawMessage, error)
	updateFn  func(kind string, payload any) (json.RawMessage, error)
	queryFn   func(kind, filter string, maxResults, startPosition int) (QueryResult, error)
	createdBy map[string]int
	updatedBy map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		createdBy: map[string]int{},
		updatedBy: map[string]int{},
	}
}

func (g *fakeGateway) Query(ctx context.Context, tenantId, kind, filter string, maxResults, startPosition int) (QueryResult, error) {
	if g.queryFn != nil {
		return g.queryFn(kind, filter, maxResults, startPosition)
	}
	return QueryResult{}, nil
}

func (g *fakeGateway) Create(ctx context.Context, tenantId, kind string, payload any) (json.RawMessage, error) {
	g.mu.Lock()
	g.createdBy[kind]++
	n := g.createdBy[kind]
	g.mu.Unlock()
	if g.createFn != nil {
		return g.createFn(kind, payload)
	}
	return json.RawMessage(fmt.Sprintf(`{"Id":"%s-%d","SyncToken":"0"}`, kind, n)), nil
}

func (g *fakeGateway) Update(ctx context.Context, tenantId, kind string, payload any) (json.RawMessage, error) {
	g.mu.Lock()
	g.updatedBy[kind]++
	g.mu.Unlock()
	if g.updateFn != nil {
		return g.updateFn(kind, payload)
	}
	return json.RawMessage(`{"Id":"upd","SyncToken":"1"}`), nil
}

func (g *fakeGateway) Void(ctx context.Context, tenantId, kind, id, syncToken string) error {
	return nil
}

func (g *fakeGateway) creates(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createdBy[kind]
}

func (g *fakeGateway) updates(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.updatedBy[kind]
}

type fakeMappingStore struct {
	mu     sync.Mutex
	nextId uint
	rows   map[string]*models.EntityMapping
}

func newFakeMappingStore() *fakeMappingStore {
	return &fakeMappingStore{rows: map[string]*models.EntityMapping{}}
}

func mappingKey(tenantId string, entityType models.EntityType, localId string) string {
	return tenantId + "|" + string(entityType) + "|" + localId
}

func (s *fakeMappingStore) seed(tenantId string, entityType models.EntityType, localId, remoteId, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	s.rows[mappingKey(tenantId, entityType, localId)] = &models.EntityMapping{
		ID:                 s.nextId,
		TenantId:           tenantId,
		EntityType:         entityType,
		LocalId:            localId,
		RemoteId:           remoteId,
		RemoteVersionToken: token,
		SyncStatus:         models.SyncStatusSynced,
	}
}

func (s *fakeMappingStore) Find(ctx context.Context, tenantId string, entityType models.EntityType, localId string) (*models.EntityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rows[mappingKey(tenantId, entityType, localId)]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeMappingStore) FindByRemoteId(ctx context.Context, tenantId string, entityType models.EntityType, remoteId string) (*models.EntityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.TenantId == tenantId && m.EntityType == entityType && m.RemoteId == remoteId {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeMappingStore) FindManyByLocalIds(ctx context.Context, tenantId string, entityType models.EntityType, localIds []string) (map[string]*models.EntityMapping, error) {
	out := map[string]*models.EntityMapping{}
	for _, id := range localIds {
		m, _ := s.Find(ctx, tenantId, entityType, id)
		if m != nil {
			out[id] = m
		}
	}
	return out, nil
}

func (s *fakeMappingStore) FindManyByRemoteIds(ctx context.Context, tenantId string, entityType models.EntityType, remoteIds []string) (map[string]*models.EntityMapping, error) {
	out := map[string]*models.EntityMapping{}
	for _, id := range remoteIds {
		m, _ := s.FindByRemoteId(ctx, tenantId, entityType, id)
		if m != nil {
			out[id] = m
		}
	}
	return out, nil
}

func (s *fakeMappingStore) Upsert(ctx context.Context, tenantId string, entityType models.EntityType, localId, remoteId, versionToken string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := mappingKey(tenantId, entityType, localId)
	if m, ok := s.rows[key]; ok {
		m.RemoteId = remoteId
		m.RemoteVersionToken = versionToken
		m.SyncStatus = models.SyncStatusSynced
		m.SyncError = ""
		return m.ID, nil
	}
	s.nextId++
	s.rows[key] = &models.EntityMapping{
		ID:                 s.nextId,
		TenantId:           tenantId,
		EntityType:         entityType,
		LocalId:            localId,
		RemoteId:           remoteId,
		RemoteVersionToken: versionToken,
		SyncStatus:         models.SyncStatusSynced,
	}
	return s.nextId, nil
}

func (s *fakeMappingStore) MarkError(ctx context.Context, mappingId uint, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ID == mappingId {
			m.SyncStatus = models.SyncStatusError
			m.SyncError = message
		}
	}
	return nil
}

func (s *fakeMappingStore) Unlink(ctx context.Context, tenantId string, entityType models.EntityType, localId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, mappingKey(tenantId, entityType, localId))
	return nil
}

type appliedDelta struct {
	invoiceId int
	amount    decimal.Decimal
}

type fakeLocalStore struct {
	mu        sync.Mutex
	customers []models.Customer
	invoices  []models.SalesInvoice
	expenses  []models.Expense
	payments  []models.CustomerPayment

	customerPatches map[int]models.CustomerRemoteFields
	invoicePatches  map[int]models.InvoiceRemoteFields
	deltas          []appliedDelta
}

func newFakeLocalStore() *fakeLocalStore {
	return &fakeLocalStore{
		customerPatches: map[int]models.CustomerRemoteFields{},
		invoicePatches:  map[int]models.InvoiceRemoteFields{},
	}
}

func (s *fakeLocalStore) CustomersForSync(ctx context.Context, tenantId string, localIds []int) ([]models.Customer, error) {
	return s.customers, nil
}

func (s *fakeLocalStore) InvoicesForSync(ctx context.Context, tenantId string, localIds []int) ([]models.SalesInvoice, error) {
	return s.invoices, nil
}

func (s *fakeLocalStore) ExpensesForSync(ctx context.Context, tenantId string, localIds []int) ([]models.Expense, error) {
	return s.expenses, nil
}

func (s *fakeLocalStore) PaymentsForSync(ctx context.Context, tenantId string, localIds []int) ([]models.CustomerPayment, error) {
	return s.payments, nil
}

func (s *fakeLocalStore) CustomerByEmail(ctx context.Context, tenantId, email string) (*models.Customer, error) {
	for i := range s.customers {
		if s.customers[i].Email == email {
			return &s.customers[i], nil
		}
	}
	return nil, nil
}

func (s *fakeLocalStore) ApplyCustomerRemoteFields(ctx context.Context, tenantId string, localId int, fields models.CustomerRemoteFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customerPatches[localId] = fields
	return nil
}

func (s *fakeLocalStore) ApplyInvoiceRemoteFields(ctx context.Context, tenantId string, localId int, fields models.InvoiceRemoteFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoicePatches[localId] = fields
	return nil
}

func (s *fakeLocalStore) ApplyInvoicePaymentDelta(ctx context.Context, tenantId string, invoiceId int, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, appliedDelta{invoiceId: invoiceId, amount: amount})
	return nil
}

type fakeAuditLog struct {
	mu         sync.Mutex
	nextId     uint
	inProgress bool
	started    []models.SyncAction
	completed  map[uint]RunTotals
	failed     map[uint]string
}

func newFakeAuditLog() *fakeAuditLog {
	return &fakeAuditLog{
		completed: map[uint]RunTotals{},
		failed:    map[uint]string{},
	}
}

func (l *fakeAuditLog) Start(ctx context.Context, tenantId string, action models.SyncAction, trigger models.SyncTrigger) (uint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextId++
	l.started = append(l.started, action)
	return l.nextId, nil
}

func (l *fakeAuditLog) Complete(ctx context.Context, runId uint, totals RunTotals) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, done := l.failed[runId]; done {
		return nil
	}
	l.completed[runId] = totals
	return nil
}

func (l *fakeAuditLog) Fail(ctx context.Context, runId uint, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, done := l.completed[runId]; done {
		return nil
	}
	l.failed[runId] = message
	return nil
}

func (l *fakeAuditLog) List(ctx context.Context, tenantId string, limit int, action models.SyncAction) ([]models.SyncRun, error) {
	return nil, nil
}

func (l *fakeAuditLog) LastRun(ctx context.Context, tenantId string, action models.SyncAction) (*models.SyncRun, error) {
	return nil, nil
}

func (l *fakeAuditLog) InProgress(ctx context.Context, tenantId string, action models.SyncAction) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inProgress, nil
}

func (l *fakeAuditLog) Prune(ctx context.Context, tenantId string, keepCount int) error {
	return nil
}

type noopLocker struct{}

func (noopLocker) Acquire(ctx context.Context, tenantId string, action models.SyncAction) (func(), error) {
	return func() {}, nil
}

type testDeps struct {
	gateway  *fakeGateway
	mappings *fakeMappingStore
	local    *fakeLocalStore
	audit    *fakeAuditLog
	settings models.ConnectionSettings
}

func newTestOrchestrator(deps *testDeps) *Orchestrator {
	o := &Orchestrator{
		logger:   config.GetLogger(),
		gateway:  deps.gateway,
		mappings: deps.mappings,
		local:    deps.local,
		audit:    deps.audit,
		locker:   noopLocker{},
		db:       func() *gorm.DB { return nil },
		workers:  2,
	}
	o.settings = func(ctx context.Context, tenantId string) (models.ConnectionSettings, error) {
		return deps.settings, nil
	}
	return o
}
